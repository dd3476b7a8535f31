package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/aoa_tester/internal/app"
	"github.com/relabs-tech/aoa_tester/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "console_mqtt",
	Short: "Print samples and window results published on MQTT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunConsoleMQTT(ctx, config.Get(), os.Stdout)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")
}

func main() {
	log.Println("starting aoa console (MQTT subscriber)")
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
