package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/aoa_tester/internal/app"
	"github.com/relabs-tech/aoa_tester/internal/config"
)

var (
	configPath string
	tag        string
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "aoa_listen",
	Short: "Follow live angle reports without moving the antenna",
	Long: `aoa_listen reads angle reports from every anchor in LOCATE_PORTS and
from UDP_LISTEN, and prints running per anchor statistics for one tag:
--tag, TRACKED_TAG, or else the first tag heard.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		cfg := config.Get()
		if tag != "" {
			cfg.TrackedTag = tag
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunListen(ctx, cfg, os.Stdout, interval)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")
	rootCmd.Flags().StringVarP(&tag, "tag", "t", "", "tag instance id to follow")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", app.ListenTableInterval, "table refresh interval")
}

func main() {
	log.Println("starting aoa listener")
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
