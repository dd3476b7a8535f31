// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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
	Use:   "web",
	Short: "Serve the live sweep view (MQTT subscriber)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunWeb(ctx, config.Get())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")
}

func main() {
	log.Println("starting aoa web server (MQTT subscriber)")
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
