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
	Use:   "aoa_sweep",
	Short: "Run an angle of arrival accuracy sweep",
	Long: `aoa_sweep moves the antenna positioner over a grid of orientations,
collects angle reports from every configured anchor at each of them and
writes per anchor logs and pass/fail reports.

The sweep grid, settle time and window come from the config file, or
from SWEEP_PLAN_FILE when set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunSweep(ctx, config.Get())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")
}

func main() {
	log.Println("starting aoa sweep")
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
