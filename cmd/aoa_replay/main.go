package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/aoa_tester/internal/app"
	"github.com/relabs-tech/aoa_tester/internal/config"
)

var (
	configPath string
	mode       string
	maxAngle   int
	dropNinety bool
	upsideDown bool
)

var rootCmd = &cobra.Command{
	Use:   "aoa_replay [session dir...]",
	Short: "Analyse logged sweep sessions offline",
	Long: `aoa_replay rebuilds the buckets of logged sessions from their
{azimuth}_{elevation}.log files and writes the same reports a sweep does
into each session directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		cfg := config.Get()
		if cmd.Flags().Changed("mode") {
			cfg.ReplayMode = mode
		}
		if cmd.Flags().Changed("max-angle") {
			cfg.MaxAngle = maxAngle
		}
		if cmd.Flags().Changed("drop-ninety") {
			cfg.DropNinety = dropNinety
		}
		if cmd.Flags().Changed("upside-down") {
			cfg.AntennaUpsideDown = upsideDown
		}
		return app.RunReplay(cfg, args, os.Stdout)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")
	rootCmd.Flags().StringVar(&mode, "mode", "strict", "strict aborts on a module restart marker, lenient skips it")
	rootCmd.Flags().IntVar(&maxAngle, "max-angle", 90, "only analyse orientations with an axis within ±max-angle")
	rootCmd.Flags().BoolVar(&dropNinety, "drop-ninety", false, "drop reports at ±90 degrees")
	rootCmd.Flags().BoolVar(&upsideDown, "upside-down", false, "antenna was mounted upside down")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
