package main

import (
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/aoa_tester/internal/app"
	"github.com/relabs-tech/aoa_tester/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "antenna_jog",
	Short: "Move the antenna positioner by hand",
}

func jog(action string, withDelta bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:  action,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := 0
			if withDelta {
				var err error
				if delta, err = strconv.Atoi(args[0]); err != nil {
					return err
				}
			}
			if err := config.InitGlobal(configPath); err != nil {
				return err
			}
			return app.RunJog(config.Get(), action, delta, os.Stdout)
		},
	}
	if withDelta {
		cmd.Use = action + " DEGREES"
		cmd.Args = cobra.ExactArgs(1)
	}
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./aoa_config.txt", "path to the config file")

	enable := jog(app.JogEnable, false)
	enable.Short = "Power the positioner motors"
	disable := jog(app.JogDisable, false)
	disable.Short = "Release the positioner motors"
	azimuth := jog(app.JogAzimuth, true)
	azimuth.Short = "Rotate by DEGREES relative to the current azimuth"
	tilt := jog(app.JogTilt, true)
	tilt.Short = "Tilt by DEGREES relative to the current elevation"
	angle := jog(app.JogAngle, false)
	angle.Short = "Print the azimuth the firmware reports"

	rootCmd.AddCommand(enable, disable, azimuth, tilt, angle)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
