package app

import (
	"fmt"
	"io"

	"github.com/relabs-tech/aoa_tester/internal/config"
)

// Jog actions understood by RunJog.
const (
	JogEnable  = "enable"
	JogDisable = "disable"
	JogAzimuth = "azimuth"
	JogTilt    = "tilt"
	JogAngle   = "angle"
)

// RunJog sends one manual command to the positioner. delta is used by
// the azimuth and tilt actions and is relative to the current position.
func RunJog(cfg *config.Config, action string, delta int, out io.Writer) error {
	pos, link, err := openPositioner(cfg)
	if err != nil {
		return err
	}
	defer link.Close()

	switch action {
	case JogEnable:
		err = pos.Enable()
	case JogDisable:
		err = pos.Disable()
	case JogAzimuth:
		err = pos.Rotate(delta)
	case JogTilt:
		err = pos.Tilt(delta)
	case JogAngle:
		var az int
		az, err = pos.QueryAzimuth()
		if err == nil {
			fmt.Fprintf(out, "azimuth: %d\n", az)
		}
	default:
		return fmt.Errorf("unknown jog action %q", action)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	fmt.Fprintln(out, "OK")
	return nil
}
