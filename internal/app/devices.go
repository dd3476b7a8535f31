package app

import (
	"fmt"
	"log"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/positioner"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

// openPositioner opens the positioner link described by cfg.
func openPositioner(cfg *config.Config) (*positioner.Positioner, transport.Transport, error) {
	if err := cfg.RequirePositioner(); err != nil {
		return nil, nil, err
	}

	var (
		t   transport.Transport
		err error
	)
	switch cfg.PositionerTransport {
	case config.TransportWebSocket:
		t, err = transport.DialWebSocket(cfg.PositionerWSURL, cfg.PositionerTimeout())
	case config.TransportMock:
		log.Println("positioner: using simulated firmware")
		t = positioner.NewMock()
	default:
		t, err = transport.OpenSerial(transport.SerialOptions{
			PortName:    cfg.PositionerPort,
			BaudRate:    cfg.PositionerBaudRate,
			ReadTimeout: transport.DefaultReadTimeout,
			Driver:      cfg.SerialDriver,
		})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to communicate with antenna controller: %w", err)
	}
	return positioner.New(t, positioner.WithTimeouts(cfg.PositionerTimeout(), 0)), t, nil
}

// openLocators opens every anchor in LOCATE_PORTS plus the UDP source.
// Anchors are named antenna1, antenna2, ... in config order. truth feeds
// simulated anchors and may be nil.
func openLocators(cfg *config.Config, truth func() aoa.GroundTruth) ([]*locate.Locator, error) {
	if err := cfg.RequireLocators(); err != nil {
		return nil, err
	}

	var out []*locate.Locator
	fail := func(err error) ([]*locate.Locator, error) {
		for _, l := range out {
			l.Close()
		}
		return nil, err
	}

	for i, port := range cfg.LocatePorts {
		name := fmt.Sprintf("antenna%d", i+1)
		var t transport.Transport
		if port == config.MockPort {
			log.Printf("locate: %s is simulated", name)
			t = locate.NewMockTransport(locate.MockOptions{
				ReadTimeout: cfg.LocateReadTimeout(),
				Truth:       truth,
			})
		} else {
			var err error
			t, err = transport.OpenSerial(transport.SerialOptions{
				PortName:    port,
				BaudRate:    cfg.LocateBaudRate,
				FlowControl: cfg.LocateFlowControl,
				ReadTimeout: cfg.LocateReadTimeout(),
				Driver:      cfg.SerialDriver,
			})
			if err != nil {
				return fail(fmt.Errorf("failed to communicate with u-connectLocate on %s: %w", port, err))
			}
		}
		out = append(out, locate.NewLocator(name, t))
	}

	if cfg.UDPListen != "" {
		t, err := transport.ListenUDP(transport.UDPOptions{
			Listen:      cfg.UDPListen,
			Group:       cfg.UDPMulticastGroup,
			ReadTimeout: cfg.LocateReadTimeout(),
		})
		if err != nil {
			return fail(err)
		}
		l := locate.NewLocator("udp", t)
		l.Passive = true
		out = append(out, l)
	}
	return out, nil
}

func closeLocators(ls []*locate.Locator) {
	for _, l := range ls {
		if err := l.Close(); err != nil {
			log.Printf("locate: close %s: %v", l.Name, err)
		}
	}
}
