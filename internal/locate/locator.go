package locate

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/command"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

const (
	enableCommand  = "AT+UDFENABLE=1"
	disableCommand = "AT+UDFENABLE=0"

	// EnableTimeout is generous, the module may be busy streaming.
	EnableTimeout  = 10 * time.Second
	DisableTimeout = time.Second
)

// Locator is one anchor: its link, the command client used to switch
// reporting on and off, and the reader for its reports.
type Locator struct {
	Name string
	// Passive anchors stream without accepting commands (UDP forwarders).
	Passive bool

	t      transport.Transport
	client *command.Client
}

// NewLocator wraps the link to one anchor.
func NewLocator(name string, t transport.Transport) *Locator {
	return &Locator{
		Name:   name,
		t:      t,
		client: command.NewClient("locate "+name, t),
	}
}

// Enable starts angle reporting.
func (l *Locator) Enable() error {
	if l.Passive {
		return nil
	}
	if _, err := l.client.SendAndWait(enableCommand, EnableTimeout); err != nil {
		return fmt.Errorf("failed enabling u-connectLocate on %s: %w", l.Name, err)
	}
	return nil
}

// Disable stops angle reporting. It doubles as a link check at startup.
func (l *Locator) Disable() error {
	if l.Passive {
		return nil
	}
	if _, err := l.client.SendAndWait(disableCommand, DisableTimeout); err != nil {
		return fmt.Errorf("failed disabling u-connectLocate on %s: %w", l.Name, err)
	}
	return nil
}

// Flush drops whatever the module sent while nobody was listening, so a
// window only sees reports produced at its own ground truth.
func (l *Locator) Flush() error {
	if err := l.t.DiscardInput(); err != nil {
		return fmt.Errorf("flush %s: %w", l.Name, err)
	}
	return nil
}

// Reader returns a report reader on the anchor's link.
func (l *Locator) Reader(mode Mode) *Reader {
	return NewReader(l.Name, l.t, mode)
}

// Close closes the link.
func (l *Locator) Close() error {
	log.Printf("locate: closing %s", l.Name)
	return l.t.Close()
}
