package positioner

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/transport"
)

// Mock emulates the positioner firmware command table on an in-memory
// transport. Unknown commands get no reply, like the real firmware.
type Mock struct {
	*transport.Memory

	mu         sync.Mutex
	enabled    bool
	azimuth    int
	tilt       int
	failPrefix string
}

// NewMock returns a firmware emulator ready to be passed to New.
func NewMock() *Mock {
	m := &Mock{Memory: transport.NewMemory(50 * time.Millisecond)}
	m.Memory.Respond = m.handle
	return m
}

func (m *Mock) handle(line string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPrefix != "" && strings.HasPrefix(line, m.failPrefix) {
		return []string{"ERROR"}
	}
	switch {
	case strings.HasPrefix(line, "ENABLE="):
		m.enabled = strings.TrimPrefix(line, "ENABLE=") != "0"
		return []string{"OK"}
	case strings.HasPrefix(line, "AZIMUTH="):
		m.azimuth += atoi(strings.TrimPrefix(line, "AZIMUTH="))
		return []string{"OK"}
	case strings.HasPrefix(line, "TILT="):
		m.tilt += atoi(strings.TrimPrefix(line, "TILT="))
		return []string{"OK"}
	case strings.HasPrefix(line, "GET_ANGLE"):
		return []string{fmt.Sprintf("%d", m.azimuth), "OK"}
	}
	log.Printf("positioner mock: ignoring %q", line)
	return nil
}

// FailCommands makes commands starting with prefix answer ERROR. An empty
// prefix restores normal behaviour.
func (m *Mock) FailCommands(prefix string) {
	m.mu.Lock()
	m.failPrefix = prefix
	m.mu.Unlock()
}

// State returns what the emulated firmware believes.
func (m *Mock) State() (enabled bool, azimuth, tilt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, m.azimuth, m.tilt
}

// strtol semantics: garbage reads as 0
func atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
