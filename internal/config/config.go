package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every key when overriding from the environment,
// e.g. AOA_POSITIONER_PORT.
const EnvPrefix = "AOA_"

// Positioner transports.
const (
	TransportSerial    = "serial"
	TransportWebSocket = "websocket"
	TransportMock      = "mock"
)

// MockPort in LOCATE_PORTS stands for a simulated anchor.
const MockPort = "mock"

// Config holds all application configuration values.
type Config struct {
	// Positioner
	PositionerTransport string `env:"POSITIONER_TRANSPORT"` // serial, websocket or mock
	PositionerPort      string `env:"POSITIONER_PORT"`
	PositionerBaudRate  int    `env:"POSITIONER_BAUD_RATE"`
	PositionerWSURL     string `env:"POSITIONER_WS_URL"`
	PositionerTimeoutMs int    `env:"POSITIONER_TIMEOUT_MS"` // non-move commands

	// Locating modules
	LocatePorts         []string `env:"LOCATE_PORTS" envSeparator:","`
	LocateBaudRate      int      `env:"LOCATE_BAUD_RATE"`
	LocateFlowControl   bool     `env:"LOCATE_FLOW_CONTROL"` // RTS/CTS
	LocateReadTimeoutMs int      `env:"LOCATE_READ_TIMEOUT_MS"`
	SerialDriver        string   `env:"SERIAL_DRIVER"` // bugst or jacobsa
	UDPListen           string   `env:"UDP_LISTEN"`    // host:port, empty disables
	UDPMulticastGroup   string   `env:"UDP_MULTICAST_GROUP"`
	TrackedTag          string   `env:"TRACKED_TAG"`

	// Sweep
	SettleMs            int    `env:"SETTLE_MS"`
	WindowMs            int    `env:"WINDOW_MS"`
	SweepPlanFile       string `env:"SWEEP_PLAN_FILE"`
	SweepAzimuthStart   int    `env:"SWEEP_AZIMUTH_START"`
	SweepAzimuthEnd     int    `env:"SWEEP_AZIMUTH_END"`
	SweepAzimuthStep    int    `env:"SWEEP_AZIMUTH_STEP"`
	SweepElevationStart int    `env:"SWEEP_ELEVATION_START"`
	SweepElevationEnd   int    `env:"SWEEP_ELEVATION_END"`
	SweepElevationStep  int    `env:"SWEEP_ELEVATION_STEP"`
	AntennaUpsideDown   bool   `env:"ANTENNA_UPSIDE_DOWN"`

	// Analysis
	PassToleranceDeg float64 `env:"PASS_TOLERANCE_DEG"`
	PassRatio        float64 `env:"PASS_RATIO"`
	ReplayMode       string  `env:"REPLAY_MODE"` // strict or lenient
	MaxAngle         int     `env:"MAX_ANGLE"`
	DropNinety       bool    `env:"DROP_NINETY"`
	ReportDir        string  `env:"REPORT_DIR"`

	// MQTT, empty broker disables publishing
	MQTTBroker          string `env:"MQTT_BROKER"`
	MQTTClientIDSweep   string `env:"MQTT_CLIENT_ID_SWEEP"`
	MQTTClientIDListen  string `env:"MQTT_CLIENT_ID_LISTEN"`
	MQTTClientIDConsole string `env:"MQTT_CLIENT_ID_CONSOLE"`
	MQTTClientIDWeb     string `env:"MQTT_CLIENT_ID_WEB"`

	// Topics
	TopicSamples string `env:"TOPIC_SAMPLES"`
	TopicBuckets string `env:"TOPIC_BUCKETS"`

	// Web Server
	WebServerPort int `env:"WEB_SERVER_PORT"`
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the bench defaults: 115200 baud links, the -40..40
// sweep in steps of 20 with 2 s settle and 7 s windows, ±10 degrees for 90%.
func Defaults() *Config {
	return &Config{
		PositionerTransport: TransportSerial,
		PositionerBaudRate:  115200,
		PositionerTimeoutMs: 1000,

		LocateBaudRate:      115200,
		LocateFlowControl:   true,
		LocateReadTimeoutMs: 2000,
		SerialDriver:        "jacobsa",

		SettleMs:            2000,
		WindowMs:            7000,
		SweepAzimuthStart:   -40,
		SweepAzimuthEnd:     40,
		SweepAzimuthStep:    20,
		SweepElevationStart: -40,
		SweepElevationEnd:   40,
		SweepElevationStep:  20,

		PassToleranceDeg: 10,
		PassRatio:        0.9,
		ReplayMode:       "strict",
		MaxAngle:         90,
		ReportDir:        ".",

		MQTTClientIDSweep:   "aoa-sweep",
		MQTTClientIDListen:  "aoa-listen",
		MQTTClientIDConsole: "aoa-console",
		MQTTClientIDWeb:     "aoa-web",
		TopicSamples:        "aoa/samples",
		TopicBuckets:        "aoa/buckets",

		WebServerPort: 8080,
	}
}

// Load reads the configuration file on top of Defaults, then applies
// AOA_-prefixed environment overrides.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Positioner
	case "POSITIONER_TRANSPORT":
		c.PositionerTransport = strings.ToLower(value)
	case "POSITIONER_PORT":
		c.PositionerPort = value
	case "POSITIONER_BAUD_RATE":
		c.PositionerBaudRate, err = parseInt(key, value)
	case "POSITIONER_WS_URL":
		c.PositionerWSURL = value
	case "POSITIONER_TIMEOUT_MS":
		c.PositionerTimeoutMs, err = parseInt(key, value)

	// Locating modules
	case "LOCATE_PORTS":
		c.LocatePorts = splitList(value)
	case "LOCATE_BAUD_RATE":
		c.LocateBaudRate, err = parseInt(key, value)
	case "LOCATE_FLOW_CONTROL":
		c.LocateFlowControl, err = parseBool(key, value)
	case "LOCATE_READ_TIMEOUT_MS":
		c.LocateReadTimeoutMs, err = parseInt(key, value)
	case "SERIAL_DRIVER":
		c.SerialDriver = strings.ToLower(value)
	case "UDP_LISTEN":
		c.UDPListen = value
	case "UDP_MULTICAST_GROUP":
		c.UDPMulticastGroup = value
	case "TRACKED_TAG":
		c.TrackedTag = value

	// Sweep
	case "SETTLE_MS":
		c.SettleMs, err = parseInt(key, value)
	case "WINDOW_MS":
		c.WindowMs, err = parseInt(key, value)
	case "SWEEP_PLAN_FILE":
		c.SweepPlanFile = value
	case "SWEEP_AZIMUTH_START":
		c.SweepAzimuthStart, err = parseInt(key, value)
	case "SWEEP_AZIMUTH_END":
		c.SweepAzimuthEnd, err = parseInt(key, value)
	case "SWEEP_AZIMUTH_STEP":
		c.SweepAzimuthStep, err = parseInt(key, value)
	case "SWEEP_ELEVATION_START":
		c.SweepElevationStart, err = parseInt(key, value)
	case "SWEEP_ELEVATION_END":
		c.SweepElevationEnd, err = parseInt(key, value)
	case "SWEEP_ELEVATION_STEP":
		c.SweepElevationStep, err = parseInt(key, value)
	case "ANTENNA_UPSIDE_DOWN":
		c.AntennaUpsideDown, err = parseBool(key, value)

	// Analysis
	case "PASS_TOLERANCE_DEG":
		c.PassToleranceDeg, err = parseFloat(key, value)
	case "PASS_RATIO":
		c.PassRatio, err = parseFloat(key, value)
	case "REPLAY_MODE":
		c.ReplayMode = strings.ToLower(value)
	case "MAX_ANGLE":
		c.MaxAngle, err = parseInt(key, value)
	case "DROP_NINETY":
		c.DropNinety, err = parseBool(key, value)
	case "REPORT_DIR":
		c.ReportDir = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SWEEP":
		c.MQTTClientIDSweep = value
	case "MQTT_CLIENT_ID_LISTEN":
		c.MQTTClientIDListen = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_SAMPLES":
		c.TopicSamples = value
	case "TOPIC_BUCKETS":
		c.TopicBuckets = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks values that every program relies on. What a program
// needs to talk to hardware is checked by the Require helpers.
func (c *Config) validate() error {
	switch c.PositionerTransport {
	case TransportSerial, TransportWebSocket, TransportMock:
	default:
		return fmt.Errorf("POSITIONER_TRANSPORT must be serial, websocket or mock, got %q", c.PositionerTransport)
	}
	switch c.SerialDriver {
	case "bugst", "jacobsa":
	default:
		return fmt.Errorf("SERIAL_DRIVER must be bugst or jacobsa, got %q", c.SerialDriver)
	}
	if c.LocateFlowControl && c.SerialDriver == "bugst" {
		return fmt.Errorf("LOCATE_FLOW_CONTROL needs SERIAL_DRIVER=jacobsa, bugst has no RTS/CTS")
	}
	switch c.ReplayMode {
	case "strict", "lenient":
	default:
		return fmt.Errorf("REPLAY_MODE must be strict or lenient, got %q", c.ReplayMode)
	}
	if c.PositionerTimeoutMs <= 0 {
		return fmt.Errorf("POSITIONER_TIMEOUT_MS must be positive")
	}
	if c.LocateReadTimeoutMs <= 0 {
		return fmt.Errorf("LOCATE_READ_TIMEOUT_MS must be positive")
	}
	if c.WindowMs <= 0 {
		return fmt.Errorf("WINDOW_MS must be positive")
	}
	if c.SettleMs < 0 {
		return fmt.Errorf("SETTLE_MS must not be negative")
	}
	if c.PassRatio < 0 || c.PassRatio > 1 {
		return fmt.Errorf("PASS_RATIO must be within 0..1, got %g", c.PassRatio)
	}
	if c.PassToleranceDeg < 0 {
		return fmt.Errorf("PASS_TOLERANCE_DEG must not be negative")
	}
	if err := checkRange("SWEEP_AZIMUTH", c.SweepAzimuthStart, c.SweepAzimuthEnd, c.SweepAzimuthStep); err != nil {
		return err
	}
	return checkRange("SWEEP_ELEVATION", c.SweepElevationStart, c.SweepElevationEnd, c.SweepElevationStep)
}

// Sweep ranges must be walkable in whole steps.
func checkRange(name string, start, end, step int) error {
	if step <= 0 {
		return fmt.Errorf("%s_STEP must be positive, got %d", name, step)
	}
	if end < start {
		return fmt.Errorf("%s_END %d is below %s_START %d", name, end, name, start)
	}
	if (end-start)%step != 0 {
		return fmt.Errorf("%s_STEP %d does not evenly divide %d..%d", name, step, start, end)
	}
	return nil
}

// RequirePositioner checks the settings needed to open the positioner link.
func (c *Config) RequirePositioner() error {
	switch c.PositionerTransport {
	case TransportSerial:
		if c.PositionerPort == "" {
			return fmt.Errorf("POSITIONER_PORT is required")
		}
		if c.PositionerBaudRate == 0 {
			return fmt.Errorf("POSITIONER_BAUD_RATE is required")
		}
	case TransportWebSocket:
		if c.PositionerWSURL == "" {
			return fmt.Errorf("POSITIONER_WS_URL is required")
		}
	}
	return nil
}

// RequireLocators checks that at least one anchor source is configured.
func (c *Config) RequireLocators() error {
	if len(c.LocatePorts) == 0 && c.UDPListen == "" {
		return fmt.Errorf("LOCATE_PORTS or UDP_LISTEN is required")
	}
	if len(c.LocatePorts) > 0 && c.LocateBaudRate == 0 {
		return fmt.Errorf("LOCATE_BAUD_RATE is required")
	}
	return nil
}

// PositionerTimeout is the timeout of non-move positioner commands.
func (c *Config) PositionerTimeout() time.Duration {
	return time.Duration(c.PositionerTimeoutMs) * time.Millisecond
}

// LocateReadTimeout bounds a single read from an anchor.
func (c *Config) LocateReadTimeout() time.Duration {
	return time.Duration(c.LocateReadTimeoutMs) * time.Millisecond
}

// Settle is the wait between reaching an orientation and collecting.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// Window is the collection window per orientation.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
