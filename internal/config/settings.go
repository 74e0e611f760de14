package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// CurrentVersion is the settings file format version
const CurrentVersion = 1

// Settings represents the entire user configuration file.
type Settings struct {
	Version   int               `yaml:"version"`
	Serial    SerialSettings    `yaml:"serial"`
	Handshake HandshakeSettings `yaml:"handshake"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Simulator SimulatorSettings `yaml:"simulator"`
	Logging   LoggingSettings   `yaml:"logging"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// SerialSettings controls port listing and opening.
type SerialSettings struct {
	DefaultBaudRate int    `yaml:"default_baud_rate"`        // Rate preselected in the picker
	BaudRates       []int  `yaml:"baud_rates"`               // Rates offered in the picker
	ExcludePattern  string `yaml:"exclude_pattern"`          // Port names matching this are hidden
	ReadBufferSize  int    `yaml:"read_buffer_size"`         // Bytes per device read
	LastPort        string `yaml:"last_port,omitempty"`      // Port chosen most recently
	LastBaudRate    int    `yaml:"last_baud_rate,omitempty"` // Rate chosen most recently
}

// HandshakeSettings controls the picker channel bootstrap.
type HandshakeSettings struct {
	GraceDelay time.Duration `yaml:"grace_delay"` // Wait for init-ok before proceeding anyway
}

// DiscoverySettings controls mDNS lookup of network serial bridges.
type DiscoverySettings struct {
	Enabled bool          `yaml:"enabled"`
	Service string        `yaml:"service"`
	Timeout time.Duration `yaml:"timeout"`
}

// SimulatorSettings controls the pty-backed simulated port.
type SimulatorSettings struct {
	Enabled bool   `yaml:"enabled"`
	Shell   string `yaml:"shell,omitempty"` // Empty means $SHELL
}

// LoggingSettings controls the zap logger. The console is in raw mode while
// a session runs, so logs belong in a file.
type LoggingSettings struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error; empty disables logging
	File  string `yaml:"file,omitempty"`  // Empty means stderr
}

// MetricsSettings controls the optional Prometheus endpoint.
type MetricsSettings struct {
	Addr string `yaml:"addr,omitempty"` // e.g. "127.0.0.1:9464"; empty disables it
}

// StandardBaudRates are the rates offered when the file lists none.
var StandardBaudRates = []int{300, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

// Default returns settings with every field populated.
func Default() *Settings {
	rates := make([]int, len(StandardBaudRates))
	copy(rates, StandardBaudRates)
	return &Settings{
		Version: CurrentVersion,
		Serial: SerialSettings{
			DefaultBaudRate: 115200,
			BaudRates:       rates,
			ExcludePattern:  `[Bb]luetooth`,
			ReadBufferSize:  4096,
		},
		Handshake: HandshakeSettings{
			GraceDelay: 500 * time.Millisecond,
		},
		Discovery: DiscoverySettings{
			Enabled: true,
			Service: "_iostream._tcp",
			Timeout: 2 * time.Second,
		},
		Simulator: SimulatorSettings{
			Enabled: false,
		},
	}
}

// fillDefaults sets zero fields from Default so partial files work.
func (s *Settings) fillDefaults() {
	d := Default()
	if s.Serial.DefaultBaudRate == 0 {
		s.Serial.DefaultBaudRate = d.Serial.DefaultBaudRate
	}
	if len(s.Serial.BaudRates) == 0 {
		s.Serial.BaudRates = d.Serial.BaudRates
	}
	if s.Serial.ReadBufferSize == 0 {
		s.Serial.ReadBufferSize = d.Serial.ReadBufferSize
	}
	if s.Handshake.GraceDelay == 0 {
		s.Handshake.GraceDelay = d.Handshake.GraceDelay
	}
	if s.Discovery.Service == "" {
		s.Discovery.Service = d.Discovery.Service
	}
	if s.Discovery.Timeout == 0 {
		s.Discovery.Timeout = d.Discovery.Timeout
	}
}

// Validate reports every problem with s at once.
func (s *Settings) Validate() error {
	var errs []error

	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion))
	}
	if s.Serial.DefaultBaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.default_baud_rate must be positive, got %d", s.Serial.DefaultBaudRate))
	}
	for _, r := range s.Serial.BaudRates {
		if r <= 0 {
			errs = append(errs, fmt.Errorf("serial.baud_rates contains %d", r))
		}
	}
	if s.Serial.ReadBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("serial.read_buffer_size must be positive, got %d", s.Serial.ReadBufferSize))
	}
	if _, err := s.ExcludeRegexp(); err != nil {
		errs = append(errs, err)
	}
	if s.Handshake.GraceDelay <= 0 || s.Handshake.GraceDelay > time.Minute {
		errs = append(errs, fmt.Errorf("handshake.grace_delay must be between 0 and 1m, got %s", s.Handshake.GraceDelay))
	}
	if s.Discovery.Enabled && s.Discovery.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("discovery.timeout must be positive, got %s", s.Discovery.Timeout))
	}

	return errors.Join(errs...)
}

// ExcludeRegexp compiles Serial.ExcludePattern. An empty pattern yields nil.
func (s *Settings) ExcludeRegexp() (*regexp.Regexp, error) {
	if s.Serial.ExcludePattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(s.Serial.ExcludePattern)
	if err != nil {
		return nil, fmt.Errorf("serial.exclude_pattern: %w", err)
	}
	return re, nil
}

// BaudRateChoices returns the offered rates with the default included.
func (s *Settings) BaudRateChoices() []int {
	rates := make([]int, 0, len(s.Serial.BaudRates)+1)
	found := false
	for _, r := range s.Serial.BaudRates {
		if r == s.Serial.DefaultBaudRate {
			found = true
		}
		rates = append(rates, r)
	}
	if !found && s.Serial.DefaultBaudRate > 0 {
		rates = append(rates, s.Serial.DefaultBaudRate)
	}
	return rates
}

// RememberTarget records the most recent successful connection.
func (s *Settings) RememberTarget(port string, baud int) {
	s.Serial.LastPort = port
	s.Serial.LastBaudRate = baud
}
