package config

import (
	"fmt"
	"io"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "BEAGLE"

// overrides lists the BEAGLE_* environment variables. Unset variables leave
// the file value alone.
type overrides struct {
	Config         string        `envconfig:"CONFIG"`
	BaudRate       int           `envconfig:"BAUD_RATE"`
	ExcludePattern string        `envconfig:"EXCLUDE_PATTERN"`
	HandshakeGrace time.Duration `envconfig:"HANDSHAKE_GRACE"`
	Discovery      *bool         `envconfig:"DISCOVERY"`
	Simulator      *bool         `envconfig:"SIMULATOR"`
	SimulatorShell string        `envconfig:"SIMULATOR_SHELL"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
	LogFile        string        `envconfig:"LOG_FILE"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR"`
}

func readOverrides() (overrides, error) {
	var o overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return o, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	return o, nil
}

// ApplyEnv overlays BEAGLE_* environment variables on s.
func ApplyEnv(s *Settings) error {
	o, err := readOverrides()
	if err != nil {
		return err
	}

	if o.BaudRate != 0 {
		s.Serial.DefaultBaudRate = o.BaudRate
	}
	if o.ExcludePattern != "" {
		s.Serial.ExcludePattern = o.ExcludePattern
	}
	if o.HandshakeGrace != 0 {
		s.Handshake.GraceDelay = o.HandshakeGrace
	}
	if o.Discovery != nil {
		s.Discovery.Enabled = *o.Discovery
	}
	if o.Simulator != nil {
		s.Simulator.Enabled = *o.Simulator
	}
	if o.SimulatorShell != "" {
		s.Simulator.Shell = o.SimulatorShell
	}
	if o.LogLevel != "" {
		s.Logging.Level = o.LogLevel
	}
	if o.LogFile != "" {
		s.Logging.File = o.LogFile
	}
	if o.MetricsAddr != "" {
		s.Metrics.Addr = o.MetricsAddr
	}
	return nil
}

// envConfigPath returns BEAGLE_CONFIG, ignoring malformed sibling
// variables, which Load reports separately.
func envConfigPath() string {
	o, _ := readOverrides()
	return o.Config
}

// Usage writes the override variables as a table.
func Usage(w io.Writer) error {
	var o overrides
	return envconfig.Usagef(EnvPrefix, &o, w, envconfig.DefaultTableFormat)
}
