// Beagle is a serial terminal for embedded development boards.
//
// It puts the terminal in raw mode and forwards every keystroke to a serial
// port chosen in an interactive port picker. The picker runs in the same
// terminal by default, or as a separate `beagle picker` process when the
// terminal is started with --picker remote.
//
// Usage:
//
//	beagle [term] [flags]
//
// Running without arguments opens the terminal and prompts for a port.
// See 'beagle --help' for available commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beagle-term/beagle/internal/config"
	"github.com/beagle-term/beagle/internal/i18n"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beagle",
	Short: "Beagle Term serial terminal",
	Long: `A serial terminal for development boards, USB serial adapters and
network serial bridges.

Keystrokes are sent to the device exactly as typed and device output is
written to the terminal unchanged. Press Ctrl-] to leave.

If no command is specified, the terminal opens and prompts for a port.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: open the terminal
		return runTerm(cmd, args)
	},
}

// Global flags
var (
	configPath string
	logLevel   string
	logFile    string
)

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/beagle/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); empty disables logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("beagle %s %s (commit: %s)\n", version.Version, version.Channel, version.Commit)
	},
}

// loadSettings reads the config file and starts logging. Flags win over
// the file and the environment.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.Logging.Level = logLevel
	}
	if logFile != "" {
		settings.Logging.File = logFile
	}
	if err := logging.Initialize(settings.Logging.Level, settings.Logging.File); err != nil {
		return nil, err
	}
	return settings, nil
}

// userCatalog picks the message catalog from the POSIX locale variables.
func userCatalog() *i18n.Catalog {
	var prefs []string
	for _, name := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(name)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		// LANGUAGE is a colon separated list; the others carry an encoding.
		for _, p := range strings.Split(v, ":") {
			if i := strings.IndexByte(p, '.'); i >= 0 {
				p = p[:i]
			}
			if p != "" {
				prefs = append(prefs, p)
			}
		}
	}
	cat, err := i18n.New(prefs...)
	if err != nil {
		return i18n.Default()
	}
	return cat
}
