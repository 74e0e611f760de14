// Package config manages beagle's settings file.
//
// Settings live in a YAML file following OS conventions:
//   - Linux: $XDG_CONFIG_HOME/beagle/config.yaml or $HOME/.config/beagle/config.yaml
//   - macOS: $HOME/.config/beagle/config.yaml
//   - Windows: %LOCALAPPDATA%\beagle\config.yaml
//
// BEAGLE_CONFIG points at another file. A missing file is not an error;
// Default values apply. Any field left out of the file takes its default,
// so a file may hold only the settings a user cares about.
//
// # Environment
//
// BEAGLE_* variables override the file, for example:
//
//	BEAGLE_BAUD_RATE=9600 BEAGLE_LOG_LEVEL=debug BEAGLE_LOG_FILE=/tmp/beagle.log beagle
//
// # Usage Example
//
//	settings, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exclude, _ := settings.ExcludeRegexp()
//
// File operations are protected by a mutex and saves are atomic.
package config
