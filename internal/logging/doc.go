// Package logging provides structured logging for beagle.
//
// This package wraps a global zap logger with convenience functions. Most
// components also accept an injected *zap.Logger and fall back to the global
// one through Or, which keeps them observable from tests.
//
// # Log Levels
//
//   - Debug: keystrokes sent, chunks read, every channel message
//   - Info: session state changes, handshake milestones
//   - Warn: unhandled messages, dropped devices, failed opens
//   - Error: failures that end the command
//
// # Configuration
//
// Logging is silent unless a level is configured, either through the config
// file, the --log-level flag or BEAGLE_LOG_LEVEL:
//
//	if err := logging.Initialize("debug", "/tmp/beagle.log"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// The console is in raw mode while a session runs, so interactive sessions
// should log to a file rather than stderr.
package logging
