// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Keeps the most recent entries in a ring buffer served by the status API
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"supervisor": "debug", // Per-module overrides
//			"api":        "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Launching action", "action", name)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("sandbox").With("action", name)
//	logger.Info("Process started") // Includes action in all logs
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t actiond                   # All actiond logs
//	journalctl -t actiond -f                # Follow live
//	journalctl -t actiond MODULE=supervisor # One module
//	journalctl -t actiond ACTION=weather    # One action
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Example TOML settings:
//
//	[logging]
//	level = "info"
//	format = "text"
//	supervisor = "debug"
//	sandbox = "warn"
package logging
