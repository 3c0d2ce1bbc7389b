package raytrace

import (
	"log/slog"

	"github.com/gogpu/raytrace/hal"
)

// SetLogger configures the logger for raytrace and all its sub-packages.
// By default, raytrace produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use. Pass nil to restore silent output.
//
// Log levels used by raytrace:
//   - [slog.LevelDebug]: buffer sizes, descriptor writes, swap chain resources
//   - [slog.LevelInfo]: lifecycle events (device selected, structures built, pipeline created)
//   - [slog.LevelWarn]: swap chain rebuilds, release errors
//
// Example:
//
//	raytrace.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	hal.SetLogger(l)
}

// Logger returns the logger shared by raytrace and its sub-packages.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return hal.Logger()
}
