package meshview

import (
	"log/slog"

	"github.com/gogpu/meshview/internal/logging"
)

// SetLogger configures the logger for meshview and all its sub-packages.
// By default, meshview produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by meshview:
//   - [slog.LevelDebug]: buffer sizes, barrier counts, slot indices
//   - [slog.LevelInfo]: adapter selected, device created or destroyed, resize
//   - [slog.LevelWarn]: device lost and recovery, software fallback
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	meshview.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by meshview.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.L()
}
