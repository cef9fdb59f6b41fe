package telemetry

import (
	"log/slog"
	"os"
)

// installs the default slog handler. verbose enables debug logging,
// which also turns on raw HTTP transcript output in instrumented
// resty clients.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
