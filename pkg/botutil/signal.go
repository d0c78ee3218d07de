package botutil

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
)

// ShutdownContext returns a context that is cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context, log *slog.Logger, name string) (context.Context, context.CancelFunc) {
	log.Info(name + " is running. Press Ctrl+C to exit.")
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
