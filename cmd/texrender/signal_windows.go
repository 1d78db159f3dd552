//go:build windows

package main

import (
	"context"
	"os"
	"os/signal"
)

// notifyContext returns the context shared by build and serve, canceled on
// Ctrl-C. Windows has no SIGTERM to watch.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
