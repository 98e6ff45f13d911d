// Package signals turns SIGINT and SIGTERM into context cancellation.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Shutdown are the signals that stop a run
var Shutdown = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

var stopNotify = signal.Stop

// SetupSignalHandlerWithCallback returns a context derived from parent that is
// cancelled on the first shutdown signal, after callback has run. The
// registration is released after that signal, so a second one gets the
// default handling. The stop function releases it early.
func SetupSignalHandlerWithCallback(parent context.Context, callback func(os.Signal)) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, Shutdown...)

	go func() {
		select {
		case sig := <-sigChan:
			if callback != nil {
				callback(sig)
			}
			cancel()
			stopNotify(sigChan)
		case <-ctx.Done():
		}
	}()

	stop := func() {
		stopNotify(sigChan)
		cancel()
	}
	return ctx, stop
}
