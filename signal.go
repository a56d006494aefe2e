package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional exit status after SIGINT.
const exitInterrupted = 130

var interruptSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// interruptContext returns a context canceled by the first SIGINT or
// SIGTERM, which stops in-flight requests and retry backoffs. After that a
// second signal exits the process.
func interruptContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, interruptSignals...)

	go func() {
		<-ctx.Done()
		stop()

		// Parent canceled: nothing was interrupted.
		if parent.Err() != nil {
			return
		}

		logger.Info("interrupted, canceling requests")

		again := make(chan os.Signal, 1)
		signal.Notify(again, interruptSignals...)

		defer signal.Stop(again)

		select {
		case sig := <-again:
			logger.Warn("second interrupt, exiting", slog.String("signal", sig.String()))
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx
}
