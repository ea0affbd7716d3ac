// Package cli holds the process plumbing shared by scanforge commands:
// signal handling, logger construction and flag types.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanforge/scanforge/pkg/defaults"
)

// SignalContext returns a context derived from parent that is cancelled on
// SIGINT/SIGTERM. Running scanners are killed through the cancelled
// context. A second signal inside gracePeriod exits the process with
// defaults.ExitInterrupted.
//
//	ctx, stop := cli.SignalContext(context.Background(), duration.ShutdownGrace, logger)
//	defer stop()
func SignalContext(parent context.Context, gracePeriod time.Duration, logger *slog.Logger) (context.Context, context.CancelFunc) {
	return signalContext(parent, gracePeriod, logger, nil, nil)
}

// signalContext lets tests inject the signal channel and exit function.
func signalContext(
	parent context.Context,
	gracePeriod time.Duration,
	logger *slog.Logger,
	sigChan chan os.Signal,
	exitFn func(int),
) (context.Context, context.CancelFunc) {
	if logger == nil {
		logger = slog.Default()
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	ctx, cancel := context.WithCancel(parent)

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()
		select {
		case sig := <-sigChan:
			logger.Warn("interrupt received, stopping scanners",
				slog.String("signal", sig.String()),
				slog.Duration("grace", gracePeriod))
			cancel()
		case <-ctx.Done():
			return
		}

		timer := time.NewTimer(gracePeriod)
		defer timer.Stop()
		select {
		case <-sigChan:
			logger.Error("second interrupt, exiting immediately")
			exitFn(defaults.ExitInterrupted)
		case <-timer.C:
		}
	}()

	return ctx, cancel
}
