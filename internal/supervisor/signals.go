//go:build unix

package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SignalHandlers are the callbacks the daemon wires to each recognized
// signal per spec.md §4.10.
type SignalHandlers struct {
	// Shutdown is invoked on SIGTERM/SIGINT: stop accepting new work,
	// drain the executor batch, flush the logger, release the ballast pool
	// lock, write a final state snapshot.
	Shutdown func()
	// Reload is invoked on SIGHUP: re-read the config file and swap
	// thresholds copy-on-write; in-flight work keeps using old thresholds.
	Reload func()
	// ForceScan is invoked on SIGUSR1: enqueue an immediate scan request,
	// bypassing the VOI scheduler.
	ForceScan func()
}

// WatchSignals registers OS signal handlers and dispatches to the given
// callbacks until stop() is called. Returns a function to unregister.
func WatchSignals(logger *zap.Logger, h SignalHandlers) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGTERM, syscall.SIGINT:
					logger.Info("received shutdown signal", zap.String("signal", sig.String()))
					if h.Shutdown != nil {
						h.Shutdown()
					}
				case syscall.SIGHUP:
					logger.Info("received reload signal")
					if h.Reload != nil {
						h.Reload()
					}
				case syscall.SIGUSR1:
					logger.Info("received force-scan signal")
					if h.ForceScan != nil {
						h.ForceScan()
					}
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
