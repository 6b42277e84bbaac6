package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mudler/xlog"
)

var (
	signalHandlers      []func()
	signalHandlersMutex sync.Mutex
	signalHandlersOnce  sync.Once
	exit                = os.Exit
)

// RegisterGracefulTerminationHandler queues fn to run on SIGINT or SIGTERM.
// Handlers run in reverse registration order, so resources are released
// before whatever they depend on, then the process exits.
func RegisterGracefulTerminationHandler(fn func()) {
	signalHandlersOnce.Do(func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-c
			xlog.Info("Received termination signal, shutting down", "signal", sig.String())
			runHandlers()
			exit(0)
		}()
	})

	signalHandlersMutex.Lock()
	defer signalHandlersMutex.Unlock()
	signalHandlers = append(signalHandlers, fn)
}

func runHandlers() {
	signalHandlersMutex.Lock()
	handlers := make([]func(), len(signalHandlers))
	copy(handlers, signalHandlers)
	signalHandlersMutex.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
