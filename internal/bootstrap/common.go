package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type operation struct {
	name string
	fn   func(ctx context.Context) error
}

// gracefulShutdown waits for a termination signal and then runs the cleanup
// operations strictly in order: intake has to stop before ingestion, and
// ingestion before the store closes, so nothing writes to a closed cache.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops []operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)

		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logrus.Info("shutting down")

		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
			os.Exit(0)
		})

		defer timeoutFunc.Stop()

		for _, op := range ops {
			logrus.Info(fmt.Sprintf("cleaning up: %s", op.name))
			if err := op.fn(ctx); err != nil {
				logrus.Error(fmt.Sprintf("%s: clean up failed: %s", op.name, err.Error()))
				continue
			}

			logrus.Info(fmt.Sprintf("%s was shutdown gracefully", op.name))
		}

		close(wait)
	}()

	return wait
}
