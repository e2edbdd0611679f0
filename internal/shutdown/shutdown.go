package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)

	return gracefulShutdown
}

// ListenForShutdown blocks until a termination signal arrives or ctx is done.
// signalHandler runs only for signals; done is closed in both cases.
func ListenForShutdown(
	ctx context.Context,
	signalChan chan os.Signal,
	done chan bool,
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	select {
	case sig := <-signalChan:
		l.Sugar().Infow("Caught signal", zap.String("signal", sig.String()))

		signalHandler()

		if timeToWait > 0 {
			l.Sugar().Infow("Waiting before exit", zap.Duration("wait", timeToWait))
			time.Sleep(timeToWait)
		}
	case <-ctx.Done():
	}

	l.Sugar().Infow("Exiting")
	close(done)
}

// WithSignalCancel returns a context cancelled on SIGINT or SIGTERM.
func WithSignalCancel(parent context.Context, l *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalChan := CreateGracefulShutdownChannel()
	go func() {
		defer signal.Stop(signalChan)
		select {
		case sig := <-signalChan:
			l.Sugar().Infow("Caught signal, stopping after the current cycle", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
