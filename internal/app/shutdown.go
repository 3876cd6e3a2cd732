package app

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Stopper is a scheduler that can be stopped; Stop waits for in-flight work.
type Stopper interface {
	Stop()
}

// Closer releases a held resource.
type Closer interface {
	Close() error
}

// Shutdown stops all schedulers, then closes the game database pool, then the
// primary store. Later steps still run when an earlier close fails.
func Shutdown(logger *logrus.Entry, schedulers []Stopper, gamePool Closer, primary Closer) error {
	logger.Info("Shutting down...")
	for _, s := range schedulers {
		if s != nil {
			s.Stop()
		}
	}
	var errs []error
	if gamePool != nil {
		if err := gamePool.Close(); err != nil {
			logger.WithError(err).Error("Failed to close game database pool")
			errs = append(errs, err)
		}
	}
	if primary != nil {
		if err := primary.Close(); err != nil {
			logger.WithError(err).Error("Failed to close primary database")
			errs = append(errs, err)
		}
	}
	logger.Info("Shutdown complete")
	return errors.Join(errs...)
}
