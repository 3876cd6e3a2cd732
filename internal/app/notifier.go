package app

import (
	"context"
	"errors"

	"npc_respawn_tracker/internal/domain/npc"

	"github.com/sirupsen/logrus"
)

// NamedNotifier is a delivery sink with a name for logging.
type NamedNotifier struct {
	Name     string
	Notifier npc.Notifier
}

// FanOutNotifier delivers to every configured sink. Delivery counts as done when
// at least one sink succeeds; failed sinks are logged.
type FanOutNotifier struct {
	sinks  []NamedNotifier
	logger *logrus.Entry
}

func NewFanOutNotifier(logger *logrus.Entry, sinks ...NamedNotifier) *FanOutNotifier {
	return &FanOutNotifier{sinks: sinks, logger: logger}
}

// Len reports how many sinks are configured.
func (f *FanOutNotifier) Len() int {
	return len(f.sinks)
}

func (f *FanOutNotifier) Deliver(ctx context.Context, n npc.Notification) error {
	if len(f.sinks) == 0 {
		f.logger.WithField("definition_id", n.DefinitionID).Warn("No notification sinks configured; dropping notification")
		return nil
	}
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Notifier.Deliver(ctx, n); err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"sink":          sink.Name,
				"definition_id": n.DefinitionID,
				"kind":          n.Kind,
			}).Warn("Notification sink failed")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f.sinks) {
		return errors.Join(errs...)
	}
	return nil
}
