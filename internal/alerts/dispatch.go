package alerts

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier delivers fired threshold alerts to an outside channel. Delivery
// is best-effort and additive: a failing notifier never blocks or fails the
// analysis that produced the alerts.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// Dispatcher fans fired alerts out to all configured notifiers.
type Dispatcher struct {
	notifiers []Notifier
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

// Dispatch sends alerts to every notifier, logging failures instead of
// returning them.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, alerts); err != nil {
			log.Error().Err(err).Int("alerts", len(alerts)).Msg("Failed to dispatch alerts")
		}
	}
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, alerts []Alert) error {
	for _, alert := range alerts {
		event := log.Warn()
		if alert.Level == LevelHigh {
			event = log.Error()
		}
		event.
			Str("code", string(alert.Code)).
			Str("level", string(alert.Level)).
			Msg(alert.Message)
	}
	return nil
}
