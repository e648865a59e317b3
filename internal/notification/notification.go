package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindFunded indicates a wallet was credited from an external source.
	KindFunded = "funded"
	// KindTransferred indicates funds moved between two wallets.
	KindTransferred = "transferred"
	// KindWithdrawn indicates a wallet was debited to an external sink.
	KindWithdrawn = "withdrawn"
	// KindReconciliationRequired flags a failed compensating rollback.
	KindReconciliationRequired = "reconciliation_required"
)

// Message describes a notification payload. Destination is the wallet the
// event concerns.
type Message struct {
	Kind        string         `json:"kind"`
	Destination string         `json:"destination"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger. Reconciliation notices are
// logged at error level so log-based alerting picks them up.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.Kind == KindReconciliationRequired {
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"body", message.Body,
		"data", message.Data)
	return nil
}

// Multi fans a message out to several notifiers and joins their errors.
type Multi []Notifier

// Send delivers to every notifier even when one fails.
func (m Multi) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
