package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/congo-pay/wallet_ledger/internal/metrics"
)

// SubjectPrefix is prepended to the message kind to form the NATS subject.
const SubjectPrefix = "wallet.events."

// Publisher is the subset of *nats.Conn used to emit events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSNotifier publishes messages as JSON on wallet.events.<kind>.
type NATSNotifier struct {
	pub     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNATSNotifier wraps a connected publisher.
func NewNATSNotifier(pub Publisher, logger *slog.Logger, m *metrics.Metrics) *NATSNotifier {
	return &NATSNotifier{pub: pub, logger: logger, metrics: m}
}

// Send publishes the message.
func (n *NATSNotifier) Send(_ context.Context, message Message) error {
	subject := SubjectPrefix + message.Kind
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	start := time.Now()
	err = n.pub.Publish(subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	n.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("published notification", "subject", subject, "destination", message.Destination)
	return nil
}
