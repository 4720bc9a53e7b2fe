package notification

import (
	"context"
	"log/slog"
)

const (
	// KindWalletProvisioned indicates a completed wallet provisioning.
	KindWalletProvisioned = "wallet_provisioned"
	// KindPaymentSent indicates a submitted ledger payment.
	KindPaymentSent = "payment_sent"
)

// Message describes a notification payload. Reference carries the
// domain-specific correlation value, a public key or transaction hash.
type Message struct {
	Kind        string
	Destination string
	Reference   string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"reference", message.Reference,
		"body", message.Body)
	return nil
}
