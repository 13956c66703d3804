// Package notify hands push notifications to an external delivery system.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message is a single push notification addressed to one device token.
type Message struct {
	Token    string            `json:"token"`
	Platform string            `json:"platform"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

// Sender delivers push messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// LogSender only records messages. It stands in for a real gateway in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("push notification",
		zap.String("platform", msg.Platform),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	)
	return nil
}

// Close is a no-op.
func (s *LogSender) Close() error { return nil }
