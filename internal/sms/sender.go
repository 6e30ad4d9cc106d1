// Package sms delivers text messages to phone numbers.
package sms

import (
	"context"

	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/logger"
)

// Sender delivers a message body to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender is a development Sender that only logs the attempt.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a Sender that never contacts a provider.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the masked recipient and message length. The body is not logged
// because it carries the code.
func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.log.Info("sms suppressed in dev mode", logger.Phone(to), zap.Int("body_len", len(body)))
	return nil
}
