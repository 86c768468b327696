// Package sms delivers one-time codes by text message.
package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/phone"
)

// ErrNotConfigured is returned when no SMS provider credentials are set.
// Callers treat it as "deliver the code some other way", not as a failure
// of the code itself.
var ErrNotConfigured = errors.New("sms delivery not configured")

// Sender delivers a text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
	Configured() bool
}

// OTPMessage renders the verification text sent to users.
func OTPMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your CivicHero verification code is: %s. This code expires in %d minutes.",
		code, int(ttl.Minutes()))
}

// LogSender is the development sender: it logs that a message would have
// been sent and reports ErrNotConfigured so callers fall back.
type LogSender struct {
	logger *log.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *log.Logger) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger.WithPrefix("sms")}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.Warn("SMS provider not configured, message not sent", "to", phone.Mask(to))
	return ErrNotConfigured
}

// Configured implements Sender.
func (s *LogSender) Configured() bool {
	return false
}
