// Package notification delivers out-of-band messages such as one-time codes.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bazaarino/bazaar/internal/logging"
)

const (
	// KindOTP is a one-time verification code sent to a phone.
	KindOTP = "otp"

	redactedBody = "[redacted]"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// OTPMessage renders the SMS carrying code for phone.
func OTPMessage(phone, code string, ttl time.Duration) Message {
	return Message{
		Kind:        KindOTP,
		Destination: phone,
		Body:        fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(ttl.Minutes())),
	}
}

// LoggerNotifier writes notifications to the logger instead of an SMS gateway.
// One-time codes are redacted unless revealCodes is set.
type LoggerNotifier struct {
	logger      *slog.Logger
	revealCodes bool
}

// NewLoggerNotifier constructs a logging notifier. revealCodes should only be
// true in development, where the log is the delivery channel.
func NewLoggerNotifier(logger *slog.Logger, revealCodes bool) *LoggerNotifier {
	logger = logging.Component(logger, "notification")
	if !revealCodes {
		logger.Warn("no SMS gateway configured, one-time codes are redacted and not delivered")
	}
	return &LoggerNotifier{logger: logger, revealCodes: revealCodes}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	body := message.Body
	if message.Kind == KindOTP && !n.revealCodes {
		body = redactedBody
	}
	n.logger.Info("notification", slog.String("kind", message.Kind), slog.String("destination", message.Destination), slog.String("body", body))
	return nil
}
