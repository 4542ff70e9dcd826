package notification

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPMessage(t *testing.T) {
	msg := OTPMessage("+989121234567", "042917", 5*time.Minute)
	assert.Equal(t, KindOTP, msg.Kind)
	assert.Equal(t, "+989121234567", msg.Destination)
	assert.Contains(t, msg.Body, "042917")
	assert.Contains(t, msg.Body, "5 minutes")
}

func TestLoggerNotifierWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)), true)

	require.NoError(t, n.Send(context.Background(), OTPMessage("+989121234567", "111222", time.Minute)))
	assert.Contains(t, buf.String(), `"destination":"+989121234567"`)
	assert.Contains(t, buf.String(), `"component":"notification"`)
	assert.Contains(t, buf.String(), "111222")

	var nilNotifier *LoggerNotifier
	assert.NoError(t, nilNotifier.Send(context.Background(), Message{}))
}

func TestLoggerNotifierRedactsCodes(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)), false)

	require.NoError(t, n.Send(context.Background(), OTPMessage("+989121234567", "111222", time.Minute)))
	assert.NotContains(t, buf.String(), "111222")
	assert.Contains(t, buf.String(), redactedBody)
	assert.Contains(t, buf.String(), `"destination":"+989121234567"`)
}
