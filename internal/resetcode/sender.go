package resetcode

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a code to a mobile number (SMS gateway, push, ...).
type Sender interface {
	Send(ctx context.Context, mobileNumber, code string) error
}

// LogSender writes codes to the log. For local development only.
type LogSender struct {
	Logger *zap.SugaredLogger
}

func (s LogSender) Send(ctx context.Context, mobileNumber, code string) error {
	s.Logger.Infow("reset code issued", "mobile", maskMobile(mobileNumber), "code", code)
	return nil
}

// maskMobile keeps the last 4 digits.
func maskMobile(m string) string {
	if len(m) <= 4 {
		return m
	}
	b := []byte(m)
	for i := 0; i < len(b)-4; i++ {
		b[i] = '*'
	}
	return string(b)
}
