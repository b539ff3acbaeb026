package email

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sender define la interfaz para envío de correos de verificación.
type Sender interface {
	SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// LogSender escribe el código en el log en lugar de enviarlo. Solo para desarrollo.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationOTP(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	s.logger.Info("verification otp",
		zap.String("to", toEmail),
		zap.String("code", code),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
