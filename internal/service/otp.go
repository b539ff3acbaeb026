package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"user-auth/internal/domain"
	"user-auth/internal/repository"
)

const (
	defaultOTPTTL = 5 * time.Minute
	otpDigits     = 6
)

// PendingStore es la parte del store que usa el OTPManager.
type PendingStore interface {
	FindPending(ctx context.Context, email string) (domain.PendingSignup, error)
	DeletePending(ctx context.Context, email string) error
}

// Challenge es un OTP recién emitido. Code solo viaja por email; se persiste Hash.
type Challenge struct {
	Code      string
	Hash      string
	ExpiresAt time.Time
}

// OTPManager emite y valida códigos de un solo uso ligados a un signup pendiente.
type OTPManager struct {
	pending  PendingStore
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewOTPManager(pending PendingStore, ttl time.Duration) *OTPManager {
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	return &OTPManager{
		pending:  pending,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateOTPCode,
	}
}

func (m *OTPManager) TTL() time.Duration {
	return m.ttl
}

// Issue genera un código de 6 dígitos con su hash y vencimiento.
func (m *OTPManager) Issue() (Challenge, error) {
	code, err := m.generate()
	if err != nil {
		return Challenge{}, err
	}
	hash, err := hashOTP(code)
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{
		Code:      code,
		Hash:      hash,
		ExpiresAt: m.now().Add(m.ttl),
	}, nil
}

// Check valida code contra el pendiente de email. Un pendiente vencido se purga.
func (m *OTPManager) Check(ctx context.Context, email, code string) (domain.PendingSignup, error) {
	pending, err := m.pending.FindPending(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PendingSignup{}, ErrNotFound
		}
		return domain.PendingSignup{}, transient(err)
	}

	if pending.Expired(m.now()) {
		if err := m.pending.DeletePending(ctx, email); err != nil {
			return domain.PendingSignup{}, transient(err)
		}
		return domain.PendingSignup{}, ErrOTPExpired
	}

	if !isValidOTPCode(code) || !verifyOTP(code, pending.OtpCodeHash) {
		return domain.PendingSignup{}, ErrOTPMismatch
	}
	return pending, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashOTP(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	sum := sha256.Sum256([]byte(saltStr + ":" + code))
	return saltStr + ":" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

func verifyOTP(code, stored string) bool {
	saltStr, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	sum := sha256.Sum256([]byte(saltStr + ":" + code))
	got := base64.StdEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func isValidOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
