package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"user-auth/internal/domain"
	"user-auth/internal/repository"
)

func TestGenerateOTPCodeFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTPCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !isValidOTPCode(code) {
			t.Fatalf("expected 6 digit code, got %q", code)
		}
	}
}

func TestHashOTPRoundTrip(t *testing.T) {
	hash, err := hashOTP("012345")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if strings.Contains(hash, "012345") {
		t.Fatalf("hash must not contain the code")
	}
	if !verifyOTP("012345", hash) {
		t.Fatalf("expected code to verify")
	}
	if verifyOTP("12345", hash) || verifyOTP("012346", hash) {
		t.Fatalf("expected other codes to fail")
	}
	if verifyOTP("012345", "garbage") {
		t.Fatalf("expected malformed hash to fail")
	}
}

func TestIsValidOTPCode(t *testing.T) {
	valid := []string{"000000", "999999", "482913"}
	invalid := []string{"", "12345", "1234567", "12a456", " 12345", "١٢٣٤٥٦"}
	for _, c := range valid {
		if !isValidOTPCode(c) {
			t.Fatalf("expected %q valid", c)
		}
	}
	for _, c := range invalid {
		if isValidOTPCode(c) {
			t.Fatalf("expected %q invalid", c)
		}
	}
}

func newOTPFixture(t *testing.T) (*OTPManager, *repository.MemoryAccountRepository, time.Time) {
	t.Helper()
	repo := repository.NewMemoryAccountRepository()
	m := NewOTPManager(repo, 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = fixedNow(now)
	m.generate = func() (string, error) { return "482913", nil }
	return m, repo, now
}

func storePending(t *testing.T, repo repository.AccountRepository, c Challenge, now time.Time) {
	t.Helper()
	err := repo.InsertPending(context.Background(), domain.PendingSignup{
		Email:        "alice@x.com",
		Username:     "alice",
		PasswordHash: "verifier",
		OtpCodeHash:  c.Hash,
		OtpExpiresAt: c.ExpiresAt,
		CreatedAt:    now,
	}, now)
	if err != nil {
		t.Fatalf("insert pending: %v", err)
	}
}

func TestOTPManagerIssue(t *testing.T) {
	m, _, now := newOTPFixture(t)
	c, err := m.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if c.Code != "482913" {
		t.Fatalf("expected generated code, got %s", c.Code)
	}
	if !c.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected 5 minute window, got %v", c.ExpiresAt.Sub(now))
	}
	if !verifyOTP(c.Code, c.Hash) {
		t.Fatalf("expected hash to match code")
	}
}

func TestOTPManagerCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		m, _, _ := newOTPFixture(t)
		if _, err := m.Check(ctx, "alice@x.com", "482913"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		m, repo, now := newOTPFixture(t)
		c, _ := m.Issue()
		storePending(t, repo, c, now)

		p, err := m.Check(ctx, "alice@x.com", "482913")
		if err != nil {
			t.Fatalf("expected accepted, got %v", err)
		}
		if p.Username != "alice" {
			t.Fatalf("unexpected pending: %+v", p)
		}
	})

	t.Run("accepted at exact expiry", func(t *testing.T) {
		m, repo, now := newOTPFixture(t)
		c, _ := m.Issue()
		storePending(t, repo, c, now)
		m.now = fixedNow(c.ExpiresAt)
		if _, err := m.Check(ctx, "alice@x.com", "482913"); err != nil {
			t.Fatalf("expected accepted at expiry instant, got %v", err)
		}
	})

	t.Run("mismatch keeps pending", func(t *testing.T) {
		m, repo, now := newOTPFixture(t)
		c, _ := m.Issue()
		storePending(t, repo, c, now)

		for _, code := range []string{"000000", "48291", " 482913", "abcdef"} {
			if _, err := m.Check(ctx, "alice@x.com", code); !errors.Is(err, ErrOTPMismatch) {
				t.Fatalf("expected ErrOTPMismatch for %q, got %v", code, err)
			}
		}
		if _, err := repo.FindPending(ctx, "alice@x.com"); err != nil {
			t.Fatalf("expected pending to survive mismatch, got %v", err)
		}
	})

	t.Run("expired purges pending", func(t *testing.T) {
		m, repo, now := newOTPFixture(t)
		c, _ := m.Issue()
		storePending(t, repo, c, now)
		m.now = fixedNow(c.ExpiresAt.Add(time.Second))

		if _, err := m.Check(ctx, "alice@x.com", "482913"); !errors.Is(err, ErrOTPExpired) {
			t.Fatalf("expected ErrOTPExpired, got %v", err)
		}
		if _, err := repo.FindPending(ctx, "alice@x.com"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected pending purged, got %v", err)
		}
		if _, err := m.Check(ctx, "alice@x.com", "482913"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after purge, got %v", err)
		}
	})

	t.Run("store failure is transient", func(t *testing.T) {
		m := NewOTPManager(&failingStore{err: errors.New("connection reset")}, 0)
		if _, err := m.Check(ctx, "alice@x.com", "482913"); !errors.Is(err, ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
	})
}
