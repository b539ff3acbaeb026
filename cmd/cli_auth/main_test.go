package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"user-auth/internal/password"
	"user-auth/internal/repository"
	"user-auth/internal/service"
)

type fixedCodeSender struct{}

func (fixedCodeSender) SendVerificationOTP(context.Context, string, string, time.Time) error {
	return nil
}

func newTestCLI(t *testing.T, input string) (*authCLI, *bytes.Buffer, *repository.MemoryAccountRepository) {
	t.Helper()
	hasher, err := password.NewHasher(password.Params{MemoryKB: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	repo := repository.NewMemoryAccountRepository()
	svc := service.NewAccountService(zap.NewNop(), repo, hasher, nil, service.NewTokenService("secret", "", 0), fixedCodeSender{})
	out := &bytes.Buffer{}
	return &authCLI{svc: svc, reader: bufio.NewReader(strings.NewReader(input)), out: out}, out, repo
}

func TestCLISignupCreatesPending(t *testing.T) {
	cli, out, repo := newTestCLI(t, "1\nalice\nalice@x.com\ns3cret!\n7\n")
	if err := cli.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Codigo enviado") {
		t.Fatalf("expected confirmation, got %q", out.String())
	}
	if _, err := repo.FindPending(context.Background(), "alice@x.com"); err != nil {
		t.Fatalf("expected pending signup: %v", err)
	}
}

func TestCLIProfileWithoutLoginReportsError(t *testing.T) {
	cli, out, _ := newTestCLI(t, "4\n7\n")
	if err := cli.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Error: unauthenticated") {
		t.Fatalf("expected unauthenticated error, got %q", out.String())
	}
}

func TestCLIStopsOnEOF(t *testing.T) {
	cli, _, _ := newTestCLI(t, "")
	if err := cli.run(context.Background()); err == nil {
		t.Fatalf("expected EOF error")
	}
}
