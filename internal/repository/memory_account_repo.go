package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"user-auth/internal/domain"
)

// MemoryAccountRepository guarda cuentas en memoria. Pensado para desarrollo y tests.
type MemoryAccountRepository struct {
	mu               sync.Mutex
	accounts         map[string]domain.Account
	accountEmails    map[string]string
	accountUsernames map[string]string
	pending          map[string]domain.PendingSignup
	pendingUsernames map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts:         make(map[string]domain.Account),
		accountEmails:    make(map[string]string),
		accountUsernames: make(map[string]string),
		pending:          make(map[string]domain.PendingSignup),
		pendingUsernames: make(map[string]string),
	}
}

func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(r.accountEmails[email])
}

func (r *MemoryAccountRepository) FindByUsername(_ context.Context, username string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(r.accountUsernames[username])
}

func (r *MemoryAccountRepository) FindByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(id)
}

func (r *MemoryAccountRepository) lookup(id string) (domain.Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, ErrNotFound
	}
	acc.Bio = copyBio(acc.Bio)
	return acc, nil
}

func (r *MemoryAccountRepository) FindPending(_ context.Context, email string) (domain.PendingSignup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[email]
	if !ok {
		return domain.PendingSignup{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryAccountRepository) InsertPending(_ context.Context, pending domain.PendingSignup, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accountEmails[pending.Email]; ok {
		return fmt.Errorf("%w: email", ErrConflict)
	}
	if _, ok := r.accountUsernames[pending.Username]; ok {
		return fmt.Errorf("%w: username", ErrConflict)
	}
	if p, ok := r.pending[pending.Email]; ok {
		if !p.Expired(now) {
			return fmt.Errorf("%w: email", ErrConflict)
		}
		r.deletePendingLocked(p.Email)
	}
	if owner, ok := r.pendingUsernames[pending.Username]; ok {
		if p, ok := r.pending[owner]; ok && !p.Expired(now) {
			return fmt.Errorf("%w: username", ErrConflict)
		}
		r.deletePendingLocked(owner)
		delete(r.pendingUsernames, pending.Username)
	}

	r.pending[pending.Email] = pending
	r.pendingUsernames[pending.Username] = pending.Email
	return nil
}

func (r *MemoryAccountRepository) DeletePending(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletePendingLocked(email)
	return nil
}

func (r *MemoryAccountRepository) deletePendingLocked(email string) {
	p, ok := r.pending[email]
	if !ok {
		return
	}
	delete(r.pending, email)
	if r.pendingUsernames[p.Username] == email {
		delete(r.pendingUsernames, p.Username)
	}
}

func (r *MemoryAccountRepository) Promote(_ context.Context, checked domain.PendingSignup, accountID string, now time.Time) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := checked.Email
	p, ok := r.pending[email]
	if !ok || p.OtpCodeHash != checked.OtpCodeHash || p.Expired(now) {
		return domain.Account{}, ErrNotFound
	}
	if _, ok := r.accountEmails[p.Email]; ok {
		return domain.Account{}, fmt.Errorf("%w: email", ErrConflict)
	}
	if _, ok := r.accountUsernames[p.Username]; ok {
		return domain.Account{}, fmt.Errorf("%w: username", ErrConflict)
	}
	if _, ok := r.accounts[accountID]; ok {
		return domain.Account{}, fmt.Errorf("%w: id", ErrConflict)
	}

	acc := domain.Account{
		ID:           accountID,
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		CreatedAt:    now,
	}
	r.accounts[acc.ID] = acc
	r.accountEmails[acc.Email] = acc.ID
	r.accountUsernames[acc.Username] = acc.ID
	r.deletePendingLocked(email)
	return acc, nil
}

func (r *MemoryAccountRepository) UpdateBio(_ context.Context, accountID string, bio *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.Bio = copyBio(bio)
	r.accounts[accountID] = acc
	return nil
}
