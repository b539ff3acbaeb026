package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"user-auth/internal/domain"
)

const pgUniqueViolation = "23505"

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const selectAccount = `
	SELECT id, username, email, password_hash, bio, created_at
	FROM accounts
`

func (r *PgAccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.findAccount(ctx, selectAccount+"WHERE email = $1", email)
}

func (r *PgAccountRepository) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.findAccount(ctx, selectAccount+"WHERE username = $1", username)
}

func (r *PgAccountRepository) FindByID(ctx context.Context, id string) (domain.Account, error) {
	return r.findAccount(ctx, selectAccount+"WHERE id = $1", id)
}

func (r *PgAccountRepository) findAccount(ctx context.Context, query string, arg string) (domain.Account, error) {
	var a domain.Account
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Bio,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	return a, err
}

func (r *PgAccountRepository) FindPending(ctx context.Context, email string) (domain.PendingSignup, error) {
	const query = `
		SELECT email, username, password_hash, otp_code_hash, otp_expires_at, created_at
		FROM pending_signups
		WHERE email = $1
	`
	var p domain.PendingSignup
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&p.Email,
		&p.Username,
		&p.PasswordHash,
		&p.OtpCodeHash,
		&p.OtpExpiresAt,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingSignup{}, ErrNotFound
	}
	return p, err
}

func (r *PgAccountRepository) InsertPending(ctx context.Context, pending domain.PendingSignup, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Email y username viven en dos tablas; los locks serializan signups
	// que compiten por cualquiera de las dos claves.
	keys := []string{"email:" + pending.Email, "username:" + pending.Username}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return err
		}
	}

	const purge = `
		DELETE FROM pending_signups
		WHERE (email = $1 OR username = $2) AND otp_expires_at < $3
	`
	if _, err := tx.Exec(ctx, purge, pending.Email, pending.Username, now); err != nil {
		return err
	}

	const taken = `
		SELECT
			EXISTS (SELECT 1 FROM accounts WHERE email = $1)
				OR EXISTS (SELECT 1 FROM pending_signups WHERE email = $1),
			EXISTS (SELECT 1 FROM accounts WHERE username = $2)
				OR EXISTS (SELECT 1 FROM pending_signups WHERE username = $2)
	`
	var emailTaken, usernameTaken bool
	if err := tx.QueryRow(ctx, taken, pending.Email, pending.Username).Scan(&emailTaken, &usernameTaken); err != nil {
		return err
	}
	if emailTaken {
		return fmt.Errorf("%w: email", ErrConflict)
	}
	if usernameTaken {
		return fmt.Errorf("%w: username", ErrConflict)
	}

	const insert = `
		INSERT INTO pending_signups (email, username, password_hash, otp_code_hash, otp_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert,
		pending.Email,
		pending.Username,
		pending.PasswordHash,
		pending.OtpCodeHash,
		pending.OtpExpiresAt,
		pending.CreatedAt,
	); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}

func (r *PgAccountRepository) DeletePending(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_signups WHERE email = $1`, email)
	return err
}

func (r *PgAccountRepository) Promote(ctx context.Context, checked domain.PendingSignup, accountID string, now time.Time) (domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const take = `
		DELETE FROM pending_signups
		WHERE email = $1 AND otp_code_hash = $2 AND otp_expires_at >= $3
		RETURNING email, username, password_hash
	`
	acc := domain.Account{ID: accountID, CreatedAt: now}
	err = tx.QueryRow(ctx, take, checked.Email, checked.OtpCodeHash, now).Scan(&acc.Email, &acc.Username, &acc.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}

	const insert = `
		INSERT INTO accounts (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insert,
		acc.ID,
		acc.Username,
		acc.Email,
		acc.PasswordHash,
		acc.CreatedAt,
	); err != nil {
		return domain.Account{}, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func (r *PgAccountRepository) UpdateBio(ctx context.Context, accountID string, bio *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET bio = $2 WHERE id = $1`, accountID, bio)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
