package repository

import (
	"context"
	"errors"
	"time"

	"user-auth/internal/domain"
)

var (
	// ErrNotFound se devuelve cuando no existe el registro pedido.
	ErrNotFound = errors.New("record not found")
	// ErrConflict se devuelve cuando el email o el username ya están tomados.
	ErrConflict = errors.New("record already exists")
)

// AccountRepository define el contrato de persistencia para signups pendientes y cuentas.
//
// Las implementaciones deben ser seguras para uso concurrente: InsertPending
// garantiza unicidad de email y username entre ambas familias de registros y
// Promote consume un signup pendiente a lo sumo una vez, y solo si sigue siendo
// el mismo que se verificó.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	FindByUsername(ctx context.Context, username string) (domain.Account, error)
	FindByID(ctx context.Context, id string) (domain.Account, error)

	FindPending(ctx context.Context, email string) (domain.PendingSignup, error)
	// InsertPending purga antes los pendientes cuyo OTP venció respecto a now.
	InsertPending(ctx context.Context, pending domain.PendingSignup, now time.Time) error
	DeletePending(ctx context.Context, email string) error
	// Promote elimina el pendiente de checked.Email solo si conserva el mismo
	// OtpCodeHash y su OTP no venció respecto a now; si no, ErrNotFound.
	Promote(ctx context.Context, checked domain.PendingSignup, accountID string, now time.Time) (domain.Account, error)

	// UpdateBio con bio nil borra el campo.
	UpdateBio(ctx context.Context, accountID string, bio *string) error
}

func copyBio(bio *string) *string {
	if bio == nil {
		return nil
	}
	v := *bio
	return &v
}
