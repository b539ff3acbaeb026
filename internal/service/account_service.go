package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"user-auth/internal/domain"
	"user-auth/internal/email"
	"user-auth/internal/repository"
)

const maxBioLength = 1000

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// PasswordHasher convierte contraseñas en verificadores y los comprueba.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, verifier string) bool
}

// AccountService coordina el ciclo de vida de una cuenta:
// signup pendiente -> verificación por OTP -> cuenta -> sesión -> perfil.
// No guarda estado mutable propio; todo vive en el store.
type AccountService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	hasher      PasswordHasher
	otp         *OTPManager
	tokens      *TokenService
	emailSender email.Sender

	now   func() time.Time
	newID func() string

	dummyOnce     sync.Once
	dummyVerifier string
}

func NewAccountService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	hasher PasswordHasher,
	otp *OTPManager,
	tokens *TokenService,
	emailSender email.Sender,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if otp == nil {
		otp = NewOTPManager(accounts, defaultOTPTTL)
	}
	return &AccountService{
		logger:      logger,
		accounts:    accounts,
		hasher:      hasher,
		otp:         otp,
		tokens:      tokens,
		emailSender: emailSender,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// SignupInput es el contrato tipado de un pedido de registro.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

func (in SignupInput) normalized() SignupInput {
	return SignupInput{
		Username: strings.TrimSpace(in.Username),
		Email:    normalizeEmail(in.Email),
		Password: in.Password,
	}
}

func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.RuneLength(3, 64), validation.Match(usernamePattern)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(1, 1024)),
	)
}

// SignupRequest crea un signup pendiente y envía el OTP por email.
// Si el envío falla el pendiente se elimina y se devuelve ErrDispatchFailed.
func (s *AccountService) SignupRequest(ctx context.Context, input SignupInput) error {
	input = input.normalized()
	if err := input.Validate(); err != nil {
		return validationError(err)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return err
	}
	challenge, err := s.otp.Issue()
	if err != nil {
		return err
	}

	now := s.now()
	pending := domain.PendingSignup{
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: passwordHash,
		OtpCodeHash:  challenge.Hash,
		OtpExpiresAt: challenge.ExpiresAt,
		CreatedAt:    now,
	}
	if err := s.accounts.InsertPending(ctx, pending, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Info("signup conflict", zap.Error(err), zap.String("email", input.Email))
			return ErrConflict
		}
		return transient(err)
	}

	if s.emailSender == nil {
		s.discardPending(ctx, input.Email)
		return ErrDispatchFailed
	}
	if err := s.emailSender.SendVerificationOTP(ctx, input.Email, challenge.Code, challenge.ExpiresAt); err != nil {
		s.logger.Warn("send verification otp failed", zap.Error(err), zap.String("email", input.Email))
		s.discardPending(ctx, input.Email)
		return ErrDispatchFailed
	}
	return nil
}

func (s *AccountService) discardPending(ctx context.Context, emailAddr string) {
	// El contexto del request puede estar cancelado; la limpieza no debe depender de él.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.accounts.DeletePending(cleanupCtx, emailAddr); err != nil {
		s.logger.Error("discard pending signup failed", zap.Error(err), zap.String("email", emailAddr))
	}
}

// SignupVerify valida el OTP y promueve el pendiente a cuenta.
func (s *AccountService) SignupVerify(ctx context.Context, emailAddr, code string) (domain.Account, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.Account{}, validationError(errors.New("email: cannot be blank"))
	}

	checked, err := s.otp.Check(ctx, emailAddr, code)
	if err != nil {
		return domain.Account{}, err
	}

	// Promote solo consume el mismo pendiente que se verificó.
	acc, err := s.accounts.Promote(ctx, checked, s.newID(), s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Otro verify ya lo consumió, o venció o fue reemplazado tras el chequeo.
			return domain.Account{}, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return domain.Account{}, ErrConflict
		default:
			return domain.Account{}, transient(err)
		}
	}
	s.logger.Info("account created", zap.String("account_id", acc.ID), zap.String("username", acc.Username))
	return acc, nil
}

// Login devuelve ErrInvalidCredentials tanto para usuario inexistente como
// para contraseña incorrecta.
func (s *AccountService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.Session{}, ErrInvalidCredentials
	}

	acc, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Igualar el costo de una verificación real.
			s.hasher.Verify(password, s.dummyHash())
			return domain.Session{}, ErrInvalidCredentials
		}
		return domain.Session{}, transient(err)
	}
	if !s.hasher.Verify(password, acc.PasswordHash) {
		return domain.Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(Claims{Username: acc.Username, RegisteredClaims: jwt.RegisteredClaims{Subject: acc.ID}}, 0)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   expiresAt,
		AccountID:   acc.ID,
		Username:    acc.Username,
	}, nil
}

// GetProfile valida la sesión y relee la cuenta del store.
func (s *AccountService) GetProfile(ctx context.Context, token string) (domain.Profile, error) {
	claims, err := s.authenticate(token)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.loadProfile(ctx, claims.AccountID())
}

// SetBio guarda text (1 a 1000 caracteres) como bio.
func (s *AccountService) SetBio(ctx context.Context, token, text string) (domain.Profile, error) {
	claims, err := s.authenticate(token)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := validateBio(text); err != nil {
		return domain.Profile{}, err
	}
	return s.updateBio(ctx, claims.AccountID(), &text)
}

// ClearBio elimina la bio; el perfil queda con bio ausente.
func (s *AccountService) ClearBio(ctx context.Context, token string) (domain.Profile, error) {
	claims, err := s.authenticate(token)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.updateBio(ctx, claims.AccountID(), nil)
}

func (s *AccountService) updateBio(ctx context.Context, accountID string, bio *string) (domain.Profile, error) {
	if err := s.accounts.UpdateBio(ctx, accountID, bio); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Profile{}, ErrUnauthenticated
		}
		return domain.Profile{}, transient(err)
	}
	return s.loadProfile(ctx, accountID)
}

func (s *AccountService) loadProfile(ctx context.Context, accountID string) (domain.Profile, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Profile{}, ErrUnauthenticated
		}
		return domain.Profile{}, transient(err)
	}
	return acc.Profile(), nil
}

func (s *AccountService) authenticate(token string) (Claims, error) {
	if s.tokens == nil {
		return Claims{}, ErrUnauthenticated
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.Debug("session rejected", zap.Error(err))
		return Claims{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims, nil
}

func (s *AccountService) dummyHash() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		if h, err := s.hasher.Hash(base64.StdEncoding.EncodeToString(buf)); err == nil {
			s.dummyVerifier = h
		}
	})
	return s.dummyVerifier
}

func validateBio(text string) error {
	if err := validation.Validate(text, validation.Required, validation.RuneLength(1, maxBioLength)); err != nil {
		return validationError(err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
