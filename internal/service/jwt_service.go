package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 30 * time.Minute
	tokenTypeBearer = "bearer"
)

// TokenService emite y valida tokens JWT de sesión.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Claims son los datos que viajan en el token de sesión. Subject es el id de la cuenta.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AccountID devuelve el id de cuenta del token.
func (c Claims) AccountID() string {
	return c.Subject
}

var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenSigningKey   = errors.New("token signing key not configured")
)

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if issuer == "" {
		issuer = "user-auth"
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue firma claims con vencimiento now+ttl. Con ttl <= 0 usa el TTL por defecto.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrTokenSigningKey
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", time.Time{}, ErrTokenMalformed
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate trunca a segundos.
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifica firma, vencimiento y claims. Los motivos de rechazo se
// distinguen con ErrTokenMalformed, ErrTokenBadSignature y ErrTokenExpired.
func (s *TokenService) Validate(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenSigningKey
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenMalformed
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		default:
			return Claims{}, ErrTokenMalformed
		}
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

func (s *TokenService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if strings.TrimSpace(claims.Username) == "" {
		return false
	}
	return claims.Issuer == s.issuer
}
