// Package app arma las dependencias del servicio a partir de la configuración.
// Lo comparten el binario HTTP y el cliente de terminal.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"user-auth/internal/config"
	"user-auth/internal/db"
	"user-auth/internal/email"
	"user-auth/internal/password"
	"user-auth/internal/repository"
	"user-auth/internal/service"
)

// OpenAccountStore abre el store elegido por STORE_DRIVER. El cleanup devuelto
// libera conexiones y siempre es seguro de llamar.
func OpenAccountStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.AccountRepository, func(), error) {
	noop := func() {}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using in-memory account store; data is lost on restart")
		return repository.NewMemoryAccountRepository(), noop, nil

	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("db connect: %w", err)
		}
		if err := db.Ping(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("db ping: %w", err)
		}
		if cfg.DBRunMigrations {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, noop, fmt.Errorf("db migrate: %w", err)
			}
			logger.Info("migrations applied")
		}
		return repository.NewPgAccountRepository(pool), pool.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(ctxPing).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		}
		return repository.NewRedisAccountRepository(client, cfg.RedisKeyPrefix, 0), cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewEmailSender elige el canal de envío del OTP. Si el SMTP no se puede
// inicializar queda un sender deshabilitado y los signups fallan con 503.
func NewEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	switch cfg.EmailDriver {
	case config.EmailLog:
		return email.NewLogSender(logger)
	case config.EmailDisabled:
		return email.NewDisabledSender("email sender disabled")
	}

	if cfg.SMTPHost == "" {
		logger.Warn("smtp host not configured")
		return email.NewDisabledSender("email sender not configured")
	}
	sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS, cfg.SMTPTimeout)
	if err != nil {
		logger.Warn("smtp sender init failed", zap.Error(err))
		return email.NewDisabledSender("email sender not configured")
	}
	return sender
}

// NewAccountService construye hasher, OTP y tokens con los parámetros de cfg.
func NewAccountService(cfg *config.Config, logger *zap.Logger, store repository.AccountRepository, sender email.Sender) (*service.AccountService, error) {
	params := password.DefaultParams()
	params.MemoryKB = cfg.Argon2MemoryKB
	params.Time = cfg.Argon2Time
	params.Parallelism = cfg.Argon2Parallelism
	hasher, err := password.NewHasher(params)
	if err != nil {
		return nil, fmt.Errorf("argon2 params: %w", err)
	}

	otp := service.NewOTPManager(store, cfg.OTPTTL())
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL())
	return service.NewAccountService(logger, store, hasher, otp, tokens, sender), nil
}
