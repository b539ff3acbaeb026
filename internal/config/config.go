package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	EmailSMTP     = "smtp"
	EmailLog      = "log"
	EmailDisabled = "disabled"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	StoreDriver       string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	DBRunMigrations   bool          `env:"DB_RUN_MIGRATIONS" envDefault:"true"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"auth:"`

	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"user-auth"`
	JWTTTLMinutes int    `env:"JWT_TTL_MINUTES" envDefault:"30"`

	OTPTTLMinutes int `env:"OTP_TTL_MINUTES" envDefault:"5"`

	Argon2MemoryKB    uint32 `env:"ARGON2_MEMORY_KB" envDefault:"19456"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"2"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"1"`

	EmailDriver  string        `env:"EMAIL_DRIVER" envDefault:"smtp"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string        `env:"SMTP_USER"`
	SMTPPass     string        `env:"SMTP_PASS"`
	SMTPFrom     string        `env:"SMTP_FROM"`
	SMTPFromName string        `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool          `env:"SMTP_USE_TLS" envDefault:"false"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones inconsistentes.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return errors.New("DB_MIN_CONNS/DB_MAX_CONNS out of range")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.EmailDriver {
	case EmailSMTP, EmailLog, EmailDisabled:
	default:
		return fmt.Errorf("unknown EMAIL_DRIVER %q", c.EmailDriver)
	}

	if c.JWTTTLMinutes <= 0 {
		return errors.New("JWT_TTL_MINUTES must be positive")
	}
	if c.OTPTTLMinutes <= 0 {
		return errors.New("OTP_TTL_MINUTES must be positive")
	}
	return nil
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}
