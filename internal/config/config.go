package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL  string `env:"DATABASE_URL"`

	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"2400h"`
	ResetGrantTTL time.Duration `env:"RESET_GRANT_TTL" envDefault:"10m"`
	OTPTTL        time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPSecret     string        `env:"OTP_SECRET"`

	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"1"`
	BcryptCost        int `env:"BCRYPT_COST" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SweepSchedule string `env:"SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`
}

var (
	ErrUnknownStoreBackend = errors.New("STORE_BACKEND must be postgres or memory")
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required for the postgres backend")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreBackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return ErrMissingDatabaseURL
		}
	case StoreBackendMemory:
	default:
		return ErrUnknownStoreBackend
	}
	if c.OTPSecret == "" {
		c.OTPSecret = c.JWTSecret
	}
	c.SweepSchedule = strings.TrimSpace(c.SweepSchedule)
	return nil
}
