package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	KeycloakIssuer        string `env:"KEYCLOAK_ISSUER"`
	KeycloakClientID      string `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakRedirectURL   string `env:"KEYCLOAK_REDIRECT_URL"`
	KeycloakPublicBaseURL string `env:"KEYCLOAK_PUBLIC_BASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DatabaseDSN string `env:"DATABASE_DSN,required,notEmpty"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionIdle   time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	OTPTTL        time.Duration `env:"OTP_TTL" envDefault:"5m"`
	DefaultRegion string        `env:"PHONE_DEFAULT_REGION" envDefault:"US"`

	GenAITextDelay  time.Duration `env:"GENAI_TEXT_DELAY" envDefault:"2s"`
	GenAIImageDelay time.Duration `env:"GENAI_IMAGE_DELAY" envDefault:"3s"`
	GenAIVideoDelay time.Duration `env:"GENAI_VIDEO_DELAY" envDefault:"5s"`

	// CookieSecure is off only for local plain-HTTP runs.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`
}

// GoogleEnabled reports whether Google OIDC is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// KeycloakEnabled reports whether Keycloak OIDC is configured.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != ""
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.SessionIdle > cfg.SessionTTL {
		cfg.SessionIdle = cfg.SessionTTL
	}

	return cfg, nil
}
