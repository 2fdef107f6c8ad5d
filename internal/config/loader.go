package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "SESSIONBOARD_"

// Config captures environment driven configuration values for the sessionboard service.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	DBDriver string `env:"DB_DRIVER,default=sqlite"`
	DBDSN    string `env:"DB_DSN,default=sessionboard.db"`

	SessionTTL     time.Duration `env:"SESSION_TTL,default=720h"`
	RecoveryTTL    time.Duration `env:"RECOVERY_TTL,default=72h"`
	TokenStore     string        `env:"TOKEN_STORE,default=sql"`
	TokenCacheSize int           `env:"TOKEN_CACHE_SIZE,default=10000"`

	PublicURL    string `env:"PUBLIC_URL,default=http://localhost:8080"`
	CookieSecure bool   `env:"COOKIE_SECURE,default=false"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`

	// AllowedOrigins lists the browser origins allowed to call the API with credentials.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`

	SMTP SMTPConfig `env:",prefix=SMTP_"`
}

// SMTPConfig holds outgoing mail settings. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT,default=587"`
	User     string `env:"USER"`
	Password string `env:"PASS"`
	From     string `env:"FROM,default=no-reply@sessionboard.local"`
}

// Load parses configuration values from the current process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith parses configuration from lookuper, applying defaults for optional
// fields and reporting every invalid value at once.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports values that parse but cannot be used.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		invalid = append(invalid, EnvPrefix+"DB_DRIVER")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		invalid = append(invalid, EnvPrefix+"DB_DSN")
	}
	if c.SessionTTL <= 0 {
		invalid = append(invalid, EnvPrefix+"SESSION_TTL")
	}
	if c.RecoveryTTL <= 0 {
		invalid = append(invalid, EnvPrefix+"RECOVERY_TTL")
	}
	switch c.TokenStore {
	case "sql", "memory":
	default:
		invalid = append(invalid, EnvPrefix+"TOKEN_STORE")
	}
	if c.TokenCacheSize <= 0 {
		invalid = append(invalid, EnvPrefix+"TOKEN_CACHE_SIZE")
	}
	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, EnvPrefix+"PUBLIC_URL")
	}
	if c.SMTP.Host != "" && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		invalid = append(invalid, EnvPrefix+"SMTP_PORT")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
