package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Mail     MailConfig
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=720h"`
	HashCost  int           `env:"HASH_COST, default=12"`

	// Model selects the authorization policy: "role" or "permission".
	Model string `env:"AUTHZ_MODEL, default=role"`

	RequireEmailConfirmation bool          `env:"REQUIRE_EMAIL_CONFIRMATION, default=true"`
	ConfirmationTTL          time.Duration `env:"CONFIRMATION_TTL,           default=24h"`
	ResendCooldown           time.Duration `env:"RESEND_COOLDOWN,            default=2m"`
	ConfirmationCodeLength   int           `env:"CONFIRMATION_CODE_LENGTH,   default=6"`

	// Bootstrap administrator, created at startup when both are set.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER, default=mongo"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=account_service"`
}

type PostgresConfig struct {
	DSN          string `env:"POSTGRES_DSN"`
	MaxOpenConns int    `env:"POSTGRES_MAX_OPEN_CONNS, default=10"`
	MaxIdleConns int    `env:"POSTGRES_MAX_IDLE_CONNS, default=4"`
}

type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED,  default=true"`
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type MailConfig struct {
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,     default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"MAIL_FROM,     default=no-reply@localhost"`
	AppName      string `env:"APP_NAME,      default=Inkwell"`
	FrontendURL  string `env:"FRONTEND_URL"`
	Workers      int    `env:"MAIL_WORKERS,  default=4"`
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SMTPEnabled reports whether outbound mail goes to a real relay.
func (c *Config) SMTPEnabled() bool {
	return c.Mail.SMTPHost != ""
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Auth.HashCost < 4 || c.Auth.HashCost > 31 {
		errs = append(errs, fmt.Errorf("HASH_COST must be between 4 and 31, got %d", c.Auth.HashCost))
	}
	switch c.Auth.Model {
	case "role", "permission":
	default:
		errs = append(errs, fmt.Errorf("AUTHZ_MODEL must be role or permission, got %q", c.Auth.Model))
	}
	if c.Auth.ConfirmationTTL <= 0 {
		errs = append(errs, errors.New("CONFIRMATION_TTL must be positive"))
	}
	if c.Auth.ResendCooldown <= 0 {
		errs = append(errs, errors.New("RESEND_COOLDOWN must be positive"))
	}
	if c.Auth.ConfirmationCodeLength < 4 || c.Auth.ConfirmationCodeLength > 32 {
		errs = append(errs, fmt.Errorf("CONFIRMATION_CODE_LENGTH must be between 4 and 32, got %d", c.Auth.ConfirmationCodeLength))
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	switch c.Store.Driver {
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DB are required for the mongo store"))
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mongo or postgres, got %q", c.Store.Driver))
	}

	if c.Mail.Workers <= 0 {
		errs = append(errs, errors.New("MAIL_WORKERS must be positive"))
	}
	if c.SMTPEnabled() && c.Mail.From == "" {
		errs = append(errs, errors.New("MAIL_FROM is required when SMTP_HOST is set"))
	}

	return errors.Join(errs...)
}
