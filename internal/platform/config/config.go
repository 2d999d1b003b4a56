package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	minSecretLength = 16
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"5000"`

	StoreBackend  string `env:"STORE_BACKEND" default:"mongo"`
	MongoURI      string `env:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" default:"TaskManagementApp"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`

	AccessTokenSecret string        `env:"ACCESS_TOKEN_SECRET"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" default:"23h"`
	EnforceOwnerMatch bool          `env:"ENFORCE_OWNER_MATCH" default:"true"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,https://task-management-app-d6f4c.web.app,https://task-management-app-d6f4c.firebaseapp.com"`
	AuthRateLimit      float64  `env:"AUTH_RATE_LIMIT" default:"5"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// IsProduction reports whether the deployment mode flag selects production behavior.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AccessTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET is required")
	}
	if len(cfg.AccessTokenSecret) < minSecretLength {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d characters", minSecretLength)
	}
	if cfg.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if cfg.AuthRateLimit <= 0 {
		return errors.New("AUTH_RATE_LIMIT must be positive")
	}

	switch cfg.StoreBackend {
	case BackendMongo:
		if cfg.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_BACKEND=mongo")
		}
		if cfg.MongoDatabase == "" {
			return errors.New("MONGO_DATABASE is required when STORE_BACKEND=mongo")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
		if cfg.IsProduction() {
			if err := validateSSLMode(cfg.DatabaseURL); err != nil {
				return err
			}
		}
	case BackendMemory:
		if cfg.IsProduction() {
			return errors.New("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s; got %q", BackendMongo, BackendPostgres, BackendMemory, cfg.StoreBackend)
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
