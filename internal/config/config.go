// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"dropp/internal/observability"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Datastore drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"APP_ENV"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	DatastoreDriver    string        `mapstructure:"DATASTORE_DRIVER"`
	DatastoreNamespace string        `mapstructure:"DATASTORE_NAMESPACE"`
	DBHost             string        `mapstructure:"DB_HOST"`
	DBPort             string        `mapstructure:"DB_PORT"`
	DBUser             string        `mapstructure:"DB_USER"`
	DBPassword         string        `mapstructure:"DB_PASSWORD"`
	DBName             string        `mapstructure:"DB_NAME"`
	DBSSLMode          string        `mapstructure:"DB_SSLMODE"`
	SQLitePath         string        `mapstructure:"SQLITE_PATH"`
	AllowedOrigins     string        `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags       string        `mapstructure:"FEATURE_FLAGS"`
	PairLockTTL        time.Duration `mapstructure:"PAIR_LOCK_TTL"`
	PairLockWait       time.Duration `mapstructure:"PAIR_LOCK_WAIT"`
	FollowRequestLimit int           `mapstructure:"FOLLOW_REQUEST_LIMIT"`
	FollowRequestWin   time.Duration `mapstructure:"FOLLOW_REQUEST_WINDOW"`
	TracingEnabled     bool          `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string        `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string        `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64       `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A .env file never overrides variables already set in the environment.
	if err := godotenv.Load(); err == nil {
		observability.Logger.Info("loaded environment from .env")
	}

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		observability.Logger.Info("loaded profile-specific configuration", "file", "config."+env+".yml")
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DatastoreDriver = strings.ToLower(strings.TrimSpace(config.DatastoreDriver))
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("DATASTORE_DRIVER", DriverRedis)
	viper.SetDefault("DATASTORE_NAMESPACE", "dropp")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "dropp")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "dropp.db")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:8081,http://localhost:19006")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("PAIR_LOCK_TTL", "10s")
	viper.SetDefault("PAIR_LOCK_WAIT", "2s")
	viper.SetDefault("FOLLOW_REQUEST_LIMIT", 20)
	viper.SetDefault("FOLLOW_REQUEST_WINDOW", "10m")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DatastoreDriver {
	case DriverRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis datastore")
		}
	case DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return errors.New("DB_HOST and DB_NAME are required for the postgres datastore")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite datastore")
		}
	default:
		return fmt.Errorf("unknown DATASTORE_DRIVER %q", c.DatastoreDriver)
	}

	if c.PairLockTTL <= 0 || c.PairLockWait <= 0 {
		return errors.New("PAIR_LOCK_TTL and PAIR_LOCK_WAIT must be positive")
	}
	if c.PairLockWait > c.PairLockTTL {
		return errors.New("PAIR_LOCK_WAIT must not exceed PAIR_LOCK_TTL")
	}
	if c.FollowRequestLimit < 0 {
		return errors.New("FOLLOW_REQUEST_LIMIT must not be negative")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DatastoreDriver == DriverPostgres {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must enable SSL in production")
			}
		}
		if c.DatastoreDriver == DriverSQLite {
			return errors.New("the sqlite datastore is not supported in production")
		}
		if c.AllowedOrigins == "*" {
			observability.Logger.Warn("ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		observability.Logger.Warn("JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// Origins returns ALLOWED_ORIGINS as a trimmed list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
