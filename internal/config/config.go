package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	Avatar   AvatarConfig
	Jobs     JobsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret     string
	SessionExpiry time.Duration

	// EmailConfirmation controls whether signup requires a confirmed email
	// before the account becomes usable. When off, accounts are created
	// already confirmed and signed in.
	EmailConfirmation bool

	// Superusers is the allow-list of addresses granted staff+superuser on
	// every persisted mutation. SuperuserDefaultPassword is assigned when an
	// allow-listed account has no usable credential.
	Superusers               []string
	SuperuserDefaultPassword string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string

	// Domain is the public hostname used to build confirmation and reset
	// links, e.g. "app.example.com".
	Domain string
}

type AvatarConfig struct {
	// Backend selects the blob store: "fs" or "s3".
	Backend      string
	MediaDir     string
	MediaBaseURL string
	S3Bucket     string
	FetchTimeout time.Duration
}

type JobsConfig struct {
	MaxWorkers int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "foyer"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS"),
		},
		Auth: AuthConfig{
			JWTSecret:                jwtSecret,
			SessionExpiry:            getEnvAsDuration("SESSION_EXPIRY", 14*24*time.Hour),
			EmailConfirmation:        getEnvAsBool("EMAIL_CONFIRMATION", true),
			Superusers:               getEnvAsSlice("SUPERUSERS"),
			SuperuserDefaultPassword: getEnv("SUPERUSER_DEFAULT_PASSWORD", ""),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
			Domain:      getEnv("DOMAIN", "localhost:8080"),
		},
		Avatar: AvatarConfig{
			Backend:      getEnv("AVATAR_BACKEND", "fs"),
			MediaDir:     getEnv("MEDIA_DIR", "./media"),
			MediaBaseURL: getEnv("MEDIA_BASE_URL", "/media"),
			S3Bucket:     getEnv("AVATAR_S3_BUCKET", ""),
			FetchTimeout: getEnvAsDuration("AVATAR_FETCH_TIMEOUT", 15*time.Second),
		},
		Jobs: JobsConfig{
			MaxWorkers: getEnvAsInt("JOB_MAX_WORKERS", 10),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Avatar.Backend == "s3" && cfg.Avatar.S3Bucket == "" {
		return nil, fmt.Errorf("AVATAR_S3_BUCKET is required when AVATAR_BACKEND=s3")
	}

	if len(cfg.Auth.Superusers) > 0 {
		for i, email := range cfg.Auth.Superusers {
			cfg.Auth.Superusers[i] = strings.ToLower(strings.TrimSpace(email))
		}
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the session secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
