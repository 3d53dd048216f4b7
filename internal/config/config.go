package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DatabaseURL string

	JWTSecret    []byte
	JWTAlgorithm string
	AccessTTL    time.Duration

	RevocationBackend string
	RedisURL          string
	SweepInterval     time.Duration
	RevocationTimeout time.Duration
	LookupTimeout     time.Duration

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string

	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv_not_loaded", "error", err)
	}

	var errs []error
	envInt := func(key string, def int) int {
		n, err := EnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	cfg := Config{
		HTTPAddr: EnvDefault("HTTP_ADDR", ":8080"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:    []byte(os.Getenv("JWT_SECRET")),
		JWTAlgorithm: EnvDefault("JWT_ALGORITHM", "HS256"),
		AccessTTL:    time.Duration(envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,

		RevocationBackend: strings.ToLower(EnvDefault("REVOCATION_BACKEND", "redis")),
		RedisURL:          EnvDefault("REDIS_URL", "redis://localhost:6379/0"),
		SweepInterval:     time.Duration(envInt("REVOCATION_SWEEP_SECONDS", 60)) * time.Second,
		RevocationTimeout: time.Duration(envInt("REVOCATION_TIMEOUT_MS", 500)) * time.Millisecond,
		LookupTimeout:     time.Duration(envInt("USER_LOOKUP_TIMEOUT_MS", 2000)) * time.Millisecond,

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if err := RequireNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET"); err != nil {
		errs = append(errs, err)
	}
	switch cfg.RevocationBackend {
	case "redis", "db", "memory":
	default:
		errs = append(errs, fmt.Errorf("REVOCATION_BACKEND must be redis, db or memory, got %q", cfg.RevocationBackend))
	}
	if cfg.AccessTTL <= 0 {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BootstrapAdmin reports whether an admin account should be seeded.
func (c Config) BootstrapAdmin() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns def when key is unset. A set but malformed value is an
// error rather than a silent fallback.
func EnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}
