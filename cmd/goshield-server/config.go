package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// settings is everything the server reads from the environment.
type settings struct {
	Port         string
	JWTSecret    string
	Store        string
	MongoURI     string
	MongoDB      string
	DatabaseURL  string
	RedisURL     string
	CORSOrigins  []string
	LogLevel     slog.Level
	Production   bool
	TrustProxy   bool
	AccessTTL    time.Duration
	ShutdownWait time.Duration
}

func loadSettings(getenv func(string) string) (settings, error) {
	s := settings{
		Port:         envOr(getenv, "PORT", "8080"),
		JWTSecret:    getenv("JWT_SECRET"),
		Store:        strings.ToLower(envOr(getenv, "STORE", "memory")),
		MongoURI:     envOr(getenv, "MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      envOr(getenv, "MONGO_DB", "goshield"),
		DatabaseURL:  getenv("DATABASE_URL"),
		RedisURL:     getenv("REDIS_URL"),
		CORSOrigins:  splitList(envOr(getenv, "CORS_ORIGINS", "http://localhost:3000")),
		ShutdownWait: 10 * time.Second,
	}

	if err := s.LogLevel.UnmarshalText([]byte(envOr(getenv, "LOG_LEVEL", "info"))); err != nil {
		return settings{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if s.Production, err = parseBool(getenv, "PRODUCTION"); err != nil {
		return settings{}, err
	}
	if s.TrustProxy, err = parseBool(getenv, "TRUST_PROXY"); err != nil {
		return settings{}, err
	}
	if raw := getenv("ACCESS_TTL"); raw != "" {
		if s.AccessTTL, err = time.ParseDuration(raw); err != nil {
			return settings{}, fmt.Errorf("ACCESS_TTL: %w", err)
		}
	}

	if len(s.JWTSecret) < 32 {
		return settings{}, errors.New("JWT_SECRET must be at least 32 bytes")
	}
	switch s.Store {
	case "memory", "mongo":
	case "postgres":
		if s.DatabaseURL == "" {
			return settings{}, errors.New("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return settings{}, fmt.Errorf("STORE must be memory, mongo or postgres, got %q", s.Store)
	}
	return s, nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(getenv func(string) string, key string) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
