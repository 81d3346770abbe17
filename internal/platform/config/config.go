// Package config loads service configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full service configuration.
type Server struct {
	AppEnv        string
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	// MatchLimit bounds requester-initiated matching; SearchLimit bounds the
	// open donor search.
	MatchLimit  int
	SearchLimit int

	// RequestTTL is the default lifetime of a blood request; SweepInterval is
	// how often the expiry sweeper runs.
	RequestTTL    time.Duration
	SweepInterval time.Duration

	// WriteTimeout must exceed the per-request middleware timeout so the
	// handler deadline fires first.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig configures the optional expiry index. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional notification event publisher. Empty
// brokers disable it and notifications stay store-only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		AppEnv:        getEnv("APP_ENV", "development"),
		Addr:          getEnv("LIFELINK_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		MatchLimit:    getEnvInt("MATCH_LIMIT", 10),
		SearchLimit:   getEnvInt("SEARCH_LIMIT", 20),
		RequestTTL:    getEnvDuration("REQUEST_TTL", 7*24*time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
		WriteTimeout:  getEnvDuration("HTTP_WRITE_TIMEOUT", 35*time.Second),
		IdleTimeout:   getEnvDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_NOTIFICATION_TOPIC", "lifelink.notifications"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
