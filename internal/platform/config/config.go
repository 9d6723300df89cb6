package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "medigate/pkg/platform/strings"
)

// Config captures process-level configuration for the gateway binary.
// Library consumers construct the session/gate services directly and can
// ignore this package entirely.
type Config struct {
	Addr string

	// Base URLs of the REST collaborators (auth, profile, doctor directory).
	AuthBaseURL   string
	ClinicBaseURL string

	// Credential store backend: memory, redis, or postgres.
	CredStoreBackend string
	SealKey          string // base64 32-byte key; empty disables at-rest sealing

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig

	// FailClosed flips the doctor-verification policy from the default
	// fail-open to fail-closed on resolver errors.
	FailClosed bool

	HTTPTimeout time.Duration
}

// RedisConfig holds connection settings for the redis credential backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds connection settings for the postgres credential backend.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// KafkaConfig holds the audit sink settings. Empty brokers disable the sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("MEDIGATE_ADDR", ":8080"),
		AuthBaseURL:      envOr("MEDIGATE_AUTH_URL", "http://localhost:9001"),
		ClinicBaseURL:    envOr("MEDIGATE_CLINIC_URL", "http://localhost:9002"),
		CredStoreBackend: envOr("MEDIGATE_CREDSTORE", "memory"),
		SealKey:          os.Getenv("MEDIGATE_SEAL_KEY"),
		FailClosed:       os.Getenv("MEDIGATE_FAIL_CLOSED") == "true",
		HTTPTimeout:      envDuration("MEDIGATE_HTTP_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("MEDIGATE_REDIS_URL"),
			PoolSize:     envInt("MEDIGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MEDIGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("MEDIGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MEDIGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MEDIGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("MEDIGATE_POSTGRES_DSN"),
			MaxConns: envInt("MEDIGATE_POSTGRES_MAX_CONNS", 10),
		},
		Kafka: KafkaConfig{
			Topic: envOr("MEDIGATE_AUDIT_TOPIC", "medigate.session.audit"),
		},
	}
	if brokers := os.Getenv("MEDIGATE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = pstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
