// Package config assembles process configuration from the environment so
// main stays lean and nothing else reads ambient state. Provider credentials
// in particular are carried as explicit values injected at construction,
// never read from globals by the components that use them.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "corecompliance/pkg/platform/strings"
)

// Mail holds outbound-mail provider configuration. A zero APIKey means the
// provider is not configured; verification endpoints surface that as a
// provider error instead of panicking or silently skipping.
type Mail struct {
	APIKey    string
	FromEmail string
	BaseURL   string
	Timeout   time.Duration
}

// Configured reports whether the provider can be called at all.
func (m Mail) Configured() bool { return m.APIKey != "" }

// Redis holds optional cache configuration. Empty URL disables Redis.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds optional audit-sink configuration. Empty Brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Server captures everything the process needs to run.
type Server struct {
	Addr              string
	DatabaseURL       string
	JWTSigningKey     string
	DashboardCacheTTL time.Duration
	Mail              Mail
	Redis             Redis
	Kafka             Kafka
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("CORECOMPLIANCE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	mailBase := os.Getenv("SENDGRID_BASE_URL")
	if mailBase == "" {
		mailBase = "https://api.sendgrid.com"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "corecompliance.audit"
	}

	return Server{
		Addr:              addr,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSigningKey:     jwtSigningKey,
		DashboardCacheTTL: durationEnv("DASHBOARD_CACHE_TTL", time.Minute),
		Mail: Mail{
			APIKey:    os.Getenv("SENDGRID_API_KEY"),
			FromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
			BaseURL:   mailBase,
			// Provider calls are synchronous; the bound keeps request
			// latency finite when the provider hangs.
			Timeout: durationEnv("SENDGRID_TIMEOUT", 10*time.Second),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: brokers,
			Topic:   topic,
		},
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
