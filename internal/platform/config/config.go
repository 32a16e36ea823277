package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, grouped by concern so each
// component receives only the struct it needs.
type Config struct {
	Server       Server
	Registry     RegistryConfig
	Verification VerificationConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Auth         AuthConfig
	Tracing      TracingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// RegistryConfig drives the headless-browser registry lookup.
type RegistryConfig struct {
	SearchURL       string
	ChromePath      string
	Headless        bool
	PoolSize        int
	NavTimeout      time.Duration
	MaxRetries      uint64
	BreakerFailures int
	BreakerCooldown time.Duration
}

// VerificationConfig drives the biometric verification session manager.
type VerificationConfig struct {
	ProviderBaseURL string
	ProviderAPIKey  string
	WorkflowID      string
	CallbackURL     string
	WebhookSecret   string
	WebhookMaxSkew  time.Duration
	WebhookRate     int
	WebhookWindow   time.Duration
	PollInterval    time.Duration
	SessionTTL      time.Duration
	MaxPollErrors   int
	RequestTimeout  time.Duration
}

// RedisConfig is optional; an empty URL keeps webhook de-duplication in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DeliveryTTL  time.Duration
}

// KafkaConfig is optional; no brokers keeps audit events in memory only.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// AuthConfig holds the service token settings for non-webhook routes.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// TracingConfig enables OTLP trace export when an endpoint is set.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv loads an optional .env file and builds Config from environment
// variables so main stays lean.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var p parser
	cfg := Config{
		Server: Server{
			Addr:            p.str("MEDCRED_ADDR", ":8080"),
			LogLevel:        p.str("LOG_LEVEL", "info"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Registry: RegistryConfig{
			SearchURL:       p.str("REGISTRY_SEARCH_URL", "https://registro.mpps.gob.ve/busqueda"),
			ChromePath:      p.str("REGISTRY_CHROME_PATH", ""),
			Headless:        p.boolean("REGISTRY_HEADLESS", true),
			PoolSize:        p.integer("REGISTRY_POOL_SIZE", 3),
			NavTimeout:      p.duration("REGISTRY_NAV_TIMEOUT", 30*time.Second),
			MaxRetries:      uint64(p.integer("REGISTRY_MAX_RETRIES", 2)),
			BreakerFailures: p.integer("REGISTRY_BREAKER_FAILURES", 5),
			BreakerCooldown: p.duration("REGISTRY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Verification: VerificationConfig{
			ProviderBaseURL: p.str("VERIFICATION_PROVIDER_URL", "https://verification.didit.me/v2"),
			ProviderAPIKey:  p.str("VERIFICATION_API_KEY", ""),
			WorkflowID:      p.str("VERIFICATION_WORKFLOW_ID", ""),
			CallbackURL:     p.str("VERIFICATION_CALLBACK_URL", ""),
			WebhookSecret:   p.str("VERIFICATION_WEBHOOK_SECRET", ""),
			WebhookMaxSkew:  p.duration("VERIFICATION_WEBHOOK_MAX_SKEW", 5*time.Minute),
			WebhookRate:     p.integer("VERIFICATION_WEBHOOK_RATE", 120),
			WebhookWindow:   p.duration("VERIFICATION_WEBHOOK_WINDOW", time.Minute),
			PollInterval:    p.duration("VERIFICATION_POLL_INTERVAL", 5*time.Second),
			SessionTTL:      p.duration("VERIFICATION_SESSION_TTL", 30*time.Minute),
			MaxPollErrors:   p.integer("VERIFICATION_MAX_POLL_ERRORS", 5),
			RequestTimeout:  p.duration("VERIFICATION_REQUEST_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DeliveryTTL:  p.duration("WEBHOOK_DELIVERY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:    p.list("KAFKA_BROKERS"),
			AuditTopic: p.str("KAFKA_AUDIT_TOPIC", "medcred.audit"),
		},
		Auth: AuthConfig{
			SigningKey: p.str("SERVICE_JWT_SIGNING_KEY", devSigningKey),
			Issuer:     p.str("SERVICE_JWT_ISSUER", "medcred"),
			Audience:   p.str("SERVICE_JWT_AUDIENCE", "medcred-api"),
		},
		Tracing: TracingConfig{
			Endpoint:    p.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: p.str("OTEL_SERVICE_NAME", "medcred"),
			SampleRatio: p.float("OTEL_SAMPLE_RATIO", 1.0),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.Registry.PoolSize < 1 {
		return Config{}, fmt.Errorf("REGISTRY_POOL_SIZE must be at least 1, got %d", cfg.Registry.PoolSize)
	}
	if cfg.Verification.PollInterval <= 0 {
		return Config{}, fmt.Errorf("VERIFICATION_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

// parser reads env vars and keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v := p.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
