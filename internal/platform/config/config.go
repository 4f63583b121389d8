package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	Settlement SettlementConfig
	RateLimit  RateLimitConfig

	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP
	// headers are believed. Empty means the socket address is the client.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig selects the directory store. An empty URL keeps records in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig configures the record cache. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// StorageConfig configures presigned image uploads. An empty bucket disables uploads.
type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PresignTTL    time.Duration
}

// SettlementConfig holds the shared secret used to verify settlement callbacks.
type SettlementConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// RateLimitConfig bounds writes per client IP. A zero limit disables throttling.
type RateLimitConfig struct {
	Writes int
	Window time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	p := &parser{}

	cfg := Server{
		Addr:            envOr("ADDR", ":8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 20),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     p.duration("CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      envList("KAFKA_BROKERS"),
			Topic:        envOr("KAFKA_TOPIC", "enrollments.created"),
			PollInterval: p.duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    p.int("OUTBOX_BATCH_SIZE", 100),
		},
		Storage: StorageConfig{
			Bucket:        os.Getenv("S3_BUCKET"),
			Region:        envOr("S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
			PresignTTL:    p.duration("S3_PRESIGN_TTL", 15*time.Minute),
		},
		Settlement: SettlementConfig{
			// Use a default for development - should be overridden in production
			SigningKey: envOr("SETTLEMENT_SIGNING_KEY", "dev-settlement-key-change-in-production"),
			Issuer:     envOr("SETTLEMENT_ISSUER", "crowdfund-settlement"),
			Audience:   "settlement",
		},
		RateLimit: RateLimitConfig{
			Writes: p.int("RATE_LIMIT_WRITES", 30),
			Window: p.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		TrustedProxies: p.prefixes("TRUSTED_PROXIES"),
	}
	if p.err != nil {
		return Server{}, p.err
	}
	if cfg.Kafka.BatchSize <= 0 {
		return Server{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	return cfg, nil
}

// UsePostgres reports whether a database is configured.
func (s Server) UsePostgres() bool { return s.Database.URL != "" }

// UseRelay reports whether the outbox relay can run.
func (s Server) UseRelay() bool { return s.UsePostgres() && len(s.Kafka.Brokers) > 0 }

// UseUploads reports whether presigned uploads are configured.
func (s Server) UseUploads() bool { return s.Storage.Bucket != "" }

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first conversion error so FromEnv reads top to bottom.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

// prefixes parses a comma separated list of CIDRs. Bare addresses become
// single-host prefixes.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range envList(key) {
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				p.fail(key, err)
				continue
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			p.fail(key, err)
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}
