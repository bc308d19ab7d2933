package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string

	// PostgresURL enables the durable identity storage backend when set.
	PostgresURL string
	// Redis enables the shared transfer-counter backend when set.
	Redis RedisConfig
	// KafkaBrokers enables audit event publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// LedgerURL is the ledger's HTTP API, used for balance reads once a
	// token is bound.
	LedgerURL string

	// Fixed compliance windows. Changing these changes observable policy.
	DailyWindow   time.Duration
	MonthlyWindow time.Duration
}

// RedisConfig holds connection settings for the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          getenv("CUSTOS_ADDR", ":8080"),
		JWTSigningKey: getenv("CUSTOS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getenv("CUSTOS_JWT_ISSUER", "custos"),
		PostgresURL:   os.Getenv("CUSTOS_PG_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTOS_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaTopic:    getenv("CUSTOS_KAFKA_TOPIC", "custos.audit"),
		LedgerURL:     getenv("CUSTOS_LEDGER_URL", "http://localhost:8545"),
		DailyWindow:   24 * time.Hour,
		MonthlyWindow: 30 * 24 * time.Hour,
	}
	if brokers := os.Getenv("CUSTOS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
