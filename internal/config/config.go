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

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Checkout CheckoutConfig
	LogLevel string
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the storage backend. Driver is mysql, postgres or memory.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LockTimeout     time.Duration
	Migrate         bool
}

// RedisConfig enables the stock cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// KafkaConfig enables the receipt outbox relay when Brokers is set.
type KafkaConfig struct {
	Brokers       string
	Topic         string
	RelaySchedule string
	BatchSize     int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type CheckoutConfig struct {
	Timeout time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// a missing .env is fine when everything comes from the environment
		_ = godotenv.Load()
	}

	var p parser
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        getenvWithDefault("HTTP_ADDR", ":8080"),
			GRPCAddr:        getenvWithDefault("GRPC_ADDR", ":50051"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getenvWithDefault("DB_DRIVER", "mysql"),
			DSN:             getenvWithDefault("DB_DSN", "root:root@tcp(localhost:3306)/zlagoda?parseTime=true"),
			MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			LockTimeout:     p.duration("DB_LOCK_TIMEOUT", 3*time.Second),
			Migrate:         p.bool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.int("REDIS_DB", 0),
			PoolSize: p.int("REDIS_POOL_SIZE", 100),
			TTL:      p.duration("REDIS_STOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       os.Getenv("KAFKA_BROKERS"),
			Topic:         getenvWithDefault("KAFKA_TOPIC", "zlagoda.receipts"),
			RelaySchedule: getenvWithDefault("OUTBOX_RELAY_SCHEDULE", "@every 5s"),
			BatchSize:     p.int("OUTBOX_BATCH_SIZE", 100),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  p.duration("JWT_TTL", 24*time.Hour),
		},
		Checkout: CheckoutConfig{
			Timeout: p.duration("CHECKOUT_TIMEOUT", 10*time.Second),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must be provided")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			return errors.New("DB_DSN must be provided")
		}
	case "memory":
	default:
		return fmt.Errorf("DB_DRIVER %q is not one of mysql, postgres, memory", c.Database.Driver)
	}

	if c.Database.LockTimeout < 0 {
		return errors.New("DB_LOCK_TIMEOUT must not be negative")
	}
	if c.Checkout.Timeout <= 0 {
		return errors.New("CHECKOUT_TIMEOUT must be positive")
	}

	if c.Kafka.Brokers != "" {
		if c.Kafka.Topic == "" {
			return errors.New("KAFKA_TOPIC must be provided when KAFKA_BROKERS is set")
		}
		if c.Kafka.RelaySchedule == "" {
			return errors.New("OUTBOX_RELAY_SCHEDULE must be provided when KAFKA_BROKERS is set")
		}
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be provided")
	}

	return nil
}

// KafkaEnabled reports whether receipt events should be written and relayed.
func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.Kafka.Brokers) != ""
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}
