package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/permalink-studio/pos/pkg/config"
	"github.com/permalink-studio/pos/pkg/database"
)

// Oversell policies.
const (
	OversellAllow = "allow"
	OversellBlock = "block"
)

// Jump-ring tie-break orderings.
const (
	TieBreakLowestCost = "lowest_cost"
	TieBreakStockOrder = "stock_order"
)

// Config holds all configuration for the POS service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"pos"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"pos_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"pos_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis (checkout sessions, consumer idempotency)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	SessionTTL    int    `env:"SESSION_TTL_HOURS" envDefault:"24"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ReceiptConsumerGrp string   `env:"RECEIPT_CONSUMER_GROUP" envDefault:"pos-receipts"`

	// Checkout policy
	OversellPolicy  string `env:"OVERSELL_POLICY" envDefault:"allow"`
	JumpRingTieBrk  string `env:"JUMP_RING_TIE_BREAK" envDefault:"lowest_cost"`
	DefaultTaxRate  string `env:"DEFAULT_TAX_RATE" envDefault:"0"`
	PlatformFeeRate string `env:"PLATFORM_FEE_RATE" envDefault:"0"`

	// Payment terminal; empty disables card-present charges.
	PaymentTerminalURL     string `env:"PAYMENT_TERMINAL_URL" envDefault:""`
	PaymentTerminalAPIKey  string `env:"PAYMENT_TERMINAL_API_KEY" envDefault:""`
	PaymentTerminalTimeout int    `env:"PAYMENT_TERMINAL_TIMEOUT_SECONDS" envDefault:"30"`

	// Receipts; empty key logs receipts instead of emailing them.
	SendGridAPIKey   string `env:"SENDGRID_API_KEY" envDefault:""`
	ReceiptFromEmail string `env:"RECEIPT_FROM_EMAIL" envDefault:"receipts@permalink.studio"`
	ReceiptFromName  string `env:"RECEIPT_FROM_NAME" envDefault:"Permalink Studio"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load pos config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OversellPolicy != OversellAllow && c.OversellPolicy != OversellBlock {
		return fmt.Errorf("OVERSELL_POLICY must be %q or %q, got %q", OversellAllow, OversellBlock, c.OversellPolicy)
	}
	if c.JumpRingTieBrk != TieBreakLowestCost && c.JumpRingTieBrk != TieBreakStockOrder {
		return fmt.Errorf("JUMP_RING_TIE_BREAK must be %q or %q, got %q", TieBreakLowestCost, TieBreakStockOrder, c.JumpRingTieBrk)
	}
	for name, raw := range map[string]string{"DEFAULT_TAX_RATE": c.DefaultTaxRate, "PLATFORM_FEE_RATE": c.PlatformFeeRate} {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s must be a decimal, got %q", name, raw)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be between 0 and 1, got %s", name, raw)
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be > 0, got %d", c.SessionTTL)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// TaxRate returns the default sales tax rate. Validated at load.
func (c *Config) TaxRate() decimal.Decimal {
	return decimal.RequireFromString(c.DefaultTaxRate)
}

// FeeRate returns the platform fee rate. Validated at load.
func (c *Config) FeeRate() decimal.Decimal {
	return decimal.RequireFromString(c.PlatformFeeRate)
}

// AllowOversell reports whether sales may drive stock negative.
func (c *Config) AllowOversell() bool {
	return c.OversellPolicy == OversellAllow
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// SessionTTLDuration returns how long an idle checkout session is kept.
func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Hour
}
