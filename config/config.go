package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"backofficedb"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8085"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50055"`

	DB        DBConfig
	StoreMode string `env:"STORE_MODE" envDefault:"postgres"`

	PrimaryTimeout      time.Duration `env:"PRIMARY_TIMEOUT" envDefault:"2s"`
	SecondaryTimeout    time.Duration `env:"SECONDARY_TIMEOUT" envDefault:"10s"`
	MetricsCallTimeout  time.Duration `env:"METRICS_CALL_TIMEOUT" envDefault:"15s"`
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	SheetsSpreadsheetID   string `env:"SHEETS_SPREADSHEET_ID"`
	SheetsCredentialsFile string `env:"SHEETS_CREDENTIALS_FILE"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	MetricsCacheTTL time.Duration `env:"METRICS_CACHE_TTL" envDefault:"2m"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"audit_events"`
	KafkaOrderTopic string   `env:"KAFKA_ORDER_TOPIC" envDefault:"order_events"`
	KafkaGroupID    string   `env:"KAFKA_GROUP_ID" envDefault:"backoffice-service"`

	AuditLogFile string `env:"AUDIT_LOG_FILE"`

	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`

	HighValueThreshold  float64 `env:"HIGH_VALUE_THRESHOLD" envDefault:"100000"`
	DefaultLookbackDays int     `env:"DEFAULT_LOOKBACK_DAYS" envDefault:"30"`
	MaxLookbackDays     int     `env:"MAX_LOOKBACK_DAYS" envDefault:"365"`
	BulkMaxItems        int     `env:"BULK_MAX_ITEMS" envDefault:"500"`
	BulkWorkers         int     `env:"BULK_WORKERS" envDefault:"8"`
	TotalsMode          string  `env:"TOTALS_MODE" envDefault:"recompute"`

	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`
	Timezone       string `env:"TIMEZONE" envDefault:"UTC"`
}

// Load reads optional .env files, then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"PRIMARY_TIMEOUT":      c.PrimaryTimeout,
		"SECONDARY_TIMEOUT":    c.SecondaryTimeout,
		"METRICS_CALL_TIMEOUT": c.MetricsCallTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MetricsCacheTTL < 0 {
		errs = append(errs, errors.New("METRICS_CACHE_TTL must not be negative"))
	}
	if c.DefaultLookbackDays <= 0 || c.MaxLookbackDays < c.DefaultLookbackDays {
		errs = append(errs, errors.New("DEFAULT_LOOKBACK_DAYS must be in (0, MAX_LOOKBACK_DAYS]"))
	}
	if c.BulkMaxItems <= 0 || c.BulkWorkers <= 0 {
		errs = append(errs, errors.New("BULK_MAX_ITEMS and BULK_WORKERS must be positive"))
	}
	if c.BreakerMaxFailures <= 0 {
		errs = append(errs, errors.New("BREAKER_MAX_FAILURES must be positive"))
	}
	switch c.StoreMode {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_MODE %q is not postgres or memory", c.StoreMode))
	}
	switch c.TotalsMode {
	case "recompute", "denormalized":
	default:
		errs = append(errs, fmt.Errorf("TOTALS_MODE %q is not recompute or denormalized", c.TotalsMode))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaBrokers[0]) != ""
}
