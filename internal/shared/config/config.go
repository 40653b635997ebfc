package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Aggregator AggregatorConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port           string   `env:"PORT" env-default:"8080"`
	Host           string   `env:"HOST" env-default:"0.0.0.0"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
}

type DatabaseConfig struct {
	Driver      string `env:"DB_DRIVER" env-default:"postgres"`
	Host        string `env:"DB_HOST" env-default:"localhost"`
	Port        int    `env:"DB_PORT" env-default:"5432"`
	User        string `env:"DB_USER" env-default:"finsight"`
	Password    string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME" env-default:"finsight"`
	SSLMode     string `env:"DB_SSLMODE" env-default:"disable"`
	SQLitePath  string `env:"SQLITE_PATH" env-default:"./data/finsight.db"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" env-default:"true"`
}

type EncryptionConfig struct {
	Key string `env:"ENCRYPTION_KEY"`
}

// AggregatorConfig configures the financial-data aggregator client.
type AggregatorConfig struct {
	Env          string        `env:"PLAID_ENV" env-default:"sandbox"`
	BaseURL      string        `env:"PLAID_BASE_URL"`
	ClientID     string        `env:"PLAID_CLIENT_ID"`
	Secret       string        `env:"PLAID_SECRET"`
	ClientName   string        `env:"PLAID_CLIENT_NAME" env-default:"Finsight"`
	Products     []string      `env:"PLAID_PRODUCTS" env-separator:"," env-default:"transactions"`
	CountryCodes []string      `env:"PLAID_COUNTRY_CODES" env-separator:"," env-default:"US"`
	Language     string        `env:"PLAID_LANGUAGE" env-default:"en"`
	Timeout      time.Duration `env:"PLAID_TIMEOUT" env-default:"30s"`
	MaxAttempts  int           `env:"PLAID_MAX_ATTEMPTS" env-default:"3"`
	PageSize     int           `env:"PLAID_PAGE_SIZE" env-default:"500"`
	MaxPages     int           `env:"PLAID_MAX_PAGES" env-default:"40"`
	RateLimit    float64       `env:"PLAID_RATE_LIMIT" env-default:"10"`
	RateBurst    int           `env:"PLAID_RATE_BURST" env-default:"5"`
}

type SchedulerConfig struct {
	Enabled       bool          `env:"SCHEDULER_ENABLED" env-default:"false"`
	ScheduleTimes []string      `env:"SCHEDULER_TIMES" env-separator:"," env-default:"05:00,17:00"`
	WorkerCount   int           `env:"SCHEDULER_WORKERS" env-default:"4"`
	JobDelay      time.Duration `env:"SCHEDULER_JOB_DELAY" env-default:"1s"`
	JobTimeout    time.Duration `env:"SCHEDULER_JOB_TIMEOUT" env-default:"2m"`
	QueueSize     int           `env:"SCHEDULER_QUEUE_SIZE" env-default:"100"`
	RunOnStartup  bool          `env:"SCHEDULER_RUN_ON_STARTUP" env-default:"false"`
}

type TLSConfig struct {
	Enabled  bool   `env:"TLS_ENABLED" env-default:"false"`
	CertPath string `env:"TLS_CERT_PATH"`
	KeyPath  string `env:"TLS_KEY_PATH"`
}

type TelemetryConfig struct {
	Enabled      bool   `env:"OTEL_ENABLED" env-default:"false"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" env-default:"finsight-api"`
	Environment  string `env:"OTEL_ENVIRONMENT" env-default:"development"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_ENDPOINT" env-default:"localhost:4317"`
	MetricsPort  string `env:"METRICS_PORT" env-default:"9090"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `env:"LOG_PRETTY" env-default:"false"`
}

// MaxAggregatorAttempts caps PLAID_MAX_ATTEMPTS, counting the first call.
const MaxAggregatorAttempts = 3

var aggregatorEnvs = map[string]struct{}{
	"sandbox":     {},
	"development": {},
	"production":  {},
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field and required settings that struct tags cannot express.
func (c *Config) Validate() error {
	if c.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	if c.Aggregator.ClientID == "" {
		return fmt.Errorf("PLAID_CLIENT_ID is required")
	}
	if c.Aggregator.Secret == "" {
		return fmt.Errorf("PLAID_SECRET is required")
	}
	c.Aggregator.Env = strings.ToLower(c.Aggregator.Env)
	if _, ok := aggregatorEnvs[c.Aggregator.Env]; !ok {
		return fmt.Errorf("PLAID_ENV must be one of sandbox, development, production (got %q)", c.Aggregator.Env)
	}
	if c.Aggregator.MaxAttempts < 1 || c.Aggregator.MaxAttempts > MaxAggregatorAttempts {
		return fmt.Errorf("PLAID_MAX_ATTEMPTS must be between 1 and %d (got %d)", MaxAggregatorAttempts, c.Aggregator.MaxAttempts)
	}
	if c.Aggregator.PageSize < 1 || c.Aggregator.MaxPages < 1 {
		return fmt.Errorf("PLAID_PAGE_SIZE and PLAID_MAX_PAGES must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite (got %q)", c.Database.Driver)
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
