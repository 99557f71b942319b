package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Payout        PayoutConfig        `mapstructure:"payout"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PayoutConfig tunes the runner, the batch scheduler and the reconciliation sweep.
type PayoutConfig struct {
	MaxAttempts       uint          `mapstructure:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	BatchInterval     time.Duration `mapstructure:"batch_interval"`
	BatchLimit        int           `mapstructure:"batch_limit"`
	CutoffLag         time.Duration `mapstructure:"cutoff_lag"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type ProviderConfig struct {
	Name         string                  `mapstructure:"name"`
	HTTPTimeout  time.Duration           `mapstructure:"http_timeout"`
	Simulated    SimulatedProviderConfig `mapstructure:"simulated"`
	Netopia      NetopiaConfig           `mapstructure:"netopia"`
	BankTransfer BankTransferConfig      `mapstructure:"bank_transfer"`
	Breaker      BreakerConfig           `mapstructure:"breaker"`
}

type SimulatedProviderConfig struct {
	Latency       time.Duration `mapstructure:"latency"`
	RejectionRate float64       `mapstructure:"rejection_rate"`
	TimeoutRate   float64       `mapstructure:"timeout_rate"`
}

type NetopiaConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Signature string `mapstructure:"signature"`
}

type BankTransferConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// AlertsConfig configures failure notification email.
type AlertsConfig struct {
	Enabled    bool       `mapstructure:"enabled"`
	Recipients []string   `mapstructure:"recipients"`
	From       string     `mapstructure:"from"`
	Stream     string     `mapstructure:"stream"`
	SMTP       SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	ReportDir          string        `mapstructure:"report_dir"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYOUTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/payouts")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

var knownProviders = map[string]bool{
	"simulated":     true,
	"netopia":       true,
	"bank_transfer": true,
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Payout.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payout.lock_ttl must be positive"))
	}
	if c.Payout.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("payout.max_attempts must be at least 1"))
	}
	if c.Payout.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payout.attempt_timeout must be positive"))
	}
	if c.Payout.LockTTL > 0 && c.Payout.AttemptTimeout > 0 &&
		c.Payout.LockTTL < time.Duration(c.Payout.MaxAttempts)*c.Payout.AttemptTimeout {
		errs = append(errs, fmt.Errorf("payout.lock_ttl must cover max_attempts * attempt_timeout"))
	}
	if !knownProviders[c.Provider.Name] {
		errs = append(errs, fmt.Errorf("provider.name %q is not one of simulated, netopia, bank_transfer", c.Provider.Name))
	}
	if r := c.Provider.Simulated.RejectionRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("provider.simulated.rejection_rate must be within [0,1]"))
	}
	if r := c.Provider.Simulated.TimeoutRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("provider.simulated.timeout_rate must be within [0,1]"))
	}
	if c.Alerts.Enabled {
		if len(c.Alerts.Recipients) == 0 {
			errs = append(errs, fmt.Errorf("alerts.recipients is required when alerts are enabled"))
		}
		if c.Alerts.From == "" {
			errs = append(errs, fmt.Errorf("alerts.from is required when alerts are enabled"))
		}
		if c.Alerts.SMTP.Host == "" {
			errs = append(errs, fmt.Errorf("alerts.smtp.host is required when alerts are enabled"))
		}
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Payout.BatchInterval <= 0 || c.Payout.ReconcileInterval <= 0 || c.Worker.OutboxPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("payout.batch_interval, payout.reconcile_interval and worker.outbox_poll_interval must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Provider.Name == "simulated" {
			errs = append(errs, fmt.Errorf("provider.name simulated is not allowed in production"))
		}
		if missing := c.Provider.missingCredentials(); len(missing) > 0 {
			errs = append(errs, fmt.Errorf("provider %s requires %s in production", c.Provider.Name, strings.Join(missing, ", ")))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

// missingCredentials lists the empty settings a real provider cannot run without.
func (p *ProviderConfig) missingCredentials() []string {
	var missing []string
	check := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}
	switch p.Name {
	case "netopia":
		check("provider.netopia.base_url", p.Netopia.BaseURL)
		check("provider.netopia.api_key", p.Netopia.APIKey)
	case "bank_transfer":
		check("provider.bank_transfer.base_url", p.BankTransfer.BaseURL)
		check("provider.bank_transfer.token_url", p.BankTransfer.TokenURL)
		check("provider.bank_transfer.client_id", p.BankTransfer.ClientID)
		check("provider.bank_transfer.client_secret", p.BankTransfer.ClientSecret)
	}
	return missing
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "payouts")
	v.SetDefault("database.database", "payouts")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Payout defaults
	v.SetDefault("payout.max_attempts", 3)
	v.SetDefault("payout.retry_delay", "500ms")
	v.SetDefault("payout.max_retry_delay", "10s")
	v.SetDefault("payout.attempt_timeout", "15s")
	v.SetDefault("payout.lock_ttl", "2m")
	v.SetDefault("payout.batch_interval", "15m")
	v.SetDefault("payout.batch_limit", 500)
	v.SetDefault("payout.cutoff_lag", "24h")
	v.SetDefault("payout.reconcile_interval", "5m")

	// Provider defaults
	v.SetDefault("provider.name", "simulated")
	v.SetDefault("provider.http_timeout", "20s")
	v.SetDefault("provider.simulated.latency", "150ms")
	v.SetDefault("provider.simulated.rejection_rate", 0.02)
	v.SetDefault("provider.simulated.timeout_rate", 0.03)
	v.SetDefault("provider.netopia.base_url", "")
	v.SetDefault("provider.netopia.api_key", "")
	v.SetDefault("provider.netopia.signature", "")
	v.SetDefault("provider.bank_transfer.base_url", "")
	v.SetDefault("provider.bank_transfer.token_url", "")
	v.SetDefault("provider.bank_transfer.client_id", "")
	v.SetDefault("provider.bank_transfer.client_secret", "")
	v.SetDefault("provider.bank_transfer.scopes", []string{"transfers:write"})
	v.SetDefault("provider.breaker.max_requests", 5)
	v.SetDefault("provider.breaker.interval", "60s")
	v.SetDefault("provider.breaker.timeout", "30s")
	v.SetDefault("provider.breaker.min_requests", 10)
	v.SetDefault("provider.breaker.failure_ratio", 0.6)

	// Alerts defaults
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.recipients", []string{})
	v.SetDefault("alerts.from", "payouts@localhost")
	v.SetDefault("alerts.stream", "payouts:alerts")
	v.SetDefault("alerts.smtp.host", "")
	v.SetDefault("alerts.smtp.port", 587)
	v.SetDefault("alerts.smtp.username", "")
	v.SetDefault("alerts.smtp.password", "")
	v.SetDefault("alerts.smtp.tls", true)
	v.SetDefault("alerts.smtp.timeout", "10s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "payout-notifiers")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.report_dir", "")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "payouts-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL is the postgres:// URL understood by golang-migrate.
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
