// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Email      EmailConfig      `mapstructure:"email"`
	WebPush    WebPushConfig    `mapstructure:"webpush"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the service runs in a production environment.
// Non-production environments force providers into sandbox mode.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	LogIndex  string   `mapstructure:"log_index"`
	Enabled   bool     `mapstructure:"enabled"`
}

// --- Transport Configuration ---

// EmailConfig selects and configures the email transport.
// Provider is "smtp" or "ses"; sandbox overrides both.
type EmailConfig struct {
	Provider string     `mapstructure:"provider"`
	Sandbox  bool       `mapstructure:"sandbox"`
	From     string     `mapstructure:"from"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
	SES      SESConfig  `mapstructure:"ses"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

// WebPushConfig configures the Web Push transport and subscription health.
type WebPushConfig struct {
	Sandbox         bool   `mapstructure:"sandbox"`
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"` // mailto: contact for VAPID
	TTL             int    `mapstructure:"ttl"`        // seconds
	MaxFailures     int    `mapstructure:"max_failures"`
}

// ChannelsConfig gates channel availability globally.
type ChannelsConfig struct {
	PushEnabled  bool `mapstructure:"push_enabled"`
	EmailEnabled bool `mapstructure:"email_enabled"`
}

// DispatcherConfig holds the delivery orchestration settings.
type DispatcherConfig struct {
	Workers            int `mapstructure:"workers"`
	QueueSize          int `mapstructure:"queue_size"`
	MaxRetries         int `mapstructure:"max_retries"`      // notification-level cap
	ProviderRetries    int `mapstructure:"provider_retries"` // per-send attempt loop
	BackoffBaseMs      int `mapstructure:"backoff_base_ms"`
	SendTimeoutMs      int `mapstructure:"send_timeout_ms"`
	TemplateCacheTTLMs int `mapstructure:"template_cache_ttl_ms"`
}

// CleanupConfig holds the subscription cleanup sweep settings.
type CleanupConfig struct {
	IntervalMs    int `mapstructure:"interval_ms"`
	RetentionDays int `mapstructure:"retention_days"`
}

// HTTPConfig holds the listen addresses for the metrics and push API servers.
type HTTPConfig struct {
	MetricsAddress string `mapstructure:"metrics_address"`
	PushAPIAddress string `mapstructure:"push_api_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
