// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// WebhookEvents lists the event types that accept a per-event webhook URL
// override (WEBHOOK_URL_<EVENT>).
var WebhookEvents = []string{"mint", "burn", "freeze", "thaw", "blacklist_add", "blacklist_remove", "seize"}

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	APIKey        string        `mapstructure:"api_key"`
}

// SolanaConfig contains ledger connection configuration
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ProgramID      string        `mapstructure:"program_id"`
	DefaultMint    string        `mapstructure:"default_mint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// IndexerConfig contains transaction indexing configuration
type IndexerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PollIntervalMS int  `mapstructure:"poll_interval_ms"`
	BatchSize      int  `mapstructure:"batch_size"`
}

// PollInterval returns the poll interval as a duration
func (c IndexerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// StorageConfig contains event store configuration
type StorageConfig struct {
	Type             string `mapstructure:"type"` // file, sqlite, postgres
	DataDir          string `mapstructure:"data_dir"`
	ConnectionString string `mapstructure:"connection_string"`
	MaxConnections   int    `mapstructure:"max_connections"`
	Capacity         int    `mapstructure:"capacity"`
	QueryMaxLimit    int    `mapstructure:"query_max_limit"`
}

// EventsFile returns the path of the persisted events file
func (c StorageConfig) EventsFile() string {
	return filepath.Join(c.DataDir, "data", "events.json")
}

// WebhookConfig contains webhook delivery configuration
type WebhookConfig struct {
	URL       string            `mapstructure:"url"`
	EventURLs map[string]string `mapstructure:"urls"`
	Secret    string            `mapstructure:"secret"`
}

// ScreeningConfig contains external screening configuration
type ScreeningConfig struct {
	URL       string `mapstructure:"url"`
	Method    string `mapstructure:"method"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// SignerConfig points at the relay that signs and submits admin transactions
type SignerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from an optional .env file, an optional YAML
// file and environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logrus.Debug("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.normalize()
	return &config, nil
}

// bindEnv maps the flat env-style keys onto the nested config tree
func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.enable_metrics", "ENABLE_METRICS")
	v.BindEnv("server.api_key", "API_KEY")

	v.BindEnv("solana.rpc_url", "RPC_URL")
	v.BindEnv("solana.program_id", "STABLECOIN_PROGRAM_ID")
	v.BindEnv("solana.default_mint", "MINT_ADDRESS")

	v.BindEnv("indexer.enabled", "INDEXER_ENABLED")
	v.BindEnv("indexer.poll_interval_ms", "INDEXER_POLL_INTERVAL_MS")
	v.BindEnv("indexer.batch_size", "INDEXER_BATCH_SIZE")

	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.data_dir", "DATA_DIR", "WORKSPACE_ROOT")
	v.BindEnv("storage.connection_string", "DATABASE_URL")
	v.BindEnv("storage.capacity", "EVENTS_CAPACITY")
	v.BindEnv("storage.query_max_limit", "EVENTS_QUERY_MAX_LIMIT")

	v.BindEnv("webhook.url", "WEBHOOK_URL")
	v.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	for _, event := range WebhookEvents {
		v.BindEnv("webhook.urls."+event, WebhookEnvKey(event))
	}

	v.BindEnv("screening.url", "SCREENING_URL")
	v.BindEnv("screening.method", "SCREENING_METHOD")
	v.BindEnv("screening.timeout_ms", "SCREENING_TIMEOUT_MS")

	v.BindEnv("signer.url", "SIGNER_URL")

	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
	v.BindEnv("logging.output", "LOG_OUTPUT")
	v.BindEnv("logging.file", "LOG_FILE")
}

// WebhookEnvKey returns the env variable holding the per-event webhook URL
func WebhookEnvKey(event string) string {
	return "WEBHOOK_URL_" + strings.ToUpper(strings.ReplaceAll(event, "-", "_"))
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sss-backend")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("solana.rpc_url", "http://127.0.0.1:8899")
	v.SetDefault("solana.program_id", "3zFReCtrBsjMZNabaV4vJSaCHtTpFtApkWMjrr5gAeeM")
	v.SetDefault("solana.request_timeout", "30s")
	v.SetDefault("solana.retry_attempts", 3)
	v.SetDefault("solana.retry_delay", "1s")

	v.SetDefault("indexer.enabled", true)
	v.SetDefault("indexer.poll_interval_ms", 8000)
	v.SetDefault("indexer.batch_size", 20)

	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.data_dir", "")
	v.SetDefault("storage.max_connections", 4)
	v.SetDefault("storage.capacity", 50000)
	v.SetDefault("storage.query_max_limit", 200)

	v.SetDefault("screening.method", "POST")
	v.SetDefault("screening.timeout_ms", 5000)

	v.SetDefault("signer.timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// normalize trims values and resolves relative defaults
func (c *Config) normalize() {
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	for event, url := range c.Webhook.EventURLs {
		c.Webhook.EventURLs[event] = strings.TrimSpace(url)
	}
	c.Screening.URL = strings.TrimSpace(c.Screening.URL)
	c.Screening.Method = strings.ToUpper(strings.TrimSpace(c.Screening.Method))
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	if c.Storage.DataDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Storage.DataDir = wd
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.Solana.ProgramID == "" {
		return fmt.Errorf("stablecoin program ID is required")
	}
	if c.Indexer.PollIntervalMS <= 0 {
		return fmt.Errorf("indexer poll interval must be positive")
	}
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("indexer batch size must be positive")
	}
	if c.Storage.Capacity <= 0 {
		return fmt.Errorf("event store capacity must be positive")
	}
	switch c.Storage.Type {
	case "file":
	case "sqlite", "postgres", "postgresql":
		if c.Storage.ConnectionString == "" {
			return fmt.Errorf("storage connection string is required for %s", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Screening.Method != "GET" && c.Screening.Method != "POST" {
		return fmt.Errorf("screening method must be GET or POST, got %q", c.Screening.Method)
	}
	return nil
}
