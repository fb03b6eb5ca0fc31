package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Matching     MatchingConfig     `mapstructure:"matching"`
	Extraction   ExtractionConfig   `mapstructure:"extraction"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Procurement  ProcurementConfig  `mapstructure:"procurement"`
	ERP          ERPConfig          `mapstructure:"erp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// MatchingConfig holds the two-way matching policy. Weights are relative
// shares of the aggregate score.
type MatchingConfig struct {
	Threshold            float64 `mapstructure:"threshold"`
	TolerancePct         float64 `mapstructure:"tolerance_pct"`
	AutoApproveThreshold float64 `mapstructure:"auto_approve_threshold"`
	VendorWeight         float64 `mapstructure:"vendor_weight"`
	AmountWeight         float64 `mapstructure:"amount_weight"`
	LineItemWeight       float64 `mapstructure:"line_item_weight"`
	// RejectReprocesses re-enters EXTRACT instead of failing the run when
	// a reviewer rejects; a per-decision retry flag overrides it
	RejectReprocesses bool `mapstructure:"reject_reprocesses"`
}

// ExtractionConfig holds OCR extraction settings
type ExtractionConfig struct {
	UploadDir     string  `mapstructure:"upload_dir"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// OpenAIConfig holds settings for the LLM-backed OCR tool picker. An
// empty API key selects the deterministic rule table instead.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ProcurementConfig holds the vendor master / PO retrieval API settings
type ProcurementConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ERPConfig holds the ERP posting API settings
type ERPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds reviewer and AP notification settings
type NotificationConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Reviewers     []string      `mapstructure:"reviewers"`
	APTeam        []string      `mapstructure:"ap_team"`
	ReviewBaseURL string        `mapstructure:"review_base_url"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated with defaults only, without reading
// a config file. Used by tests and local tooling.
func Default() *Config {
	setDefaults()

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/invoices.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Matching policy defaults
	viper.SetDefault("matching.threshold", 0.85)
	viper.SetDefault("matching.tolerance_pct", 5.0)
	viper.SetDefault("matching.auto_approve_threshold", 1000.00)
	viper.SetDefault("matching.vendor_weight", 0.3)
	viper.SetDefault("matching.amount_weight", 0.4)
	viper.SetDefault("matching.line_item_weight", 0.3)
	viper.SetDefault("matching.reject_reprocesses", false)

	// Extraction defaults
	viper.SetDefault("extraction.upload_dir", "data/uploads")
	viper.SetDefault("extraction.min_confidence", 0.5)

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.temperature", 0.0)
	viper.SetDefault("openai.max_tokens", 50)
	viper.SetDefault("openai.timeout", 30*time.Second)

	// Procurement defaults
	viper.SetDefault("procurement.base_url", "http://localhost:8001")
	viper.SetDefault("procurement.timeout", 15*time.Second)

	// ERP defaults
	viper.SetDefault("erp.base_url", "http://localhost:8002")
	viper.SetDefault("erp.timeout", 30*time.Second)

	// Notification defaults
	viper.SetDefault("notification.timeout", 10*time.Second)
	viper.SetDefault("notification.reviewers", []string{"ap-manager@company.com"})
	viper.SetDefault("notification.ap_team", []string{"ap-team@company.com"})
	viper.SetDefault("notification.review_base_url", "http://localhost:8080/review")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("erp.base_url", "ERP_API_URL")
	viper.BindEnv("erp.api_key", "ERP_API_KEY")
	viper.BindEnv("procurement.base_url", "PROCUREMENT_API_URL")
	viper.BindEnv("procurement.api_key", "PROCUREMENT_API_KEY")
	viper.BindEnv("notification.webhook_url", "NOTIFY_WEBHOOK_URL")
	viper.BindEnv("matching.threshold", "MATCH_THRESHOLD")
	viper.BindEnv("matching.tolerance_pct", "TOLERANCE_PERCENTAGE")
	viper.BindEnv("matching.auto_approve_threshold", "AUTO_APPROVE_THRESHOLD")
	viper.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be in (0, 1]")
	}
	if c.Matching.TolerancePct < 0 {
		return fmt.Errorf("matching.tolerance_pct must be non-negative")
	}
	if c.Matching.AutoApproveThreshold < 0 {
		return fmt.Errorf("matching.auto_approve_threshold must be non-negative")
	}
	if c.Matching.VendorWeight+c.Matching.AmountWeight+c.Matching.LineItemWeight <= 0 {
		return fmt.Errorf("matching score weights must sum to a positive value")
	}
	if c.Extraction.MinConfidence < 0 || c.Extraction.MinConfidence > 1 {
		return fmt.Errorf("extraction.min_confidence must be in [0, 1]")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
