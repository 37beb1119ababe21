// File: internal/config/config.go
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are populated
// by viper from the config file, environment variables (CHISEL_ prefix)
// and bound command-line flags, in ascending precedence.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLM      LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	// Migrate gets its marching orders from CLI flags, not the config file.
	Migrate MigrateConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic. Analysis,
// decomposition and transformation default to the powerful tier; test
// generation and healing to the fast tier.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// RequestsPerMinute caps client-side request throughput against the
	// shared backend. Zero disables the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// PipelineConfig tunes the migration pipeline state machine.
type PipelineConfig struct {
	// MaxHealingAttempts bounds the self-healing loop per unit. Must be >= 1.
	MaxHealingAttempts int `mapstructure:"max_healing_attempts" yaml:"max_healing_attempts"`
	// MaxRetries, InitialDelay and BackoffFactor parameterize the retry
	// policy wrapped around every remote call.
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	// HaltOnUnitError switches the failure policy from continue-on-error
	// (default) to halting the whole session on the first unit failure.
	HaltOnUnitError bool `mapstructure:"halt_on_unit_error" yaml:"halt_on_unit_error"`
	// EventBuffer sizes the observable event channel.
	EventBuffer int `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// SandboxConfig tunes the embedded validation sandbox.
type SandboxConfig struct {
	// TestTimeout bounds a single validation run (candidate load + all
	// discovered tests).
	TestTimeout time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	// TestPrefix is the naming convention for test discovery.
	TestPrefix string `mapstructure:"test_prefix" yaml:"test_prefix"`
	// MaxConsoleBytes caps captured console output per run.
	MaxConsoleBytes int `mapstructure:"max_console_bytes" yaml:"max_console_bytes"`
}

// DatabaseConfig holds the database connection details. Persistence is
// optional: an empty URL disables the store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// MigrateConfig centralizes runtime settings for the current migration,
// populated from command-line flags.
type MigrateConfig struct {
	InputPath string
	Output    string
	Format    string
}

var (
	global   *Config
	globalMu sync.RWMutex
)

// Get returns the process-wide configuration, initializing it from
// defaults if nothing has been set yet.
func Get() *Config {
	globalMu.RLock()
	cfg := global
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewDefaultConfig()
	}
	return global
}

// Set installs cfg as the process-wide configuration.
func Set(cfg *Config) {
	globalMu.Lock()
	global = cfg
	globalMu.Unlock()
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chisel-cli")
	v.SetDefault("logger.log_file", "chisel.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-fast")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.models.gemini-pro.provider", "gemini")
	v.SetDefault("llm.models.gemini-pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.gemini-pro.api_timeout", "120s")
	v.SetDefault("llm.models.gemini-pro.temperature", 0.2)
	v.SetDefault("llm.models.gemini-pro.max_tokens", 65536)
	v.SetDefault("llm.models.gemini-fast.provider", "gemini")
	v.SetDefault("llm.models.gemini-fast.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.gemini-fast.api_timeout", "60s")
	v.SetDefault("llm.models.gemini-fast.temperature", 0.2)
	v.SetDefault("llm.models.gemini-fast.max_tokens", 65536)

	// -- Pipeline --
	v.SetDefault("pipeline.max_healing_attempts", 2)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.initial_delay", "2s")
	v.SetDefault("pipeline.backoff_factor", 2.0)
	v.SetDefault("pipeline.halt_on_unit_error", false)
	v.SetDefault("pipeline.event_buffer", 256)

	// -- Sandbox --
	v.SetDefault("sandbox.test_timeout", "30s")
	v.SetDefault("sandbox.test_prefix", "test")
	v.SetDefault("sandbox.max_console_bytes", 65536)

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("llm.models.gemini-pro.api_key", "CHISEL_GEMINI_API_KEY")
	_ = v.BindEnv("llm.models.gemini-fast.api_key", "CHISEL_GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "CHISEL_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox configuration invalid: %w", err)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the pipeline settings.
func (p *PipelineConfig) Validate() error {
	if p.MaxHealingAttempts < 1 {
		return fmt.Errorf("max_healing_attempts must be at least 1")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if p.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be at least 1.0")
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must not be negative")
	}
	return nil
}

// Validate checks the sandbox settings.
func (s *SandboxConfig) Validate() error {
	if s.TestTimeout <= 0 {
		return fmt.Errorf("test_timeout must be a positive duration")
	}
	if s.TestPrefix == "" {
		return fmt.Errorf("test_prefix must not be empty")
	}
	return nil
}
