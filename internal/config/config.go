// Package config handles loading and validating Kazi configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Kazi.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.kazi/data. Override: KAZI_DATA_DIR env var.
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite default (derived from data dir)
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Agent         AgentConfig          `json:"agent" yaml:"agent"`
	Memory        *MemoryConfig        `json:"memory,omitempty" yaml:"memory,omitempty"` // nil = defaults
	Gateway       *HTTPGatewayConfig   `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Retention     *RetentionConfig     `json:"retention,omitempty" yaml:"retention,omitempty"`         // nil = conversations kept forever
	MCP           []MCPServerConfig    `json:"mcp,omitempty" yaml:"mcp,omitempty"`                     // External MCP tool servers.
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data directory.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: KAZI_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ProvidersConfig selects the LLM provider and fallback chain.
type ProvidersConfig struct {
	Default   string          `json:"default" yaml:"default"`                       // "openai", "anthropic", "ollama". Empty = "openai".
	Fallback  []string        `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Fallback providers tried in order when default fails.
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	Ollama    OllamaConfig    `json:"ollama" yaml:"ollama"`
}

type OpenAIConfig struct {
	APIKey      string   `json:"api_key" yaml:"api_key"` // Override: OPENAI_API_KEY env var.
	Model       string   `json:"model" yaml:"model"`
	BaseURL     string   `json:"base_url" yaml:"base_url"`       // Optional. Defaults to https://api.openai.com.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

type AnthropicConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"` // Override: ANTHROPIC_API_KEY env var.
	Model  string `json:"model" yaml:"model"`
}

type OllamaConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to http://localhost:11434.
}

// AgentConfig tunes the tool-calling loop.
type AgentConfig struct {
	SystemPrompt       string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"` // Empty = built-in prompt.
	MaxToolRounds      int    `json:"max_tool_rounds" yaml:"max_tool_rounds"`                 // Default: 5.
	RetryMaxAttempts   int    `json:"retry_max_attempts" yaml:"retry_max_attempts"`           // Default: 3.
	RetryBackoffMillis int    `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`               // Default: 500.
}

// ToolRounds returns the max tool rounds with a default of 5.
func (a *AgentConfig) ToolRounds() int {
	if a != nil && a.MaxToolRounds > 0 {
		return a.MaxToolRounds
	}
	return 5
}

// RetryAttempts returns the model retry attempts with a default of 3.
func (a *AgentConfig) RetryAttempts() int {
	if a != nil && a.RetryMaxAttempts > 0 {
		return a.RetryMaxAttempts
	}
	return 3
}

// RetryBackoff returns the initial retry backoff with a default of 500ms.
func (a *AgentConfig) RetryBackoff() time.Duration {
	if a != nil && a.RetryBackoffMillis > 0 {
		return time.Duration(a.RetryBackoffMillis) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// MemoryConfig configures conversation history limits.
// When nil, defaults apply.
type MemoryConfig struct {
	MaxHistoryMessages int `json:"max_history_messages" yaml:"max_history_messages"` // Default: 100
	MaxMessageBytes    int `json:"max_message_bytes" yaml:"max_message_bytes"`       // Default: 32768
}

// MaxHistory returns the max history messages with a default of 100.
func (m *MemoryConfig) MaxHistory() int {
	if m != nil && m.MaxHistoryMessages > 0 {
		return m.MaxHistoryMessages
	}
	return 100
}

// MaxMsgBytes returns the max message bytes with a default of 32768.
func (m *MemoryConfig) MaxMsgBytes() int {
	if m != nil && m.MaxMessageBytes > 0 {
		return m.MaxMessageBytes
	}
	return 32768
}

// HTTPGatewayConfig configures the HTTP API gateway.
type HTTPGatewayConfig struct {
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	APIKeyUserMapping   map[string]string `json:"api_key_user_mapping" yaml:"api_key_user_mapping"` // API key → user ID. Override: KAZI_API_KEYS env var.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (h *HTTPGatewayConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return ":8080"
}

// RateLimitConfig configures per-user rate limiting for the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "kazi"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// RetentionConfig configures periodic deletion of stale conversations.
// When nil, conversations are kept forever.
type RetentionConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Schedule   string `json:"schedule" yaml:"schedule"`       // Cron expression. Default: "0 3 * * *" (daily at 03:00).
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"` // Conversations idle longer than this are deleted. Default: 90.
}

// CronSchedule returns the retention schedule with a default of daily at 03:00.
func (r *RetentionConfig) CronSchedule() string {
	if r != nil && r.Schedule != "" {
		return r.Schedule
	}
	return "0 3 * * *"
}

// MaxAge returns the retention age with a default of 90 days.
func (r *RetentionConfig) MaxAge() time.Duration {
	if r != nil && r.MaxAgeDays > 0 {
		return time.Duration(r.MaxAgeDays) * 24 * time.Hour
	}
	return 90 * 24 * time.Hour
}

// MCPServerConfig defines a single external MCP server connection.
// Kazi acts as an MCP client, connecting at startup, discovering tools,
// and registering them in the tool registry.
type MCPServerConfig struct {
	Name      string            `json:"name" yaml:"name"`                           // Server ID used for tool namespacing (e.g., "github").
	Transport string            `json:"transport" yaml:"transport"`                 // "stdio", "sse", or "streamable_http".
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"` // Executable to launch (stdio only).
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`       // Command arguments (stdio only).
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`         // Subprocess env vars (stdio only). Values support ${VAR} expansion.
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`         // Server endpoint (sse/streamable_http only).
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // HTTP headers (sse/streamable_http). Values support ${VAR} expansion.
}

// DefaultConfigPath returns the default config file path (~/.kazi/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/kazi.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".kazi", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Provider API keys can be set in the config file or overridden by environment
// variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Env vars take
// precedence over config values.
func applyEnvOverrides(cfg *Config) {
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		cfg.Providers.OpenAI.APIKey = envKey
	}
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		cfg.Providers.Anthropic.APIKey = envKey
	}
	if envDD := os.Getenv("KAZI_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envDSN := os.Getenv("KAZI_DB_DSN"); envDSN != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = envDSN
	}
	// KAZI_API_KEYS: comma-separated key:user pairs.
	if envKeys := os.Getenv("KAZI_API_KEYS"); envKeys != "" {
		if cfg.Gateway == nil {
			cfg.Gateway = &HTTPGatewayConfig{Enabled: true}
		}
		if cfg.Gateway.APIKeyUserMapping == nil {
			cfg.Gateway.APIKeyUserMapping = make(map[string]string)
		}
		for _, pair := range strings.Split(envKeys, ",") {
			key, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if ok && key != "" && user != "" {
				cfg.Gateway.APIKeyUserMapping[key] = user
			}
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".kazi", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		resolved, err := resolvePath(c.Storage.SQLite.Path)
		if err == nil {
			return resolved
		}
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "kazi.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	// Default provider to openai.
	if c.Providers.Default == "" {
		c.Providers.Default = "openai"
	}
	if err := c.validateProvider(c.Providers.Default); err != nil {
		return err
	}
	for _, name := range c.Providers.Fallback {
		if err := c.validateProvider(name); err != nil {
			return fmt.Errorf("fallback provider: %w", err)
		}
	}
	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.StorageDriverName() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set KAZI_DB_DSN env var)")
		}
	}
	if c.Gateway != nil {
		if c.Gateway.RateLimit.RequestsPerMinute < 0 {
			return fmt.Errorf("gateway.rate_limit.requests_per_minute must not be negative")
		}
		if c.Gateway.MaxRequestSizeBytes < 0 {
			return fmt.Errorf("gateway.max_request_size_bytes must not be negative")
		}
	}
	// MCP server config validation.
	mcpNames := make(map[string]bool, len(c.MCP))
	for i, srv := range c.MCP {
		if srv.Name == "" {
			return fmt.Errorf("mcp[%d].name is required", i)
		}
		if mcpNames[srv.Name] {
			return fmt.Errorf("mcp[%d]: duplicate server name %q", i, srv.Name)
		}
		mcpNames[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp[%d] (%q): command is required for stdio transport", i, srv.Name)
			}
		case "sse", "streamable_http":
			if srv.URL == "" {
				return fmt.Errorf("mcp[%d] (%q): url is required for %s transport", i, srv.Name, srv.Transport)
			}
		default:
			return fmt.Errorf("mcp[%d] (%q): transport must be stdio, sse, or streamable_http", i, srv.Name)
		}
	}
	return nil
}

// validateProvider checks that the named LLM provider has the required fields.
func (c *Config) validateProvider(name string) error {
	switch name {
	case "openai":
		if c.Providers.OpenAI.Model == "" {
			return fmt.Errorf("providers.openai.model is required")
		}
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("providers.openai.api_key is required (set OPENAI_API_KEY env var)")
		}
	case "anthropic":
		if c.Providers.Anthropic.Model == "" {
			return fmt.Errorf("providers.anthropic.model is required")
		}
		if c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("providers.anthropic.api_key is required (set ANTHROPIC_API_KEY env var)")
		}
	case "ollama":
		if c.Providers.Ollama.Model == "" {
			return fmt.Errorf("providers.ollama.model is required")
		}
	default:
		return fmt.Errorf("provider %q is not supported (use openai, anthropic, or ollama)", name)
	}
	return nil
}
