// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Grounding GroundingConfig `yaml:"grounding"`
	Limits    LimitsConfig    `yaml:"limits"`
	Redis     RedisConfig     `yaml:"redis"`
	Documents DocumentsConfig `yaml:"documents"`
	Persona   PersonaConfig   `yaml:"persona"`
	Handoff   HandoffConfig   `yaml:"handoff"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ExposeSources includes retrieved chunk text in /ask responses (debug aid).
	ExposeSources *bool `yaml:"expose_sources"`
}

// ExposeSourcesOrDefault returns whether sources are included; defaults to true when unset.
func (s *ServerConfig) ExposeSourcesOrDefault() bool {
	if s.ExposeSources != nil {
		return *s.ExposeSources
	}
	return true
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LLMConfig holds answer generator settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai | anthropic
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds question/chunk embedding settings.
type EmbeddingConfig struct {
	// Enabled switches the primary (vector) retrieval path on. When false, or when no
	// API key is available, retrieval always uses the keyword path.
	Enabled   *bool  `yaml:"enabled"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	CacheSize int    `yaml:"cache_size"`
}

// EnabledOrDefault returns whether embeddings are enabled; defaults to true when unset.
func (e *EmbeddingConfig) EnabledOrDefault() bool {
	if e.Enabled != nil {
		return *e.Enabled
	}
	return true
}

// RetrievalConfig holds chunking and search settings.
type RetrievalConfig struct {
	ChunkSize          int `yaml:"chunk_size"`    // characters
	ChunkOverlap       int `yaml:"chunk_overlap"` // characters
	DefaultTopK        int `yaml:"default_top_k"`
	DefaultMemoryTurns int `yaml:"default_memory_turns"`
}

// GroundingConfig holds citation validation settings.
type GroundingConfig struct {
	MaxAnswerChars   int   `yaml:"max_answer_chars"`
	HealWithTopChunk *bool `yaml:"heal_with_top_chunk"`
}

// HealWithTopChunkOrDefault returns whether uncited answers may be healed; defaults to true.
func (g *GroundingConfig) HealWithTopChunkOrDefault() bool {
	if g.HealWithTopChunk != nil {
		return *g.HealWithTopChunk
	}
	return true
}

// LimitsConfig holds rate limit and usage quota settings.
type LimitsConfig struct {
	Backend              string        `yaml:"backend"` // memory | redis
	Window               time.Duration `yaml:"window"`
	TenantPerWindow      int           `yaml:"tenant_per_window"`
	UserPerWindow        int           `yaml:"user_per_window"`
	DefaultDailyRequests int           `yaml:"default_daily_requests"`
	DefaultMonthlyTokens int64         `yaml:"default_monthly_tokens"`
}

// RedisConfig holds the shared limiter store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DocumentsConfig holds document-stage policy settings.
type DocumentsConfig struct {
	PrivilegedRole string   `yaml:"privileged_role"`
	RestrictedTags []string `yaml:"restricted_tags"`
}

// PersonaConfig holds fallback display names used when a requester has none.
type PersonaConfig struct {
	BotName     string `yaml:"bot_name"`
	CompanyName string `yaml:"company_name"`
}

// HandoffConfig holds human handoff settings.
type HandoffConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// WatchConfig holds knowledge directory watch settings. Each directory under a root is a
// tenant id; files inside it are ingested into that tenant.
type WatchConfig struct {
	Roots      []string `yaml:"roots"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, applies environment
// overrides and defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Roots {
		cfg.Watch.Roots[i] = expandPath(cfg.Watch.Roots[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv fills secrets and connection strings from the environment when the file leaves them empty.
func ApplyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = os.Getenv("KOTAE_REDIS_ADDR")
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
