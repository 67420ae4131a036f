package model

import "time"

// Config is the complete terminus configuration
type Config struct {
	Topic        Topic              `yaml:"topic" mapstructure:"topic"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Source       SourceConfig       `yaml:"source" mapstructure:"source"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Workflow     WorkflowConfig     `yaml:"workflow" mapstructure:"workflow"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects and tunes the structured-completion provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds, per call
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	HTTPProxy   string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy     string  `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SourceConfig configures the encyclopedia client
type SourceConfig struct {
	BaseURL          string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"` // per call
	SummarySentences int           `yaml:"summary_sentences" mapstructure:"summary_sentences"`
	SearchResults    int           `yaml:"search_results" mapstructure:"search_results"`
	ContextResults   int           `yaml:"context_results" mapstructure:"context_results"`
	RespectRobots    bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// CacheConfig configures caching of knowledge-source responses
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig locates the relational store
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RateLimitingConfig throttles requests per source host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes the worker pools
type ConcurrencyConfig struct {
	CritiqueWorkers   int `yaml:"critique_workers" mapstructure:"critique_workers"`
	PrecomputeWorkers int `yaml:"precompute_workers" mapstructure:"precompute_workers"`
}

// WorkflowConfig tunes the candidate workflow
type WorkflowConfig struct {
	ValidateDefinitions bool `yaml:"validate_definitions" mapstructure:"validate_definitions"`
	MaxFollowUps        int  `yaml:"max_follow_ups" mapstructure:"max_follow_ups"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"` // Optional JSON debug log
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Topic: Topic{
			Domain: "finance",
			Keywords: []string{
				"finance", "financial", "banking", "investment",
				"economic", "stock", "market", "derivative",
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     30,
			MaxTokens:   1000,
			Temperature: 0,
		},
		Source: SourceConfig{
			BaseURL:          "https://en.wikipedia.org",
			UserAgent:        "Terminus/0.1 (+https://github.com/ppiankov/terminus)",
			Timeout:          10 * time.Second,
			SummarySentences: 2,
			SearchResults:    5,
			ContextResults:   3,
			RespectRobots:    true,
			MaxBodyBytes:     2_000_000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "", // Resolved to ~/.terminus/cache by the CLI
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "", // Resolved to ~/.terminus/terminus.db by the CLI
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			CritiqueWorkers:   4,
			PrecomputeWorkers: 2,
		},
		Workflow: WorkflowConfig{
			ValidateDefinitions: true,
			MaxFollowUps:        3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
