package config

import "time"

// Config holds chronicle configuration.
// Stored at: config.yaml (or $HOME/.chronicle/config.yaml)
type Config struct {
	Database    DatabaseCfg    `mapstructure:"database" yaml:"database"`
	Worker      WorkerCfg      `mapstructure:"worker" yaml:"worker"`
	Planner     PlannerCfg     `mapstructure:"planner" yaml:"planner"`
	Resilience  ResilienceCfg  `mapstructure:"resilience" yaml:"resilience"`
	Targets     []TargetCfg    `mapstructure:"targets" yaml:"targets"`
	Translation TranslationCfg `mapstructure:"translation" yaml:"translation"`
}

// DatabaseCfg selects the backing database.
type DatabaseCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite", "postgres"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// WorkerCfg tunes the periodic worker.
type WorkerCfg struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`               // loop mode tick interval
	Budget         time.Duration `mapstructure:"budget" yaml:"budget"`                   // wall-clock limit per invocation
	LeaseDuration  time.Duration `mapstructure:"lease_duration" yaml:"lease_duration"`   // job lock expiry
	StuckThreshold time.Duration `mapstructure:"stuck_threshold" yaml:"stuck_threshold"` // in-progress age considered stuck
	Fanout         int           `mapstructure:"fanout" yaml:"fanout"`                   // in-batch concurrency
}

// PlannerCfg tunes batch planning at job creation.
type PlannerCfg struct {
	BatchChars int `mapstructure:"batch_chars" yaml:"batch_chars"` // analysis batch size budget
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"` // job-level retry budget
}

// ResilienceCfg tunes per-target circuit breakers and backoff.
type ResilienceCfg struct {
	BreakerThreshold    int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout" yaml:"breaker_reset_timeout"`
	BaseDelay           time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	RateLimitDelay      time.Duration `mapstructure:"rate_limit_delay" yaml:"rate_limit_delay"`
}

// TargetCfg configures one upstream target. List order is fallback rank
// order: the first enabled target is primary.
type TargetCfg struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens"`   // completion cap per call
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"` // attempts per logical call
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// TranslationCfg tunes translation jobs.
type TranslationCfg struct {
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"`
	OutputTokens   int    `mapstructure:"output_tokens" yaml:"output_tokens"` // chunk sizing budget
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseCfg{
			Driver: "sqlite",
			DSN:    "chronicle.db",
		},
		Worker: WorkerCfg{
			Interval:       time.Minute,
			Budget:         300 * time.Second,
			LeaseDuration:  5 * time.Minute,
			StuckThreshold: 10 * time.Minute,
			Fanout:         4,
		},
		Planner: PlannerCfg{
			BatchChars: 24000,
			MaxRetries: 3,
		},
		Resilience: ResilienceCfg{
			BreakerThreshold:    3,
			BreakerResetTimeout: 60 * time.Second,
			BaseDelay:           5 * time.Second,
			RateLimitDelay:      30 * time.Second,
		},
		Targets: []TargetCfg{
			{
				Name:       "openai-primary",
				Model:      "gpt-4o",
				APIKey:     "${OPENAI_API_KEY}",
				MaxTokens:  8192,
				MaxRetries: 3,
				Enabled:    true,
			},
			{
				Name:       "openai-fallback",
				Model:      "gpt-4o-mini",
				APIKey:     "${OPENAI_API_KEY}",
				MaxTokens:  8192,
				MaxRetries: 3,
				Enabled:    true,
			},
		},
		Translation: TranslationCfg{
			TargetLanguage: "English",
			OutputTokens:   4096,
		},
	}
}

// EnabledTargets returns the targets in rank order with disabled entries
// removed.
func (c *Config) EnabledTargets() []TargetCfg {
	result := make([]TargetCfg, 0, len(c.Targets))
	for _, t := range c.Targets {
		if t.Enabled {
			result = append(result, t)
		}
	}
	return result
}
