package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given explicitly.
const DefaultPath = "orpheus.yaml"

// Config holds all orpheus configuration.
type Config struct {
	BudgetFile  string            `yaml:"budget_file"`
	DBPath      string            `yaml:"db_path"`
	OutputDir   string            `yaml:"output_dir"`
	Log         LogConfig         `yaml:"log"`
	Budget      BudgetConfig      `yaml:"budget"`
	Endpoint    EndpointConfig    `yaml:"endpoint"`
	Enhancement EnhancementConfig `yaml:"enhancement"`
	Render      RenderConfig      `yaml:"render"`
	Cache       CacheConfig       `yaml:"cache"`
	History     HistoryConfig     `yaml:"history"`
}

// LogConfig controls logger construction.
// Format is "auto" (text on a terminal, JSON otherwise), "text" or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BudgetConfig sets the two spend tiers. 0 means unlimited.
type BudgetConfig struct {
	SessionLimit float64 `yaml:"session_limit"`
	DailyLimit   float64 `yaml:"daily_limit"`
}

// EndpointConfig describes the remote inference endpoint.
type EndpointConfig struct {
	Name         string        `yaml:"name"`
	Namespace    string        `yaml:"namespace"`
	Repository   string        `yaml:"repository"`
	APIURL       string        `yaml:"api_url"`
	TokenEnvVar  string        `yaml:"token_env_var"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BootTimeout  time.Duration `yaml:"boot_timeout"`
	InferTimeout time.Duration `yaml:"infer_timeout"`
	MaxNewTokens int           `yaml:"max_new_tokens"`
	Temperature  float64       `yaml:"temperature"`
}

// Token reads the API token from the configured environment variable.
func (e EndpointConfig) Token() string {
	return os.Getenv(e.TokenEnvVar)
}

// EnhancementConfig controls a single enhancement attempt.
// PromptTemplate may reference {content} and {custom_prompt}.
type EnhancementConfig struct {
	EstimatedCost  float64       `yaml:"estimated_cost"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	PromptTemplate string        `yaml:"prompt_template"`
}

// RenderConfig holds optional external converters. Each command is an argv
// list where {in} and {out} are replaced by the source and target paths.
type RenderConfig struct {
	ScoreCommand []string `yaml:"score_command"`
	ScoreExt     string   `yaml:"score_ext"`
	AudioCommand []string `yaml:"audio_command"`
	AudioExt     string   `yaml:"audio_ext"`
}

// CacheConfig controls the enhancement cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// HistoryConfig controls the attempt history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		BudgetFile: ".orpheus_budget.json",
		DBPath:     "orpheus.db",
		OutputDir:  "./output",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Endpoint: EndpointConfig{
			APIURL:       "https://api.endpoints.huggingface.cloud",
			TokenEnvVar:  "HUGGINGFACE_API_KEY",
			PollInterval: 3 * time.Second,
			BootTimeout:  10 * time.Minute,
			InferTimeout: 5 * time.Minute,
			MaxNewTokens: 1024,
			Temperature:  0.2,
		},
		Enhancement: EnhancementConfig{
			EstimatedCost: 0.10,
		},
		Render: RenderConfig{
			ScoreExt: "svg",
			AudioExt: "mp3",
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     24 * time.Hour,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists. A missing file at the default
// location yields Default(); a missing file anywhere else is an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == DefaultPath && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}
