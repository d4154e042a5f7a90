// Package config loads the depth CLI configuration from TOML and env vars.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Model     ModelConfig     `toml:"model"`
	Budget    BudgetConfig    `toml:"budget"`
	Search    SearchConfig    `toml:"search"`
	Database  DatabaseConfig  `toml:"database"`
	Documents DocumentsConfig `toml:"documents"`
	Archive   ArchiveConfig   `toml:"archive"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ModelConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	TokenLimit int    `toml:"token_limit"`
}

type BudgetConfig struct {
	MaxResearcherIterations int  `toml:"max_researcher_iterations"`
	MaxConcurrentUnits      int  `toml:"max_concurrent_units"`
	MaxReactToolCalls       int  `toml:"max_react_tool_calls"`
	MaxSearchesPerUnit      int  `toml:"max_searches_per_unit"`
	MaxSearchesPerStep      int  `toml:"max_searches_per_step"`
	AllowClarification      bool `toml:"allow_clarification"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
	Summarize   bool   `toml:"summarize"`
}

type DatabaseConfig struct {
	// DSN is an optional PostgreSQL connection string; when set the
	// database_query tool is registered for researchers.
	DSN    string `toml:"dsn"`
	Schema string `toml:"schema"`
}

type DocumentsConfig struct {
	// Root is an optional directory of local documents; when set the
	// document tools are registered for researchers.
	Root string `toml:"root"`
}

type ArchiveConfig struct {
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model: ModelConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Budget: BudgetConfig{
			MaxResearcherIterations: 2,
			MaxConcurrentUnits:      2,
			MaxReactToolCalls:       3,
			MaxSearchesPerUnit:      5,
			MaxSearchesPerStep:      1,
			AllowClarification:      true,
		},
		Archive: ArchiveConfig{Path: "depth.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "depth.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("DEPTH_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("DEPTH_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("DEPTH_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("DEPTH_MODEL_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.TokenLimit = n
		}
	}
	if v := os.Getenv("DEPTH_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("DEPTH_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DEPTH_DOCUMENTS_ROOT"); v != "" {
		cfg.Documents.Root = v
	}
	if v := os.Getenv("DEPTH_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if os.Getenv("DEPTH_OBSERVER_ENABLED") == "true" || os.Getenv("DEPTH_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
