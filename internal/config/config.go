// Package config is the on-disk configuration for knowledge-agent.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbforge/knowledge-agent/internal/evidence"
)

// SourceConfig describes one GitHub repository source and what to ingest
// from it.
type SourceConfig struct {
	// Name is the human-readable origin label stamped on evidence.
	Name string `json:"name"`

	BaseURL string `json:"base_url,omitempty"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `json:"token_env,omitempty"`

	// Selections are the per-branch ingestion modes (date-range,
	// file-selection, commit-selection; combinable).
	Selections []SelectionConfig `json:"selections"`
}

// SelectionConfig mirrors evidence.Selection with a JSON-friendly since date.
type SelectionConfig struct {
	Branch  string   `json:"branch"`
	Since   string   `json:"since,omitempty"` // RFC 3339
	Files   []string `json:"files,omitempty"`
	Commits []string `json:"commits,omitempty"`
}

// ToSelection parses the since date and returns the evidence selection.
func (s SelectionConfig) ToSelection() (evidence.Selection, error) {
	sel := evidence.Selection{
		Branch:  strings.TrimSpace(s.Branch),
		Files:   s.Files,
		Commits: s.Commits,
	}
	if raw := strings.TrimSpace(s.Since); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return evidence.Selection{}, fmt.Errorf("config: invalid since date %q: %w", raw, err)
		}
		sel.Since = since
	}
	return sel, nil
}

// ProviderConfig selects and parameterizes the structured-generation service.
type ProviderConfig struct {
	// Name is "openai" or "anthropic".
	Name    string `json:"name"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env"`
}

// Config is the full configuration file.
type Config struct {
	Sources  []SourceConfig `json:"sources"`
	Provider ProviderConfig `json:"provider"`

	Governor evidence.GovernorConfig `json:"governor,omitempty"`

	// ChunkTokenBudget caps each chunk's estimated tokens; the chunker
	// default applies when 0.
	ChunkTokenBudget int `json:"chunk_token_budget,omitempty"`

	// CooldownSeconds between chunk requests; the processor default applies
	// when 0.
	CooldownSeconds int `json:"cooldown_seconds,omitempty"`

	// StateDir holds the run database. Defaults under the user home dir.
	StateDir string `json:"state_dir,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if len(c.Sources) == 0 {
		return errors.New("missing sources")
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source %d: missing name", i)
		}
		if strings.TrimSpace(src.Owner) == "" || strings.TrimSpace(src.Repo) == "" {
			return fmt.Errorf("source %q: missing owner or repo", src.Name)
		}
		if len(src.Selections) == 0 {
			return fmt.Errorf("source %q: missing selections", src.Name)
		}
		for j, sel := range src.Selections {
			if strings.TrimSpace(sel.Branch) == "" {
				return fmt.Errorf("source %q selection %d: missing branch", src.Name, j)
			}
			if _, err := sel.ToSelection(); err != nil {
				return fmt.Errorf("source %q selection %d: %w", src.Name, j, err)
			}
			if strings.TrimSpace(sel.Since) == "" && len(sel.Files) == 0 && len(sel.Commits) == 0 {
				return fmt.Errorf("source %q selection %d: needs since, files or commits", src.Name, j)
			}
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider.Name)) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown provider: %s", c.Provider.Name)
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("missing provider model")
	}
	if strings.TrimSpace(c.Provider.APIKeyEnv) == "" {
		return errors.New("missing provider api_key_env")
	}
	return nil
}

// ResolvedStateDir returns the configured state dir or the default.
func (c *Config) ResolvedStateDir() string {
	if dir := strings.TrimSpace(c.StateDir); dir != "" {
		return filepath.Clean(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".knowledge-agent"
	}
	return filepath.Join(home, ".knowledge-agent")
}

// DefaultConfigPath is where the CLI looks when --config is not given.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "knowledge-agent.json"
	}
	return filepath.Join(home, ".knowledge-agent", "config.json")
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing config path")
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", p, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", p, err)
	}
	return &cfg, nil
}
