package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Sources: []SourceConfig{{
			Name:  "backend",
			Owner: "acme",
			Repo:  "platform",
			Selections: []SelectionConfig{{
				Branch: "main",
				Since:  "2026-01-01T00:00:00Z",
			}},
		}},
		Provider: ProviderConfig{
			Name:      "openai",
			Model:     "gpt-4o",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no sources", func(c *Config) { c.Sources = nil }, "missing sources"},
		{"no source name", func(c *Config) { c.Sources[0].Name = "" }, "missing name"},
		{"no repo", func(c *Config) { c.Sources[0].Repo = "" }, "missing owner or repo"},
		{"no selections", func(c *Config) { c.Sources[0].Selections = nil }, "missing selections"},
		{"no branch", func(c *Config) { c.Sources[0].Selections[0].Branch = " " }, "missing branch"},
		{"bad since", func(c *Config) { c.Sources[0].Selections[0].Since = "yesterday" }, "invalid since date"},
		{"empty selection", func(c *Config) { c.Sources[0].Selections[0].Since = "" }, "needs since, files or commits"},
		{"bad provider", func(c *Config) { c.Provider.Name = "bedrock" }, "unknown provider"},
		{"no model", func(c *Config) { c.Provider.Model = "" }, "missing provider model"},
		{"no key env", func(c *Config) { c.Provider.APIKeyEnv = "" }, "api_key_env"},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestToSelection(t *testing.T) {
	t.Parallel()

	sel, err := SelectionConfig{
		Branch:  " main ",
		Since:   "2026-01-15T10:00:00Z",
		Files:   []string{"README.md"},
		Commits: []string{"abc"},
	}.ToSelection()
	if err != nil {
		t.Fatalf("ToSelection: %v", err)
	}
	if sel.Branch != "main" {
		t.Fatalf("branch=%q", sel.Branch)
	}
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if !sel.Since.Equal(want) {
		t.Fatalf("since=%v", sel.Since)
	}
	if len(sel.Files) != 1 || len(sel.Commits) != 1 {
		t.Fatalf("sel=%+v", sel)
	}

	sel, err = SelectionConfig{Branch: "main"}.ToSelection()
	if err != nil {
		t.Fatalf("ToSelection without since: %v", err)
	}
	if !sel.Since.IsZero() {
		t.Fatalf("since should be zero, got %v", sel.Since)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"sources": [{
			"name": "backend",
			"owner": "acme",
			"repo": "platform",
			"token_env": "GITHUB_TOKEN",
			"selections": [{"branch": "main", "files": ["README.md"]}]
		}],
		"provider": {"name": "anthropic", "model": "claude-sonnet-4-5", "api_key_env": "ANTHROPIC_API_KEY"},
		"cooldown_seconds": 5,
		"chunk_token_budget": 120000
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "anthropic" || cfg.CooldownSeconds != 5 || cfg.ChunkTokenBudget != 120000 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Sources[0].TokenEnv != "GITHUB_TOKEN" {
		t.Fatalf("token_env=%q", cfg.Sources[0].TokenEnv)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"sources": []}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestResolvedStateDir(t *testing.T) {
	t.Parallel()

	cfg := Config{StateDir: "/tmp/ka-state/"}
	if got := cfg.ResolvedStateDir(); got != "/tmp/ka-state" {
		t.Fatalf("state dir=%q", got)
	}
	cfg = Config{}
	if got := cfg.ResolvedStateDir(); !strings.HasSuffix(got, ".knowledge-agent") {
		t.Fatalf("default state dir=%q", got)
	}
}
