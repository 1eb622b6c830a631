package app

import (
	"strings"
	"testing"

	"github.com/kbforge/knowledge-agent/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Sources: []config.SourceConfig{{
			Name:  "backend",
			Owner: "acme",
			Repo:  "platform",
			Selections: []config.SelectionConfig{{
				Branch: "main",
				Files:  []string{"README.md"},
			}},
		}},
		Provider: config.ProviderConfig{
			Name:      "openai",
			Model:     "gpt-4o",
			APIKeyEnv: "TEST_OPENAI_KEY",
		},
		StateDir: t.TempDir(),
	}
}

func TestBuildWiresEverything(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	a, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Pipeline == nil || a.Store == nil || a.Log == nil {
		t.Fatalf("app=%+v", a)
	}
	if len(a.Request.Selections) != 1 || a.Request.Selections[0].SourceName != "backend" {
		t.Fatalf("request=%+v", a.Request)
	}
}

func TestBuildRequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")

	_, err := Build(testConfig(t))
	if err == nil || !strings.Contains(err.Error(), "missing api key") {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildAnthropicProvider(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

	cfg := testConfig(t)
	cfg.Provider = config.ProviderConfig{
		Name:      "anthropic",
		Model:     "claude-sonnet-4-5",
		APIKeyEnv: "TEST_ANTHROPIC_KEY",
	}
	a, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a.Close()
}

func TestBuildNilConfig(t *testing.T) {
	t.Parallel()

	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("json", "debug"); err != nil {
		t.Fatalf("json/debug: %v", err)
	}
	if _, err := NewLogger("text", "warn"); err != nil {
		t.Fatalf("text/warn: %v", err)
	}
	if _, err := NewLogger("", ""); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if _, err := NewLogger("xml", "info"); err == nil {
		t.Fatalf("xml format accepted")
	}
	if _, err := NewLogger("json", "loud"); err == nil {
		t.Fatalf("bogus level accepted")
	}
}
