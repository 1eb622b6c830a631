// Package app is the composition root: it builds the pipeline and its
// collaborators from configuration.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbforge/knowledge-agent/internal/chunker"
	"github.com/kbforge/knowledge-agent/internal/config"
	"github.com/kbforge/knowledge-agent/internal/evidence"
	"github.com/kbforge/knowledge-agent/internal/generate"
	"github.com/kbforge/knowledge-agent/internal/github"
	"github.com/kbforge/knowledge-agent/internal/lockfile"
	"github.com/kbforge/knowledge-agent/internal/pipeline"
	"github.com/kbforge/knowledge-agent/internal/runstore"
)

// App holds a ready pipeline plus the request derived from config.
type App struct {
	Pipeline *pipeline.Pipeline
	Request  pipeline.Request
	Store    *runstore.Store
	Log      *slog.Logger

	lock *lockfile.Lock
}

// Build wires every collaborator from the validated config.
func Build(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	logger, err := NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	pacer := generate.Pacer(nil)
	if cfg.CooldownSeconds > 0 {
		pacer = generate.FixedDelayPacer{Delay: time.Duration(cfg.CooldownSeconds) * time.Second}
	}
	processor, err := generate.NewProcessor(generate.ProcessorOptions{
		Provider: provider,
		Pacer:    pacer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	governor := evidence.NewGovernor(cfg.Governor)
	fetchers := make(map[string]pipeline.Fetcher, len(cfg.Sources))
	var request pipeline.Request
	for _, src := range cfg.Sources {
		client, err := github.NewClient(github.Options{
			BaseURL: src.BaseURL,
			Token:   os.Getenv(strings.TrimSpace(src.TokenEnv)),
			Owner:   src.Owner,
			Repo:    src.Repo,
		})
		if err != nil {
			return nil, fmt.Errorf("app: source %q: %w", src.Name, err)
		}
		fetcher, err := evidence.NewFetcher(evidence.FetcherOptions{
			Source:     client,
			SourceName: src.Name,
			Governor:   governor,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("app: source %q: %w", src.Name, err)
		}
		fetchers[src.Name] = fetcher

		for _, selCfg := range src.Selections {
			sel, err := selCfg.ToSelection()
			if err != nil {
				return nil, fmt.Errorf("app: source %q: %w", src.Name, err)
			}
			request.Selections = append(request.Selections, pipeline.Selection{
				SourceName: src.Name,
				Selection:  sel,
			})
		}
	}

	stateDir := cfg.ResolvedStateDir()
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: state dir: %w", err)
	}
	lock, err := lockfile.Acquire(filepath.Join(stateDir, "agent.lock"))
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			return nil, fmt.Errorf("app: state dir %s is in use by another instance", stateDir)
		}
		return nil, err
	}

	store, err := runstore.Open(filepath.Join(stateDir, "runs.sqlite"))
	if err != nil {
		// Persistence is best-effort; the pipeline runs without it.
		logger.Warn("app: run store unavailable", "error", err)
		store = nil
	}

	pl, err := pipeline.New(pipeline.Options{
		Fetchers: fetchers,
		Chunker: chunker.New(chunker.Options{
			TokenBudget: cfg.ChunkTokenBudget,
		}),
		Processor: processor,
		Store:     storeOrNil(store),
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		_ = lock.Release()
		return nil, err
	}

	return &App{Pipeline: pl, Request: request, Store: store, Log: logger, lock: lock}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	_ = a.lock.Release()
}

func buildProvider(cfg config.ProviderConfig) (generate.Provider, error) {
	apiKey := os.Getenv(strings.TrimSpace(cfg.APIKeyEnv))
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("app: missing api key in env %s", cfg.APIKeyEnv)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "openai":
		return generate.NewOpenAIProvider(generate.OpenAIOptions{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "anthropic":
		return generate.NewAnthropicProvider(generate.AnthropicOptions{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("app: unknown provider: %s", cfg.Name)
	}
}

// storeOrNil avoids a typed-nil Persister when the store failed to open.
func storeOrNil(store *runstore.Store) pipeline.Persister {
	if store == nil {
		return nil
	}
	return store
}

// NewLogger builds the process logger.
func NewLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}
