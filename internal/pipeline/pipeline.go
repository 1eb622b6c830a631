// Package pipeline wires evidence fetching, raw-context rendering, chunking,
// sequential structured generation and result merging into one run, reporting
// progress at every stage transition.
//
// A run is a single logical thread of control: no chunk is processed
// concurrently with another, the full evidence set is held in memory before
// rendering, and cancellation discards in-flight work without compensating
// cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/kbforge/knowledge-agent/internal/cards"
	"github.com/kbforge/knowledge-agent/internal/chunker"
	"github.com/kbforge/knowledge-agent/internal/evidence"
	"github.com/kbforge/knowledge-agent/internal/generate"
	"github.com/kbforge/knowledge-agent/internal/progress"
	"github.com/kbforge/knowledge-agent/internal/rawcontext"
)

// Fetcher produces the evidence list for one selection. Satisfied by
// *evidence.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, sel evidence.Selection) ([]evidence.Item, error)
}

// Persister records run outcomes. Satisfied by *runstore.Store; failures are
// best-effort and never abort the run.
type Persister interface {
	StartRun(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, evidenceCount, chunkCount int, result cards.PipelineResult) error
	FailRun(ctx context.Context, runID, errMsg string) error
}

// Request describes one pipeline run.
type Request struct {
	// RunID is assigned when empty.
	RunID string
	// Selections are fetched in order from each named source; evidence lists
	// are concatenated.
	Selections []Selection
}

// Selection pairs a source with what to ingest from it.
type Selection struct {
	SourceName string
	Selection  evidence.Selection
}

// Pipeline owns the collaborators for runs. All external clients are passed
// in explicitly so tests can substitute them.
type Pipeline struct {
	fetchers  map[string]Fetcher
	chunker   *chunker.Chunker
	processor *generate.Processor
	merger    *cards.Merger
	store     Persister
	log       *slog.Logger
}

type Options struct {
	// Fetchers maps source name to its evidence fetcher.
	Fetchers map[string]Fetcher
	// Chunker defaults to chunker.New with the default budget.
	Chunker   *chunker.Chunker
	Processor *generate.Processor
	// Merger defaults to title-containment dedup.
	Merger *cards.Merger
	// Store is optional; runs proceed without persistence.
	Store  Persister
	Logger *slog.Logger
}

func New(opts Options) (*Pipeline, error) {
	if len(opts.Fetchers) == 0 {
		return nil, errors.New("pipeline: no fetchers")
	}
	if opts.Processor == nil {
		return nil, errors.New("pipeline: missing processor")
	}
	ch := opts.Chunker
	if ch == nil {
		ch = chunker.New(chunker.Options{})
	}
	merger := opts.Merger
	if merger == nil {
		merger = cards.NewMerger(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		fetchers:  opts.Fetchers,
		chunker:   ch,
		processor: opts.Processor,
		merger:    merger,
		store:     opts.Store,
		log:       logger,
	}, nil
}

// Run executes the whole pipeline for one request, emitting events on the
// reporter as it advances. The reporter is closed before Run returns; the
// returned error mirrors the fatal error event, if any.
func (p *Pipeline) Run(ctx context.Context, req Request, reporter *progress.Reporter) (cards.PipelineResult, error) {
	if reporter == nil {
		reporter = progress.NewReporter(0)
		go func() {
			for range reporter.Events() {
			}
		}()
	}

	runID := req.RunID
	if runID == "" {
		runID = "run_" + uuid.NewString()
	}
	log := p.log.With("run_id", runID)

	p.persistStart(ctx, runID, log)

	result, err := p.run(ctx, runID, req, reporter, log)
	if err != nil {
		p.persistFail(runID, err, log)
		reporter.Fail(err.Error(), nil)
		return cards.PipelineResult{}, err
	}

	reporter.Complete(fmt.Sprintf("Generated %d cards", result.CardCount), result)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, req Request, reporter *progress.Reporter, log *slog.Logger) (cards.PipelineResult, error) {
	// --- fetch ---

	var items []evidence.Item
	for _, sel := range req.Selections {
		fetcher, ok := p.fetchers[sel.SourceName]
		if !ok {
			return cards.PipelineResult{}, &SourceFetchError{Source: sel.SourceName, Err: errors.New("unknown source")}
		}
		got, err := fetcher.Fetch(ctx, sel.Selection)
		if err != nil {
			return cards.PipelineResult{}, &SourceFetchError{Source: sel.SourceName, Err: err}
		}
		items = append(items, got...)
	}
	log.Info("pipeline: evidence fetched", "items", len(items), "rss_mb", rssMB())

	// --- render ---

	document, err := rawcontext.Render(rawcontext.Input{
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Items:       items,
	})
	if err != nil {
		return cards.PipelineResult{}, err
	}

	// --- chunk ---

	reporter.Progress(progress.PhaseChunking, "Splitting document into chunks", 0, 0)
	chunks := p.chunker.Split(document)
	total := len(chunks)
	log.Info("pipeline: document chunked", "chunks", total, "document_bytes", len(document), "rss_mb", rssMB())

	// --- process, strictly sequential ---

	reporter.Progress(progress.PhaseProcessing, fmt.Sprintf("Processing %d chunks", total), 0, total)
	hooks := generate.Hooks{
		OnChunkStart: func(index, totalChunks int) {
			reporter.Progress(progress.PhaseProcessing,
				fmt.Sprintf("Processing chunk %d of %d", index+1, totalChunks), index, totalChunks)
		},
		OnChunkDone: func(outcome generate.ChunkOutcome) {
			if outcome.Err != nil {
				reporter.Warn(fmt.Sprintf("Chunk %d dropped: invalid result", outcome.Index),
					map[string]any{"chunk": outcome.Index, "error": outcome.Err.Error()})
			}
		},
		OnCooldown: func(index, totalChunks int) {
			reporter.Progress(progress.PhaseWaiting,
				fmt.Sprintf("Cooling down after chunk %d of %d", index+1, totalChunks), index+1, totalChunks)
		},
	}
	results, err := p.processor.Process(ctx, chunks, hooks)
	if err != nil {
		if errors.Is(err, generate.ErrAllChunksFailed) {
			return cards.PipelineResult{}, fmt.Errorf("%w: %v", ErrTotalFailure, err)
		}
		return cards.PipelineResult{}, err
	}

	// --- merge ---

	reporter.Progress(progress.PhaseMerging, "Merging chunk results", total, total)
	merged := p.merger.Merge(results)
	log.Info("pipeline: results merged",
		"chunks_succeeded", len(results), "chunks_total", total,
		"cards", merged.CardCount, "complete", merged.Complete, "rss_mb", rssMB())

	p.persistFinish(runID, len(items), total, merged, log)

	reporter.Progress(progress.PhaseCompleted, "Run completed", total, total)
	return merged, nil
}

// --- persistence (best-effort) ---

func (p *Pipeline) persistStart(ctx context.Context, runID string, log *slog.Logger) {
	if p.store == nil {
		return
	}
	if err := p.store.StartRun(ctx, runID); err != nil {
		log.Warn("pipeline: persistence skipped", "error", &PersistenceError{Op: "start", Err: err})
	}
}

func (p *Pipeline) persistFinish(runID string, evidenceCount, chunkCount int, result cards.PipelineResult, log *slog.Logger) {
	if p.store == nil {
		return
	}
	// Uses a fresh context: a canceled run context must not block recording.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.FinishRun(ctx, runID, evidenceCount, chunkCount, result); err != nil {
		log.Warn("pipeline: persistence skipped", "error", &PersistenceError{Op: "finish", Err: err})
	}
}

func (p *Pipeline) persistFail(runID string, runErr error, log *slog.Logger) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.FailRun(ctx, runID, runErr.Error()); err != nil {
		log.Warn("pipeline: persistence skipped", "error", &PersistenceError{Op: "fail", Err: err})
	}
}

// rssMB samples this process's resident set size. The run holds the whole
// evidence set in memory, so the phase logs carry the footprint.
func rssMB() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS >> 20
}
