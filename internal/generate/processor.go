package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kbforge/knowledge-agent/internal/cards"
	"github.com/kbforge/knowledge-agent/internal/chunker"
)

// ErrAllChunksFailed is returned when every chunk fails validation; a run
// with at least one valid chunk succeeds partially instead.
var ErrAllChunksFailed = errors.New("generate: all chunks failed validation")

// Pacer spaces out consecutive generation calls. The default waits a fixed
// cooldown; a smarter backoff or rate limiter can be injected without
// touching the processor.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelayPacer sleeps a constant interval, honoring ctx cancellation.
type FixedDelayPacer struct {
	Delay time.Duration
}

func (p FixedDelayPacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultCooldown between consecutive chunk requests.
const DefaultCooldown = 10 * time.Second

// ChunkOutcome reports what happened to one chunk.
type ChunkOutcome struct {
	Index int
	// Err is the validation or transport error for a dropped chunk; nil for
	// a successful one.
	Err error
}

// Hooks lets the caller observe per-chunk progress. Nil fields are skipped.
type Hooks struct {
	// OnChunkStart fires before the request for chunk i of n.
	OnChunkStart func(index, total int)
	// OnChunkDone fires after each chunk resolves, success or failure.
	OnChunkDone func(outcome ChunkOutcome)
	// OnCooldown fires before the inter-chunk wait.
	OnCooldown func(index, total int)
}

// Processor walks chunks strictly in index order, never concurrently, pacing
// between requests to respect the external service's rate limit.
type Processor struct {
	provider Provider
	pacer    Pacer
	system   string
	schema   string
	log      *slog.Logger
}

type ProcessorOptions struct {
	Provider Provider
	// Pacer defaults to FixedDelayPacer{DefaultCooldown}.
	Pacer Pacer
	// SystemInstruction defaults to DefaultSystemInstruction.
	SystemInstruction string
	// SchemaDescription defaults to DefaultSchemaDescription.
	SchemaDescription string
	Logger            *slog.Logger
}

func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Provider == nil {
		return nil, errors.New("generate: missing provider")
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = FixedDelayPacer{Delay: DefaultCooldown}
	}
	system := opts.SystemInstruction
	if system == "" {
		system = DefaultSystemInstruction
	}
	schema := opts.SchemaDescription
	if schema == "" {
		schema = DefaultSchemaDescription
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		provider: opts.Provider,
		pacer:    pacer,
		system:   system,
		schema:   schema,
		log:      logger,
	}, nil
}

// Process issues one request per chunk and collects the validated results.
// A chunk whose response fails validation is dropped and reported through
// hooks; processing continues. If every chunk fails, ErrAllChunksFailed is
// returned. Context cancellation aborts immediately, discarding partials.
func (p *Processor) Process(ctx context.Context, chunks []chunker.Chunk, hooks Hooks) ([]cards.ChunkResult, error) {
	if len(chunks) == 0 {
		return nil, errors.New("generate: no chunks")
	}

	var results []cards.ChunkResult
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hooks.OnChunkStart != nil {
			hooks.OnChunkStart(chunk.Index, chunk.TotalChunks)
		}

		result, err := p.processOne(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("generate: chunk dropped", "chunk", chunk.Index, "total", chunk.TotalChunks, "error", err)
			if hooks.OnChunkDone != nil {
				hooks.OnChunkDone(ChunkOutcome{Index: chunk.Index, Err: err})
			}
		} else {
			results = append(results, result)
			if hooks.OnChunkDone != nil {
				hooks.OnChunkDone(ChunkOutcome{Index: chunk.Index})
			}
		}

		// Cooldown between chunks, not after the last one.
		if i < len(chunks)-1 {
			if hooks.OnCooldown != nil {
				hooks.OnCooldown(chunk.Index, chunk.TotalChunks)
			}
			if err := p.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	if len(results) == 0 {
		return nil, ErrAllChunksFailed
	}
	return results, nil
}

func (p *Processor) processOne(ctx context.Context, chunk chunker.Chunk) (cards.ChunkResult, error) {
	req := Request{
		SystemInstruction: p.system,
		Frontmatter:       chunk.Frontmatter,
		Body:              chunk.Content,
		PositionalNote:    fmt.Sprintf("This is chunk %d of %d of the consolidated document.", chunk.Index+1, chunk.TotalChunks),
		SchemaDescription: p.schema,
	}
	raw, err := p.provider.GenerateStructured(ctx, req)
	if err != nil {
		return cards.ChunkResult{}, err
	}
	return cards.ParseChunkResult(raw)
}
