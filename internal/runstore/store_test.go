package runstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kbforge/knowledge-agent/internal/cards"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartAndGetRun(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.StartRun(ctx, "run_1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "running" || run.StartedAtUnix == 0 {
		t.Fatalf("run=%+v", run)
	}
	if run.FinishedAtUnix != 0 || run.Error != "" {
		t.Fatalf("fresh run has completion fields: %+v", run)
	}
}

func TestStartRunRejectsEmptyID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.StartRun(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank run id")
	}
}

func TestFinishRunRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.StartRun(ctx, "run_1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	result := cards.PipelineResult{
		Cards: []cards.Card{{
			Title:           "How Sessions Refresh",
			Audience:        cards.AudienceYourTeam,
			ContentMarkdown: "body",
		}},
		ExhaustivenessNotes: "[chunk 0] ok",
		Complete:            true,
		CardCount:           1,
	}
	if err := s.FinishRun(ctx, "run_1", 12, 3, result); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "succeeded" || run.EvidenceCount != 12 || run.ChunkCount != 3 || run.CardCount != 1 || !run.Complete {
		t.Fatalf("run=%+v", run)
	}
	if run.FinishedAtUnix == 0 {
		t.Fatalf("missing finish timestamp")
	}

	got, err := s.GetResult(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(got.Cards) != 1 || got.Cards[0].Title != "How Sessions Refresh" {
		t.Fatalf("result=%+v", got)
	}
	if got.ExhaustivenessNotes != "[chunk 0] ok" {
		t.Fatalf("notes=%q", got.ExhaustivenessNotes)
	}
}

func TestFinishRunUpsertsResult(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.StartRun(ctx, "run_1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(ctx, "run_1", 1, 1, cards.PipelineResult{CardCount: 1, Complete: true}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.FinishRun(ctx, "run_1", 2, 2, cards.PipelineResult{CardCount: 5, Complete: false}); err != nil {
		t.Fatalf("FinishRun (second): %v", err)
	}
	got, err := s.GetResult(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.CardCount != 5 {
		t.Fatalf("result not overwritten: %+v", got)
	}
}

func TestFailRun(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	if err := s.StartRun(ctx, "run_1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FailRun(ctx, "run_1", "all chunks failed validation"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	run, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "failed" || run.Error != "all chunks failed validation" {
		t.Fatalf("run=%+v", run)
	}
}

func TestGetRunMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err=%v, want sql.ErrNoRows", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run_a", "run_b", "run_c"} {
		if err := s.StartRun(ctx, id); err != nil {
			t.Fatalf("StartRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].StartedAtUnix < runs[1].StartedAtUnix {
		t.Fatalf("runs not newest-first: %+v", runs)
	}
}

func TestOpenRejectsBlankPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("   "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}
