package cards

import (
	"strings"
	"testing"
)

func card(title string) Card {
	return Card{Title: title, Audience: AudienceYourTeam, ContentMarkdown: "body"}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  HOW to Reset a Password!  ": "how to reset a password",
		"What's    new?":               "whats new",
		"Why (really) it broke":        "why really it broke",
		"":                             "",
	}
	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Fatalf("NormalizeTitle(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestTitleContainment(t *testing.T) {
	t.Parallel()

	sim := TitleContainment{}
	if !sim.Duplicate(card("How to Reset a Password"), card("HOW to Reset a Password!")) {
		t.Fatalf("normalized-equal titles should match")
	}
	if !sim.Duplicate(card("How to Reset a Password in the Admin Panel"), card("How to Reset a Password")) {
		t.Fatalf("contained title should match")
	}
	if sim.Duplicate(card("How to Reset a Password"), card("Why Sessions Expire")) {
		t.Fatalf("unrelated titles should not match")
	}
}

func TestMergeFirstWins(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil)
	first := card("How to Reset a Password")
	first.Pain = "from chunk 0"
	later := card("HOW to Reset a Password")
	later.Pain = "from chunk 1"

	got := m.Merge([]ChunkResult{
		{Cards: []Card{first}, Complete: true},
		{Cards: []Card{later, card("Why Sessions Expire")}, Complete: true},
	})
	if got.CardCount != 2 {
		t.Fatalf("card_count=%d, want 2", got.CardCount)
	}
	if got.Cards[0].Pain != "from chunk 0" {
		t.Fatalf("earlier occurrence lost: %+v", got.Cards[0])
	}
	if got.Cards[1].Title != "Why Sessions Expire" {
		t.Fatalf("order: %+v", got.Cards)
	}
}

func TestMergeCompleteIsConjunction(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil)
	got := m.Merge([]ChunkResult{
		{Cards: []Card{card("How A Works")}, Complete: true},
		{Cards: []Card{card("Why B Exists")}, Complete: false},
	})
	if got.Complete {
		t.Fatalf("one incomplete chunk must make the result incomplete")
	}

	got = m.Merge([]ChunkResult{
		{Cards: []Card{card("How A Works")}, Complete: true},
		{Cards: []Card{card("Why B Exists")}, Complete: true},
	})
	if !got.Complete {
		t.Fatalf("all-complete chunks must yield a complete result")
	}
}

func TestMergeLabelsNotesByChunk(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil)
	got := m.Merge([]ChunkResult{
		{Cards: []Card{card("How A Works")}, ExhaustivenessNotes: "covered auth", Complete: true},
		{Cards: []Card{card("Why B Exists")}, Complete: true},
		{Cards: []Card{card("What C Does")}, ExhaustivenessNotes: "skipped vendored files", Complete: true},
	})
	lines := strings.Split(got.ExhaustivenessNotes, "\n")
	if len(lines) != 2 {
		t.Fatalf("notes=%q", got.ExhaustivenessNotes)
	}
	if lines[0] != "[chunk 0] covered auth" || lines[1] != "[chunk 2] skipped vendored files" {
		t.Fatalf("notes=%q", got.ExhaustivenessNotes)
	}
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil)
	once := m.Merge([]ChunkResult{
		{Cards: []Card{card("How A Works"), card("Why B Exists")}, Complete: true},
		{Cards: []Card{card("How A Works")}, Complete: true},
	})
	again := m.Merge([]ChunkResult{{Cards: once.Cards, Complete: once.Complete}})
	if again.CardCount != once.CardCount {
		t.Fatalf("merge not idempotent: %d vs %d", again.CardCount, once.CardCount)
	}
	for i := range once.Cards {
		if again.Cards[i].Title != once.Cards[i].Title {
			t.Fatalf("card %d changed: %q vs %q", i, again.Cards[i].Title, once.Cards[i].Title)
		}
	}
}

func TestMergeEmptyInput(t *testing.T) {
	t.Parallel()

	got := NewMerger(nil).Merge(nil)
	if got.CardCount != 0 || len(got.Cards) != 0 {
		t.Fatalf("result=%+v", got)
	}
	if !got.Complete {
		t.Fatalf("vacuous merge should be complete")
	}
}
