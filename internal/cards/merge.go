package cards

import (
	"fmt"
	"strings"
	"unicode"
)

// Similarity decides whether a candidate card duplicates an already-kept one.
// The default containment rule is coarse and will false-positive on short,
// generic titles; it is kept for compatibility and can be swapped for
// edit-distance or embedding similarity without touching the merge contract.
type Similarity interface {
	Duplicate(kept, candidate Card) bool
}

// TitleContainment treats two cards as duplicates when their normalized
// titles are equal or one is a substring of the other.
type TitleContainment struct{}

func (TitleContainment) Duplicate(kept, candidate Card) bool {
	a := NormalizeTitle(kept.Title)
	b := NormalizeTitle(candidate.Title)
	if a == "" || b == "" {
		return a == b
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// NormalizeTitle lowercases, strips non-alphanumeric characters and collapses
// whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			// stripped
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Merger reconciles per-chunk results into one deduplicated payload.
type Merger struct {
	similarity Similarity
}

func NewMerger(similarity Similarity) *Merger {
	if similarity == nil {
		similarity = TitleContainment{}
	}
	return &Merger{similarity: similarity}
}

// Merge concatenates the chunk results in order, deduplicates cards
// first-occurrence-wins, labels each chunk's notes by index, and ANDs the
// completion flags. Merging a merged result with itself yields the same set.
func (m *Merger) Merge(results []ChunkResult) PipelineResult {
	out := PipelineResult{Complete: true}

	var notes []string
	for i, result := range results {
		for _, card := range result.Cards {
			if m.isDuplicate(out.Cards, card) {
				continue
			}
			out.Cards = append(out.Cards, card)
		}
		if trimmed := strings.TrimSpace(result.ExhaustivenessNotes); trimmed != "" {
			notes = append(notes, fmt.Sprintf("[chunk %d] %s", i, trimmed))
		}
		if !result.Complete {
			out.Complete = false
		}
	}

	out.ExhaustivenessNotes = strings.Join(notes, "\n")
	out.CardCount = len(out.Cards)
	return out
}

func (m *Merger) isDuplicate(kept []Card, candidate Card) bool {
	for _, existing := range kept {
		if m.similarity.Duplicate(existing, candidate) {
			return true
		}
	}
	return false
}
