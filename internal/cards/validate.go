package cards

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError marks a structurally invalid generation response. It is
// recoverable at the pipeline level: the offending chunk's contribution is
// dropped and processing continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "cards: invalid result: " + e.Reason
}

var interrogatives = []string{"who", "what", "where", "why", "how"}

// titleOpensInterrogative reports whether the title opens with one of the
// fixed interrogative words, case-insensitive.
func titleOpensInterrogative(title string) bool {
	first := strings.ToLower(strings.TrimSpace(title))
	if i := strings.IndexAny(first, " \t"); i > 0 {
		first = first[:i]
	}
	for _, word := range interrogatives {
		if first == word {
			return true
		}
	}
	return false
}

func validAudience(a Audience) bool {
	for _, candidate := range Audiences() {
		if a == candidate {
			return true
		}
	}
	return false
}

// ParseChunkResult decodes and validates raw generation output against the
// ChunkResult shape.
func ParseChunkResult(raw []byte) (ChunkResult, error) {
	var result ChunkResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ChunkResult{}, &ValidationError{Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if err := ValidateChunkResult(result); err != nil {
		return ChunkResult{}, err
	}
	return result, nil
}

// ValidateChunkResult checks every card in a chunk payload.
func ValidateChunkResult(result ChunkResult) error {
	if len(result.Cards) == 0 {
		return &ValidationError{Reason: "no cards"}
	}
	for i, card := range result.Cards {
		if err := ValidateCard(card); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("card %d: %v", i, err)}
		}
	}
	return nil
}

// ValidateCard checks one card against the schema contract.
func ValidateCard(card Card) error {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		return fmt.Errorf("missing title")
	}
	if !titleOpensInterrogative(title) {
		return fmt.Errorf("title %q must open with Who/What/Where/Why/How", title)
	}
	if !validAudience(card.Audience) {
		return fmt.Errorf("unknown audience %q", card.Audience)
	}
	if strings.TrimSpace(card.ContentMarkdown) == "" {
		return fmt.Errorf("missing content_markdown")
	}
	return nil
}
