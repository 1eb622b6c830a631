// Package evidence defines the evidence model produced by source ingestion:
// one Item per observed file-level change, carrying stable identity, change
// type, and rendered content.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ChangeType classifies how a file changed in its source.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
	ChangeOther    ChangeType = "other"
)

// MapStatus maps a hosting-API status string onto a ChangeType.
func MapStatus(status string) ChangeType {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "added":
		return ChangeAdded
	case "modified", "changed":
		return ChangeModified
	case "removed":
		return ChangeDeleted
	case "renamed":
		return ChangeRenamed
	default:
		return ChangeOther
	}
}

// Item is one observed file-level change. Items are created once per
// observed change and never mutated afterwards; the ID is unique within a
// single run so downstream citations resolve unambiguously.
type Item struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	SourceName string         `json:"source_name"`
	ChangeType ChangeType     `json:"change_type"`
	Identifier string         `json:"identifier"`
	Timestamp  string         `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Snippet    *string        `json:"snippet,omitempty"`
}

// NewID derives a stable evidence identifier from the source, the path within
// the source and the change context (commit SHA or content hash). The short
// digest keeps IDs readable in the rendered document while staying unique
// within a run.
func NewID(sourceName, identifier, changeContext string) string {
	h := sha256.Sum256([]byte(sourceName + "\x00" + identifier + "\x00" + changeContext))
	return fmt.Sprintf("ev_%s", hex.EncodeToString(h[:])[:16])
}

// SnippetText returns the snippet body, or "" when the item carries none.
func (it Item) SnippetText() string {
	if it.Snippet == nil {
		return ""
	}
	return *it.Snippet
}
