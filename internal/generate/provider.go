// Package generate issues structured-generation requests to an external
// language service, one chunk at a time, and validates the returned payloads.
package generate

import (
	"context"
	"fmt"
	"strings"
)

// Request is one structured-generation call for one document chunk.
type Request struct {
	// SystemInstruction frames the task for the model.
	SystemInstruction string
	// Frontmatter is the shared machine-parseable header attached to every
	// chunk for prompt context.
	Frontmatter string
	// Body is the chunk content.
	Body string
	// PositionalNote is the "chunk i of n" marker.
	PositionalNote string
	// SchemaDescription names the target result shape.
	SchemaDescription string
	// Model overrides the provider's default model when non-empty.
	Model string
}

// Provider performs one structured-generation call and returns the raw JSON
// payload. Implementations must honor ctx cancellation; they do not validate
// the result shape (the processor does).
type Provider interface {
	GenerateStructured(ctx context.Context, req Request) ([]byte, error)
}

// UserPrompt assembles the per-chunk prompt text sent as the user message.
func (r Request) UserPrompt() string {
	var b strings.Builder
	if note := strings.TrimSpace(r.PositionalNote); note != "" {
		fmt.Fprintf(&b, "NOTE: %s\n\n", note)
	}
	if fm := strings.TrimSpace(r.Frontmatter); fm != "" {
		b.WriteString("DOCUMENT HEADER:\n")
		b.WriteString(fm)
		b.WriteString("\n\n")
	}
	b.WriteString("CONSOLIDATED CONTENT:\n")
	b.WriteString(r.Body)
	if schema := strings.TrimSpace(r.SchemaDescription); schema != "" {
		b.WriteString("\n\nFORMAT YOUR RESPONSE AS JSON MATCHING THIS SHAPE:\n")
		b.WriteString(schema)
	}
	return b.String()
}

// DefaultSystemInstruction is used when config does not override it.
const DefaultSystemInstruction = "You are an expert technical documentation specialist creating knowledge cards " +
	"for a development team. Analyze the consolidated changes and generate cards that solve real team problems. " +
	"Card titles MUST start with Who, What, Where, Why, or How. Every factual claim must cite an evidence id " +
	"or a named section from the provided content. Respond with a single JSON object."

// DefaultSchemaDescription describes the ChunkResult shape for the model.
const DefaultSchemaDescription = `{
  "cards": [
    {
      "title": "HOW to [specific action]",
      "audience": "Tech Reader - NEW HIRE | Tech Reader - YOUR TEAM | Tech Reader - OTHER TEAM | Biz Team Reader | YOU (Expert)",
      "pain": "the specific problem this card removes",
      "context": {
        "user_category": "...",
        "specific_pain": "...",
        "when_where": "...",
        "current_state": "...",
        "desired_outcome": "..."
      },
      "content_markdown": "full card body in markdown",
      "content_html": "same body as HTML",
      "citations": ["ev_...", "section name"],
      "tags": ["..."],
      "collection_hint": "Engineering|Product|Operations",
      "related_card_titles": ["..."],
      "assets": [{"type": "diagram", "description": "...", "placement": "after section 2"}]
    }
  ],
  "exhaustiveness_notes": "coverage gaps in this chunk, if any",
  "complete": true
}`
