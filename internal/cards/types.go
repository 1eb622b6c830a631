// Package cards defines the structured knowledge-card payload produced by the
// generation service, its schema validation, and the cross-chunk merge that
// collapses near-duplicate cards into one final result set.
package cards

// Audience is one of the five reader categories a card targets.
type Audience string

const (
	AudienceNewHire   Audience = "Tech Reader - NEW HIRE"
	AudienceYourTeam  Audience = "Tech Reader - YOUR TEAM"
	AudienceOtherTeam Audience = "Tech Reader - OTHER TEAM"
	AudienceBizTeam   Audience = "Biz Team Reader"
	AudienceExpert    Audience = "YOU (Expert)"
)

// Audiences lists every valid reader category.
func Audiences() []Audience {
	return []Audience{
		AudienceNewHire,
		AudienceYourTeam,
		AudienceOtherTeam,
		AudienceBizTeam,
		AudienceExpert,
	}
}

// CardContext captures the user situation a card addresses.
type CardContext struct {
	UserCategory   string `json:"user_category"`
	SpecificPain   string `json:"specific_pain"`
	WhenWhere      string `json:"when_where"`
	CurrentState   string `json:"current_state"`
	DesiredOutcome string `json:"desired_outcome"`
}

// Asset is an image or diagram placement hint inside a card.
type Asset struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Placement   string `json:"placement,omitempty"`
}

// Card is one audience-targeted knowledge unit. Every factual claim should
// carry at least one citation back to an evidence id or a named section.
type Card struct {
	Title             string      `json:"title"`
	Audience          Audience    `json:"audience"`
	Pain              string      `json:"pain"`
	Context           CardContext `json:"context"`
	ContentMarkdown   string      `json:"content_markdown"`
	ContentHTML       string      `json:"content_html,omitempty"`
	Citations         []string    `json:"citations,omitempty"`
	Tags              []string    `json:"tags,omitempty"`
	CollectionHint    string      `json:"collection_hint,omitempty"`
	RelatedCardTitles []string    `json:"related_card_titles,omitempty"`
	Assets            []Asset     `json:"assets,omitempty"`
}

// ChunkResult is the structured payload returned for one chunk.
type ChunkResult struct {
	Cards               []Card `json:"cards"`
	ExhaustivenessNotes string `json:"exhaustiveness_notes,omitempty"`
	Complete            bool   `json:"complete"`
}

// PipelineResult is the merged, deduplicated output of a whole run.
// Complete is true only if every contributing chunk reported completion;
// CardCount always equals len(Cards).
type PipelineResult struct {
	Cards               []Card `json:"cards"`
	ExhaustivenessNotes string `json:"exhaustiveness_notes,omitempty"`
	Complete            bool   `json:"complete"`
	CardCount           int    `json:"card_count"`
}
