// Package chunker splits an oversized Raw Context document into ordered,
// re-joinable pieces under a token budget. The leading frontmatter header is
// extracted once and attached to every chunk without counting toward any
// chunk's budget.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultTokenBudget is the per-chunk token budget. The source material
// carried two constants (150k and 200k); 150k is the conservative choice and
// leaves headroom for the prompt scaffolding around each chunk.
const DefaultTokenBudget = 150_000

// TokenEstimator approximates the token count of a text. The default is a
// fixed characters-per-token ratio; a precise tokenizer can be substituted
// without changing chunker call sites.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharRatioEstimator estimates ceil(len/ratio) tokens.
type CharRatioEstimator struct {
	// CharsPerToken defaults to 4 when <= 0.
	CharsPerToken int
}

func (e CharRatioEstimator) Estimate(text string) int {
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + ratio - 1) / ratio
}

// Chunk is one token-bounded slice of a document. Chunks ordered by Index
// and concatenated (content only) reconstruct the original body losslessly
// except for whitespace normalized at cut points.
type Chunk struct {
	Content     string `json:"content"`
	Index       int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Frontmatter string `json:"frontmatter,omitempty"`
}

// Chunker slices documents sequentially at whitespace-snapped boundaries.
type Chunker struct {
	budget    int
	estimator TokenEstimator
}

type Options struct {
	// TokenBudget per chunk; DefaultTokenBudget when <= 0.
	TokenBudget int
	// Estimator defaults to CharRatioEstimator{4}.
	Estimator TokenEstimator
}

func New(opts Options) *Chunker {
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	est := opts.Estimator
	if est == nil {
		est = CharRatioEstimator{}
	}
	return &Chunker{budget: budget, estimator: est}
}

// Split divides the document into chunks. Documents within budget yield a
// single chunk equal to the body (frontmatter aside).
func (c *Chunker) Split(document string) []Chunk {
	frontmatter, body := ExtractFrontmatter(document)

	tokens := c.estimator.Estimate(body)
	if tokens <= c.budget {
		return []Chunk{{Content: body, Index: 0, TotalChunks: 1, Frontmatter: frontmatter}}
	}

	estimated := (tokens + c.budget - 1) / c.budget
	targetSize := len(body) / estimated
	if targetSize <= 0 {
		targetSize = len(body)
	}

	var chunks []Chunk
	rest := body
	for len(rest) > 0 {
		if len(rest) <= targetSize {
			chunks = append(chunks, Chunk{Content: rest})
			break
		}
		cut := snapBack(rest, targetSize)
		chunks = append(chunks, Chunk{Content: rest[:cut]})
		rest = strings.TrimLeft(rest[cut:], " \n")
	}

	// Stamp the actual final count, not the estimate.
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
		chunks[i].Frontmatter = frontmatter
	}
	return chunks
}

// snapBack moves a candidate cut point backward to the nearest preceding
// space or newline so no chunk boundary falls mid-word.
func snapBack(text string, cut int) int {
	if cut >= len(text) {
		return len(text)
	}
	if isCutSafe(text, cut) {
		return cut
	}
	for i := cut; i > 0; i-- {
		if text[i-1] == ' ' || text[i-1] == '\n' {
			return i
		}
	}
	return cut
}

func isCutSafe(text string, cut int) bool {
	before := rune(text[cut-1])
	after := rune(text[cut])
	return unicode.IsSpace(before) || unicode.IsSpace(after)
}

// ExtractFrontmatter splits a leading `---` delimited YAML header from the
// document body. Documents without a header return ("", document).
func ExtractFrontmatter(document string) (frontmatter, body string) {
	if !strings.HasPrefix(document, "---\n") {
		return "", document
	}
	end := strings.Index(document[4:], "\n---")
	if end < 0 {
		return "", document
	}
	headerEnd := 4 + end + len("\n---")
	frontmatter = document[:headerEnd]
	body = document[headerEnd:]
	// Swallow the delimiter's trailing newline(s) so the body starts clean.
	body = strings.TrimLeft(body, "\n")
	return frontmatter, body
}
