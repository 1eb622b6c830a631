package evidence

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// LargeFileStrategy selects what happens to a file body that exceeds the
// configured size limits.
type LargeFileStrategy string

const (
	StrategySummary  LargeFileStrategy = "summary"
	StrategyHeadTail LargeFileStrategy = "headTail"
	StrategyExclude  LargeFileStrategy = "exclude"
)

const excludedPlaceholder = "[File content excluded: exceeds size limits]"

// GovernorConfig bounds how much of a file body is retained as evidence.
type GovernorConfig struct {
	MaxFileLines       int               `json:"max_file_lines"`
	MaxFileBytes       int               `json:"max_file_bytes"`
	LargeFileStrategy  LargeFileStrategy `json:"large_file_strategy"`
	SummarizeLockfiles bool              `json:"summarize_lockfiles"`
	HeadTailHeadLines  int               `json:"head_tail_head_lines"`
	HeadTailTailLines  int               `json:"head_tail_tail_lines"`
}

// DefaultGovernorConfig returns the limits used when config omits them.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MaxFileLines:       2000,
		MaxFileBytes:       100_000,
		LargeFileStrategy:  StrategyHeadTail,
		SummarizeLockfiles: true,
		HeadTailHeadLines:  200,
		HeadTailTailLines:  50,
	}
}

func (c GovernorConfig) normalize() GovernorConfig {
	d := DefaultGovernorConfig()
	if c.MaxFileLines <= 0 {
		c.MaxFileLines = d.MaxFileLines
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = d.MaxFileBytes
	}
	switch c.LargeFileStrategy {
	case StrategySummary, StrategyHeadTail, StrategyExclude:
	default:
		c.LargeFileStrategy = d.LargeFileStrategy
	}
	if c.HeadTailHeadLines <= 0 {
		c.HeadTailHeadLines = d.HeadTailHeadLines
	}
	if c.HeadTailTailLines <= 0 {
		c.HeadTailTailLines = d.HeadTailTailLines
	}
	return c
}

// Governor applies the per-file content retention policy. It is a pure
// function over the provided content and thresholds; there are no error
// conditions.
type Governor struct {
	cfg GovernorConfig
}

func NewGovernor(cfg GovernorConfig) *Governor {
	return &Governor{cfg: cfg.normalize()}
}

// GovernResult is the chosen snippet plus metadata enrichments to merge into
// the owning evidence item.
type GovernResult struct {
	Snippet  string
	Metadata map[string]any
}

var lockfileNames = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"gemfile.lock",
	"poetry.lock",
	"cargo.lock",
	"composer.lock",
	"go.sum",
}

// IsLockfile reports whether the file name matches a known lockfile pattern.
func IsLockfile(name string) bool {
	base := strings.ToLower(path.Base(strings.TrimSpace(name)))
	for _, candidate := range lockfileNames {
		if base == candidate {
			return true
		}
	}
	return false
}

// IsManifest reports whether the file is a package manifest.
func IsManifest(name string) bool {
	return strings.HasSuffix(strings.TrimSpace(name), "package.json")
}

// Govern decides how much of content survives into the evidence snippet.
func (g *Governor) Govern(filename, content string) GovernResult {
	out := GovernResult{Snippet: content, Metadata: map[string]any{}}

	lines := countLines(content)
	byteSize := len(content)

	if IsManifest(filename) {
		if summary, ok := summarizeManifest(content); ok {
			out.Metadata["manifestSummary"] = summary
		}
		// The manifest body itself still goes through the size checks below.
	}

	if IsLockfile(filename) && g.cfg.SummarizeLockfiles {
		out.Snippet = fmt.Sprintf("[Lockfile content omitted: %d lines, %d bytes]", lines, byteSize)
		out.Metadata["lockfileSummary"] = map[string]any{
			"lines":    lines,
			"byteSize": byteSize,
		}
		return out
	}

	if lines <= g.cfg.MaxFileLines && byteSize <= g.cfg.MaxFileBytes {
		return out
	}

	out.Metadata["truncated"] = true
	out.Metadata["originalLines"] = lines
	out.Metadata["originalBytes"] = byteSize

	switch g.cfg.LargeFileStrategy {
	case StrategyExclude:
		out.Snippet = excludedPlaceholder
	case StrategyHeadTail:
		out.Snippet = headTail(content, g.cfg.HeadTailHeadLines, g.cfg.HeadTailTailLines)
	default: // summary
		out.Snippet = fmt.Sprintf("[Large file summary] Lines: %d, Size: %d bytes", lines, byteSize)
	}
	return out
}

// ManifestSummary is the structured digest attached for package.json files.
type ManifestSummary struct {
	Name             string            `json:"name,omitempty"`
	Version          string            `json:"version,omitempty"`
	Scripts          map[string]string `json:"scripts,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	DevDependencies  map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
}

func summarizeManifest(content string) (ManifestSummary, bool) {
	var manifest struct {
		Name             string            `json:"name"`
		Version          string            `json:"version"`
		Scripts          map[string]string `json:"scripts"`
		Dependencies     map[string]string `json:"dependencies"`
		DevDependencies  map[string]string `json:"devDependencies"`
		PeerDependencies map[string]string `json:"peerDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return ManifestSummary{}, false
	}
	return ManifestSummary{
		Name:             manifest.Name,
		Version:          manifest.Version,
		Scripts:          manifest.Scripts,
		Dependencies:     manifest.Dependencies,
		DevDependencies:  manifest.DevDependencies,
		PeerDependencies: manifest.PeerDependencies,
	}, true
}

func headTail(content string, headLines, tailLines int) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= headLines+tailLines {
		return content
	}
	omitted := len(lines) - headLines - tailLines
	var b strings.Builder
	b.WriteString(strings.Join(lines[:headLines], "\n"))
	b.WriteString(fmt.Sprintf("\n... [%d lines omitted] ...\n", omitted))
	b.WriteString(strings.Join(lines[len(lines)-tailLines:], "\n"))
	return b.String()
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}
