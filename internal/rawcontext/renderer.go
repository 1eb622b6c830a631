// Package rawcontext renders the evidence set for one run into a single
// deterministic text document: a machine-parseable YAML frontmatter header
// followed by fixed-order markdown sections. The document is the input to
// chunking and downstream structured generation.
package rawcontext

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kbforge/knowledge-agent/internal/evidence"
)

// Header is the machine-parseable state container carried in the document
// frontmatter. Later phases treat it as opaque text attached to every chunk.
type Header struct {
	RunID         string   `yaml:"run_id"`
	GeneratedAt   string   `yaml:"generated_at"`
	TotalEvidence int      `yaml:"total_evidence"`
	Sources       []string `yaml:"sources,omitempty"`
	ChangePeriod  string   `yaml:"change_period,omitempty"`
}

// Input is everything the renderer needs. Rendering is pure: the same input
// always yields the same document.
type Input struct {
	RunID       string
	GeneratedAt string
	Items       []evidence.Item
}

// Render serializes the evidence set into the Raw Context document.
// Section order is fixed: frontmatter, Executive Summary, optional Dependency
// Summary, Changes by Data Source, Changes by Change Type, Detailed Evidence.
func Render(in Input) (string, error) {
	items := sortedItems(in.Items)

	header := Header{
		RunID:         strings.TrimSpace(in.RunID),
		GeneratedAt:   strings.TrimSpace(in.GeneratedAt),
		TotalEvidence: len(items),
		Sources:       sourceNames(items),
		ChangePeriod:  changePeriod(items),
	}
	headerYAML, err := yaml.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("rawcontext: marshal header: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(headerYAML)
	b.WriteString("---\n\n")
	b.WriteString("# Consolidated Source of Truth - New Changes\n\n")

	writeExecutiveSummary(&b, items)
	writeDependencySummary(&b, items)
	writeBySource(&b, items)
	writeByChangeType(&b, items)
	writeDetailedEvidence(&b, items)

	return b.String(), nil
}

// sortedItems orders evidence deterministically: source, then identifier,
// then id. The input slice is not mutated.
func sortedItems(items []evidence.Item) []evidence.Item {
	out := append([]evidence.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		if out[i].Identifier != out[j].Identifier {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sourceNames(items []evidence.Item) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, it := range items {
		if _, ok := seen[it.SourceName]; ok {
			continue
		}
		seen[it.SourceName] = struct{}{}
		names = append(names, it.SourceName)
	}
	sort.Strings(names)
	return names
}

func changePeriod(items []evidence.Item) string {
	if len(items) == 0 {
		return ""
	}
	earliest, latest := items[0].Timestamp, items[0].Timestamp
	for _, it := range items[1:] {
		if it.Timestamp < earliest {
			earliest = it.Timestamp
		}
		if it.Timestamp > latest {
			latest = it.Timestamp
		}
	}
	if earliest == latest {
		return earliest
	}
	return earliest + " to " + latest
}

func writeExecutiveSummary(b *strings.Builder, items []evidence.Item) {
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(b, "**Total Evidence Items**: %d\n\n", len(items))

	themes := inferThemes(items)
	if len(themes) > 0 {
		b.WriteString("**Observed Themes**:\n")
		for _, theme := range themes {
			fmt.Fprintf(b, "- %s\n", theme)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
}

// inferThemes derives up to five workflow labels from the file extensions and
// paths present in the evidence set.
func inferThemes(items []evidence.Item) []string {
	counts := map[string]int{}
	for _, it := range items {
		counts[classify(it.Identifier)]++
	}
	type kv struct {
		label string
		n     int
	}
	var pairs []kv
	for label, n := range counts {
		pairs = append(pairs, kv{label, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].n != pairs[j].n {
			return pairs[i].n > pairs[j].n
		}
		return pairs[i].label < pairs[j].label
	})
	var out []string
	for _, p := range pairs {
		if len(out) == 5 {
			break
		}
		out = append(out, fmt.Sprintf("%s (%d items)", p.label, p.n))
	}
	return out
}

func classify(identifier string) string {
	base := strings.ToLower(path.Base(identifier))
	switch strings.ToLower(path.Ext(identifier)) {
	case ".go", ".py", ".js", ".ts", ".jsx", ".tsx", ".rb", ".java", ".rs", ".c", ".cpp":
		return "Technical Code"
	case ".md", ".rst", ".txt":
		return "Documentation"
	case ".json", ".yml", ".yaml", ".toml", ".env":
		if base == "package.json" {
			return "Dependencies"
		}
		return "Configuration"
	case ".sql":
		return "Database"
	default:
		if evidence.IsLockfile(identifier) {
			return "Dependencies"
		}
		return "Other"
	}
}

// writeDependencySummary scans every item's manifest-summary metadata and
// renders unique dependency name -> observed version strings, split runtime vs
// development. Omitted entirely when no manifest summaries are present.
func writeDependencySummary(b *strings.Builder, items []evidence.Item) {
	runtime := map[string]map[string]struct{}{}
	development := map[string]map[string]struct{}{}

	for _, it := range items {
		summary, ok := manifestSummary(it)
		if !ok {
			continue
		}
		collect(runtime, summary.Dependencies)
		collect(runtime, summary.PeerDependencies)
		collect(development, summary.DevDependencies)
	}
	if len(runtime) == 0 && len(development) == 0 {
		return
	}

	b.WriteString("## Dependency Summary\n\n")
	writeDependencyGroup(b, "Runtime Dependencies", runtime)
	writeDependencyGroup(b, "Development Dependencies", development)
	b.WriteString("---\n\n")
}

func manifestSummary(it evidence.Item) (evidence.ManifestSummary, bool) {
	raw, ok := it.Metadata["manifestSummary"]
	if !ok {
		return evidence.ManifestSummary{}, false
	}
	if summary, ok := raw.(evidence.ManifestSummary); ok {
		return summary, true
	}
	return evidence.ManifestSummary{}, false
}

func collect(dst map[string]map[string]struct{}, deps map[string]string) {
	for name, version := range deps {
		if dst[name] == nil {
			dst[name] = map[string]struct{}{}
		}
		dst[name][version] = struct{}{}
	}
}

func writeDependencyGroup(b *strings.Builder, title string, deps map[string]map[string]struct{}) {
	if len(deps) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		versions := make([]string, 0, len(deps[name]))
		for v := range deps[name] {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		fmt.Fprintf(b, "- **%s**: %s\n", name, strings.Join(versions, ", "))
	}
	b.WriteString("\n")
}

func writeBySource(b *strings.Builder, items []evidence.Item) {
	b.WriteString("## Changes by Data Source\n\n")

	bySource := map[string][]evidence.Item{}
	for _, it := range items {
		bySource[it.SourceName] = append(bySource[it.SourceName], it)
	}
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := bySource[name]
		fmt.Fprintf(b, "### %s\n\n", name)
		fmt.Fprintf(b, "*%d changes detected*\n\n", len(group))

		counts := map[evidence.ChangeType]int{}
		for _, it := range group {
			counts[it.ChangeType]++
		}
		for _, ct := range []evidence.ChangeType{evidence.ChangeAdded, evidence.ChangeModified, evidence.ChangeDeleted, evidence.ChangeRenamed, evidence.ChangeOther} {
			if counts[ct] > 0 {
				fmt.Fprintf(b, "- **%s**: %d\n", ct, counts[ct])
			}
		}
		b.WriteString("\n")

		for _, it := range group {
			fmt.Fprintf(b, "#### [%s]\n", it.ID)
			fmt.Fprintf(b, "- **Type**: %s\n", it.ChangeType)
			fmt.Fprintf(b, "- **File**: `%s`\n", it.Identifier)
			fmt.Fprintf(b, "- **Timestamp**: %s\n", it.Timestamp)
			if preview := snippetPreview(it); preview != "" {
				fmt.Fprintf(b, "- **Content Preview**: %s\n", preview)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("---\n\n")
}

func snippetPreview(it evidence.Item) string {
	text := strings.TrimSpace(it.SnippetText())
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) > 200 {
		return string(runes[:200]) + "..."
	}
	return text
}

func writeByChangeType(b *strings.Builder, items []evidence.Item) {
	b.WriteString("## Changes by Change Type\n\n")
	for _, ct := range []evidence.ChangeType{evidence.ChangeAdded, evidence.ChangeModified, evidence.ChangeDeleted, evidence.ChangeRenamed, evidence.ChangeOther} {
		var group []evidence.Item
		for _, it := range items {
			if it.ChangeType == ct {
				group = append(group, it)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s (%d changes)\n\n", titleCase(string(ct)), len(group))
		for _, it := range group {
			fmt.Fprintf(b, "- [%s] `%s` (%s)\n", it.ID, it.Identifier, it.SourceName)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeDetailedEvidence(b *strings.Builder, items []evidence.Item) {
	b.WriteString("## Detailed Evidence\n\n")
	b.WriteString("*Complete content of all detected changes for analysis*\n\n")

	for i, it := range items {
		fmt.Fprintf(b, "### Evidence %d: %s\n\n", i+1, it.ID)
		fmt.Fprintf(b, "**Source**: %s\n", it.SourceName)
		fmt.Fprintf(b, "**Type**: %s\n", it.SourceType)
		fmt.Fprintf(b, "**Change**: %s\n", it.ChangeType)
		fmt.Fprintf(b, "**File**: `%s`\n", it.Identifier)
		fmt.Fprintf(b, "**Timestamp**: %s\n", it.Timestamp)

		if len(it.Metadata) > 0 {
			b.WriteString("**Metadata**:\n")
			keys := make([]string, 0, len(it.Metadata))
			for k := range it.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(b, "- %s: %v\n", k, it.Metadata[k])
			}
		}

		b.WriteString("\n**Content**:\n```\n")
		b.WriteString(it.SnippetText())
		b.WriteString("\n```\n\n---\n\n")
	}
}
