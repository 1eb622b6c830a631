package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kbforge/knowledge-agent/internal/github"
)

// Source reads commits and file content from one repository branch. It is
// satisfied by *github.Client and by fakes in tests.
type Source interface {
	ListCommitsSince(ctx context.Context, branch string, since time.Time) ([]github.CommitRef, error)
	GetCommit(ctx context.Context, sha string) (github.CommitDetail, error)
	GetBranchHead(ctx context.Context, branch string) (string, error)
	GetContent(ctx context.Context, path, ref string) (string, error)
}

// Selection describes what to ingest from one branch. The three modes are
// combinable; their evidence lists are concatenated.
type Selection struct {
	Branch string `json:"branch"`

	// Since enables date-range mode when non-zero.
	Since time.Time `json:"since,omitempty"`
	// Files enables file-selection mode: explicit paths read at the branch head.
	Files []string `json:"files,omitempty"`
	// Commits enables commit-selection mode: explicit commit SHAs.
	Commits []string `json:"commits,omitempty"`
}

// DiffRenderer turns a changed file into the snippet body placed on the
// evidence item. The default renders the full new content under a diff-style
// header rather than computing a minimal delta; a real diff algorithm can be
// substituted without changing the Item contract.
type DiffRenderer interface {
	Render(path string, oldContent, newContent string, change ChangeType) string
}

type newContentDiff struct{}

func (newContentDiff) Render(path string, _, newContent string, change ChangeType) string {
	return fmt.Sprintf("--- %s (%s)\n%s", path, change, newContent)
}

// FileFetchError records a failure reading one selected path in file-selection
// mode. It is logged and the path skipped; the run continues.
type FileFetchError struct {
	Path string
	Ref  string
	Err  error
}

func (e *FileFetchError) Error() string {
	return fmt.Sprintf("evidence: fetch %s at %s: %v", e.Path, e.Ref, e.Err)
}

func (e *FileFetchError) Unwrap() error { return e.Err }

// Fetcher walks version-control history and produces typed evidence records,
// running each file body through the content size governor.
type Fetcher struct {
	source     Source
	sourceName string
	governor   *Governor
	diff       DiffRenderer
	log        *slog.Logger
}

type FetcherOptions struct {
	Source Source
	// SourceName is the human-readable origin label stamped on every item.
	SourceName string
	Governor   *Governor
	// Diff overrides the default full-new-content renderer.
	Diff   DiffRenderer
	Logger *slog.Logger
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.Source == nil {
		return nil, errors.New("evidence: missing source")
	}
	name := strings.TrimSpace(opts.SourceName)
	if name == "" {
		return nil, errors.New("evidence: missing source name")
	}
	gov := opts.Governor
	if gov == nil {
		gov = NewGovernor(DefaultGovernorConfig())
	}
	diff := opts.Diff
	if diff == nil {
		diff = newContentDiff{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		source:     opts.Source,
		sourceName: name,
		governor:   gov,
		diff:       diff,
		log:        logger,
	}, nil
}

// Fetch produces the flat evidence list for one selection. A failure to reach
// the commit list or branch head aborts the selection; a failure to fetch an
// individual selected file is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, sel Selection) ([]Item, error) {
	branch := strings.TrimSpace(sel.Branch)
	if branch == "" {
		return nil, errors.New("evidence: missing branch")
	}

	var items []Item

	if !sel.Since.IsZero() {
		got, err := f.fetchDateRange(ctx, branch, sel.Since)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}

	if len(sel.Files) > 0 {
		got, err := f.fetchSelectedFiles(ctx, branch, sel.Files)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}

	if len(sel.Commits) > 0 {
		got, err := f.fetchSelectedCommits(ctx, sel.Commits)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}

	return items, nil
}

func (f *Fetcher) fetchDateRange(ctx context.Context, branch string, since time.Time) ([]Item, error) {
	refs, err := f.source.ListCommitsSince(ctx, branch, since)
	if err != nil {
		return nil, fmt.Errorf("evidence: list commits for %s: %w", branch, err)
	}

	var items []Item
	for _, ref := range refs {
		got, err := f.processCommit(ctx, ref.SHA)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	return items, nil
}

func (f *Fetcher) fetchSelectedCommits(ctx context.Context, shas []string) ([]Item, error) {
	var items []Item
	for _, sha := range shas {
		sha = strings.TrimSpace(sha)
		if sha == "" {
			continue
		}
		got, err := f.processCommit(ctx, sha)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	return items, nil
}

func (f *Fetcher) processCommit(ctx context.Context, sha string) ([]Item, error) {
	detail, err := f.source.GetCommit(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("evidence: commit %s: %w", sha, err)
	}
	parent := detail.ParentSHA()
	timestamp := commitTimestamp(detail)

	items := make([]Item, 0, len(detail.Files))
	for _, file := range detail.Files {
		change := MapStatus(file.Status)

		var newContent string
		if change != ChangeDeleted {
			content, err := f.source.GetContent(ctx, file.Filename, detail.SHA)
			if err != nil {
				f.log.Warn("evidence: fetch new content failed",
					"commit", detail.SHA, "path", file.Filename, "error", err)
			} else {
				newContent = content
			}
		}

		var oldContent string
		if change != ChangeAdded && parent != "" {
			oldPath := file.Filename
			if change == ChangeRenamed && strings.TrimSpace(file.PreviousFilename) != "" {
				oldPath = file.PreviousFilename
			}
			content, err := f.source.GetContent(ctx, oldPath, parent)
			if err != nil {
				f.log.Debug("evidence: fetch old content failed",
					"commit", parent, "path", oldPath, "error", err)
			} else {
				oldContent = content
			}
		}

		governed := f.governor.Govern(file.Filename, f.diff.Render(file.Filename, oldContent, newContent, change))
		snippet := governed.Snippet

		metadata := map[string]any{
			"commitSha":     detail.SHA,
			"commitMessage": strings.TrimSpace(detail.Commit.Message),
			"author":        strings.TrimSpace(detail.Commit.Author.Name),
			"additions":     file.Additions,
			"deletions":     file.Deletions,
		}
		if parent != "" {
			metadata["parentSha"] = parent
		}
		if file.PreviousFilename != "" {
			metadata["previousFilename"] = file.PreviousFilename
		}
		for k, v := range governed.Metadata {
			metadata[k] = v
		}

		items = append(items, Item{
			ID:         NewID(f.sourceName, file.Filename, detail.SHA),
			SourceType: "github_commit",
			SourceName: f.sourceName,
			ChangeType: change,
			Identifier: file.Filename,
			Timestamp:  timestamp,
			Metadata:   metadata,
			Snippet:    &snippet,
		})
	}
	return items, nil
}

func (f *Fetcher) fetchSelectedFiles(ctx context.Context, branch string, files []string) ([]Item, error) {
	head, err := f.source.GetBranchHead(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("evidence: resolve head of %s: %w", branch, err)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339)

	var items []Item
	for _, path := range files {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		content, err := f.source.GetContent(ctx, path, head)
		if err != nil {
			// Directories and otherwise unfetchable paths are skipped, not fatal.
			ferr := &FileFetchError{Path: path, Ref: head, Err: err}
			f.log.Warn("evidence: skip selected file", "error", ferr)
			continue
		}

		governed := f.governor.Govern(path, content)
		snippet := governed.Snippet
		metadata := map[string]any{
			"ref":    head,
			"branch": branch,
		}
		for k, v := range governed.Metadata {
			metadata[k] = v
		}

		items = append(items, Item{
			ID:         NewID(f.sourceName, path, head),
			SourceType: "github_file",
			SourceName: f.sourceName,
			ChangeType: ChangeOther,
			Identifier: path,
			Timestamp:  timestamp,
			Metadata:   metadata,
			Snippet:    &snippet,
		})
	}
	return items, nil
}

func commitTimestamp(detail github.CommitDetail) string {
	if ts := strings.TrimSpace(detail.Commit.Committer.Date); ts != "" {
		return ts
	}
	if ts := strings.TrimSpace(detail.Commit.Author.Date); ts != "" {
		return ts
	}
	return time.Now().UTC().Format(time.RFC3339)
}
