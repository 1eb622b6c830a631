// Package github is a read-only client for the GitHub REST API, covering the
// three calls the pipeline needs: paginated commit listing, per-commit detail
// and per-file content retrieval.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultPerPage   = 100
	maxResponseBytes = 16 << 20 // 16 MiB
)

// ErrNotFound is returned for 404 responses so callers can distinguish a
// missing path (e.g. a directory in file-selection mode) from a hard failure.
var ErrNotFound = errors.New("github: not found")

// Client talks to one repository on a GitHub-compatible API host.
type Client struct {
	baseURL string
	token   string
	owner   string
	repo    string
	http    *http.Client
}

type Options struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	owner := strings.TrimSpace(opts.Owner)
	repo := strings.TrimSpace(opts.Repo)
	if owner == "" || repo == "" {
		return nil, errors.New("github: missing owner or repo")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(opts.Token),
		owner:   owner,
		repo:    repo,
		http:    httpClient,
	}, nil
}

// CommitRef is one entry from the commit listing.
type CommitRef struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string `json:"message"`
		Committer struct {
			Date string `json:"date"`
		} `json:"committer"`
		Author struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// CommitFile is one changed file in a commit detail response.
type CommitFile struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
}

// CommitDetail is the full detail for one commit, including its changed-file
// list and parent reference.
type CommitDetail struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string `json:"message"`
		Committer struct {
			Date string `json:"date"`
		} `json:"committer"`
		Author struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
	Files []CommitFile `json:"files"`
}

// ParentSHA returns the first parent SHA, or "" for a root commit.
func (d CommitDetail) ParentSHA() string {
	if len(d.Parents) == 0 {
		return ""
	}
	return d.Parents[0].SHA
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// ListCommitsSince pages through the commit history of branch since the given
// time, following pagination until a short page signals exhaustion.
func (c *Client) ListCommitsSince(ctx context.Context, branch string, since time.Time) ([]CommitRef, error) {
	var all []CommitRef
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("sha", branch)
		q.Set("per_page", strconv.Itoa(defaultPerPage))
		q.Set("page", strconv.Itoa(page))
		if !since.IsZero() {
			q.Set("since", since.UTC().Format(time.RFC3339))
		}

		var refs []CommitRef
		if err := c.get(ctx, "/commits?"+q.Encode(), &refs); err != nil {
			return nil, err
		}
		all = append(all, refs...)
		if len(refs) < defaultPerPage {
			return all, nil
		}
	}
}

// GetCommit fetches the full detail for one commit.
func (c *Client) GetCommit(ctx context.Context, sha string) (CommitDetail, error) {
	var detail CommitDetail
	if err := c.get(ctx, "/commits/"+url.PathEscape(strings.TrimSpace(sha)), &detail); err != nil {
		return CommitDetail{}, err
	}
	return detail, nil
}

// GetBranchHead resolves the current head SHA of a branch.
func (c *Client) GetBranchHead(ctx context.Context, branch string) (string, error) {
	var br branchResponse
	if err := c.get(ctx, "/branches/"+url.PathEscape(strings.TrimSpace(branch)), &br); err != nil {
		return "", err
	}
	if strings.TrimSpace(br.Commit.SHA) == "" {
		return "", fmt.Errorf("github: empty head for branch %s", branch)
	}
	return br.Commit.SHA, nil
}

// GetContent fetches a file's content at an arbitrary commit or branch
// reference, decoding the API's base64 payload.
func (c *Client) GetContent(ctx context.Context, path, ref string) (string, error) {
	q := url.Values{}
	if ref = strings.TrimSpace(ref); ref != "" {
		q.Set("ref", ref)
	}
	endpoint := "/contents/" + escapePath(path)
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	var resp contentResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	if resp.Type != "" && resp.Type != "file" {
		return "", fmt.Errorf("github: %s is not a file (type %s): %w", path, resp.Type, ErrNotFound)
	}
	// The API wraps base64 at 60 columns; strip whitespace before decoding.
	raw := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, resp.Content)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("github: decode content for %s: %w", path, err)
	}
	return string(decoded), nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	u := fmt.Sprintf("%s/repos/%s/%s%s", c.baseURL, c.owner, c.repo, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("github: %s: %w", endpoint, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("github: %s failed (status %d): %s", endpoint, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github: invalid response for %s: %w", endpoint, err)
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(strings.TrimSpace(p), "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
