// Package github implements the GitHub REST adapter: repository
// enumeration, metadata/README/CODEOWNERS fetch, and commit-history
// pagination, grounded on internal/adapters/ingest/github's retry and
// rate-limit handling and on original_source/clients/github_connector.py's
// field mapping.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/ratelimit"
)

const (
	baseURLDefault = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	defaultUA      = "codecat-scanner"
)

// Options configures a Client.
type Options struct {
	BaseURL   string // override for GitHub Enterprise Server
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// Client is a thin GitHub REST v3 client. Retries and pacing live one layer
// up in the orchestrator (internal/scan/retry, internal/scan/delay); this
// client only issues requests and classifies their outcome.
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
	last http.Header
}

// NewClient builds a Client with sane defaults.
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("adapter.github"),
	}
}

// StatusError wraps a non-2xx GitHub response.
type StatusError struct {
	Status  int
	Body    string
	Headers http.Header
	Err     error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// IsForbidden reports whether err is a 403 StatusError.
func IsForbidden(err error) bool { return statusIs(err, http.StatusForbidden) }

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsRateLimited reports whether err should be retried by the shared retry helper.
func IsRateLimited(err error) bool {
	return statusIs(err, http.StatusTooManyRequests) || statusIs(err, http.StatusForbidden)
}

// IsAPIError reports whether err is any other non-2xx GitHub response.
func IsAPIError(err error) bool {
	var se *StatusError
	return asStatusError(err, &se)
}

func statusIs(err error, code int) bool {
	var se *StatusError
	if !asStatusError(err, &se) {
		return false
	}
	return se.Status == code
}

func asStatusError(err error, target **StatusError) bool {
	se, ok := err.(*StatusError)
	if ok {
		*target = se
		return true
	}
	return false
}

// RetryAfter extracts a server-supplied wait from err's response headers.
func RetryAfter(err error) (time.Duration, bool) {
	var se *StatusError
	if !asStatusError(err, &se) || se.Headers == nil {
		return 0, false
	}
	ra := se.Headers.Get("Retry-After")
	if ra == "" {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(ra, "%d", &n); err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// do issues an authenticated GET and returns the raw body plus headers.
func (c *Client) do(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "github new request failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "token "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "github request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.last = resp.Header
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.Header, perr.Wrapf(err, perr.ErrorCodeUnknown, "github read body failed")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, resp.Header, nil
	default:
		return body, resp.Header, &StatusError{
			Status:  resp.StatusCode,
			Body:    strings.TrimSpace(string(body)),
			Headers: resp.Header,
			Err:     perr.Newf(mapCode(resp.StatusCode), "github %s -> %d", path, resp.StatusCode),
		}
	}
}

func mapCode(status int) perr.ErrorCode {
	switch status {
	case http.StatusNotFound:
		return perr.ErrorCodeNotFound
	case http.StatusGone:
		return perr.ErrorCodeGone
	case http.StatusUnavailableForLegalReasons:
		return perr.ErrorCodeLegal
	case http.StatusUnauthorized:
		return perr.ErrorCodeUnauthorized
	case http.StatusForbidden:
		return perr.ErrorCodeForbidden
	case http.StatusTooManyRequests:
		return perr.ErrorCodeTooManyRequests
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return perr.ErrorCodeUnavailable
	default:
		return perr.ErrorCodeUnknown
	}
}

// LastRateLimit normalizes the most recently observed response headers.
func (c *Client) LastRateLimit() *ratelimit.Status {
	if c.last == nil {
		return nil
	}
	return ratelimit.FromGitHubHeaders(c.last)
}

// Repo is the subset of GitHub's repository document the scanner consumes.
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	Archived      bool      `json:"archived"`
	Disabled      bool      `json:"disabled"`
	Size          int64     `json:"size"`
	DefaultBranch string    `json:"default_branch"`
	Language      string    `json:"language"`
	License       *License  `json:"license"`
	HTMLURL       string    `json:"html_url"`
	Homepage      string    `json:"homepage"`
	CreatedAt     time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	Owner         Owner     `json:"owner"`
}

// License is GitHub's embedded SPDX license summary.
type License struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Owner is the repository owner (user or organization).
type Owner struct {
	Login string `json:"login"`
}

// ListOrgRepos pages through an organization's repositories.
func (c *Client) ListOrgRepos(ctx context.Context, org string, page int) ([]Repo, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/orgs/%s/repos?type=all&per_page=100&page=%d", org, page))
	if err != nil {
		return nil, err
	}
	var repos []Repo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode org repos")
	}
	return repos, nil
}

// RepoCommit is a single commit entry from the commits listing.
type RepoCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// LatestCommit fetches the newest commit on the default branch, used for
// the peek-ahead cache check.
func (c *Client) LatestCommit(ctx context.Context, owner, repo, branch string) (RepoCommit, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits?sha=%s&per_page=1", owner, repo, branch)
	body, _, err := c.do(ctx, path)
	if err != nil {
		return RepoCommit{}, err
	}
	var commits []RepoCommit
	if err := json.Unmarshal(body, &commits); err != nil {
		return RepoCommit{}, perr.Wrapf(err, perr.ErrorCodeJSON, "decode latest commit")
	}
	if len(commits) == 0 {
		return RepoCommit{}, perr.New(perr.ErrorCodeEmptyRepo, "no commits")
	}
	return commits[0], nil
}

// CommitHistory pages through commit history on branch, stopping at capN.
func (c *Client) CommitHistory(ctx context.Context, owner, repo, branch string, capN int) ([]RepoCommit, error) {
	var out []RepoCommit
	for page := 1; len(out) < capN; page++ {
		perPage := 100
		remaining := capN - len(out)
		if remaining < perPage {
			perPage = remaining
		}
		path := fmt.Sprintf("/repos/%s/%s/commits?sha=%s&per_page=%d&page=%d", owner, repo, branch, perPage, page)
		body, _, err := c.do(ctx, path)
		if err != nil {
			return out, err
		}
		var commits []RepoCommit
		if err := json.Unmarshal(body, &commits); err != nil {
			return out, perr.Wrapf(err, perr.ErrorCodeJSON, "decode commit history")
		}
		if len(commits) == 0 {
			break
		}
		out = append(out, commits...)
	}
	return out, nil
}

// Languages fetches the byte-count-per-language breakdown.
func (c *Client) Languages(ctx context.Context, owner, repo string) ([]string, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/repos/%s/%s/languages", owner, repo))
	if err != nil {
		return nil, err
	}
	var m map[string]int64
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode languages")
	}
	langs := make([]string, 0, len(m))
	for k := range m {
		langs = append(langs, k)
	}
	return langs, nil
}

// Topics fetches a repository's topic list (used as tags).
func (c *Client) Topics(ctx context.Context, owner, repo string) ([]string, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/repos/%s/%s/topics", owner, repo))
	if err != nil {
		return nil, err
	}
	var out struct {
		Names []string `json:"names"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode topics")
	}
	return out.Names, nil
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	HTMLURL  string `json:"html_url"`
}

// FetchTextFile fetches and base64-decodes a repository file's content.
func (c *Client) FetchTextFile(ctx context.Context, owner, repo, path string) (string, string, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path))
	if err != nil {
		return "", "", err
	}
	var cr contentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", "", perr.Wrapf(err, perr.ErrorCodeJSON, "decode content response")
	}
	return cr.Content, cr.HTMLURL, nil
}
