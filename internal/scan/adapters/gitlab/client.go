// Package gitlab implements the GitLab REST adapter, grounded on the
// github adapter's structure and on
// original_source/clients/gitlab_connector.py's field mapping and
// candidate-path lists.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/ratelimit"
)

const (
	baseURLDefault = "https://gitlab.com"
	defaultTimeout = 30 * time.Second
	defaultUA      = "codecat-scanner"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a thin GitLab REST v4 client.
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
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("adapter.gitlab"),
	}
}

// StatusError wraps a non-2xx GitLab response.
type StatusError struct {
	Status  int
	Body    string
	Headers http.Header
	Err     error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

func asStatusError(err error, target **StatusError) bool {
	se, ok := err.(*StatusError)
	if ok {
		*target = se
		return true
	}
	return false
}

// IsForbidden reports whether err is a 403 StatusError.
func IsForbidden(err error) bool { return statusIs(err, http.StatusForbidden) }

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool { return statusIs(err, http.StatusNotFound) }

// IsRateLimited reports whether err warrants a retry.
func IsRateLimited(err error) bool { return statusIs(err, http.StatusTooManyRequests) }

// IsAPIError reports whether err is any other non-2xx GitLab response.
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

func (c *Client) do(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/api/v4"+path, nil)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "gitlab new request failed")
	}
	req.Header.Set("User-Agent", defaultUA)
	if c.opts.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "gitlab request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.last = resp.Header
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.Header, perr.Wrapf(err, perr.ErrorCodeUnknown, "gitlab read body failed")
	}

	if resp.StatusCode == http.StatusOK {
		return body, resp.Header, nil
	}
	return body, resp.Header, &StatusError{
		Status:  resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
		Headers: resp.Header,
		Err:     perr.Newf(mapCode(resp.StatusCode), "gitlab %s -> %d", path, resp.StatusCode),
	}
}

func mapCode(status int) perr.ErrorCode {
	switch status {
	case http.StatusNotFound:
		return perr.ErrorCodeNotFound
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
	return ratelimit.FromGitLabHeaders(c.last)
}

// Project is the subset of GitLab's project document the scanner consumes.
type Project struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	PathWithNamespace string    `json:"path_with_namespace"`
	Description       string    `json:"description"`
	Visibility        string    `json:"visibility"`
	DefaultBranch     string    `json:"default_branch"`
	WebURL            string    `json:"web_url"`
	Archived          bool      `json:"archived"`
	ForkedFromProject *struct{} `json:"forked_from_project"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	Statistics        *struct {
		RepositorySize int64 `json:"repository_size"`
	} `json:"statistics"`
	TagList []string `json:"tag_list"`
}

// GroupProjects lists a group's projects (including subgroups), paginated.
func (c *Client) GroupProjects(ctx context.Context, group string, page int) ([]Project, error) {
	path := fmt.Sprintf("/groups/%s/projects?include_subgroups=true&with_shared=false&statistics=true&per_page=100&page=%d",
		url.PathEscape(group), page)
	body, _, err := c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode group projects")
	}
	return projects, nil
}

// Commit is a single commit entry.
type Commit struct {
	ID             string    `json:"id"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	AuthoredDate   time.Time `json:"authored_date"`
	CommittedDate  time.Time `json:"committed_date"`
}

// LatestCommit fetches the single most recent commit on ref.
func (c *Client) LatestCommit(ctx context.Context, projectID int64, ref string) (Commit, error) {
	path := fmt.Sprintf("/projects/%d/repository/commits?ref_name=%s&per_page=1", projectID, url.QueryEscape(ref))
	body, _, err := c.do(ctx, path)
	if err != nil {
		return Commit{}, err
	}
	var commits []Commit
	if err := json.Unmarshal(body, &commits); err != nil {
		return Commit{}, perr.Wrapf(err, perr.ErrorCodeJSON, "decode latest commit")
	}
	if len(commits) == 0 {
		return Commit{}, perr.New(perr.ErrorCodeEmptyRepo, "no commits")
	}
	return commits[0], nil
}

// CommitHistory pages commit history on ref, stopping at capN.
func (c *Client) CommitHistory(ctx context.Context, projectID int64, ref string, capN int) ([]Commit, error) {
	var out []Commit
	for page := 1; len(out) < capN; page++ {
		perPage := 100
		if remaining := capN - len(out); remaining < perPage {
			perPage = remaining
		}
		path := fmt.Sprintf("/projects/%d/repository/commits?ref_name=%s&per_page=%d&page=%d",
			projectID, url.QueryEscape(ref), perPage, page)
		body, _, err := c.do(ctx, path)
		if err != nil {
			return out, err
		}
		var commits []Commit
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

// RawFile fetches a file's raw content from a project at ref.
func (c *Client) RawFile(ctx context.Context, projectID int64, path, ref string) ([]byte, error) {
	p := fmt.Sprintf("/projects/%d/repository/files/%s/raw?ref=%s", projectID, url.PathEscape(path), url.QueryEscape(ref))
	return firstOf(c.do(ctx, p))
}

func firstOf(b []byte, _ http.Header, err error) ([]byte, error) { return b, err }

// Tags lists tag names for a project.
func (c *Client) Tags(ctx context.Context, projectID int64) ([]string, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/projects/%d/repository/tags?per_page=100", projectID))
	if err != nil {
		return nil, err
	}
	var tags []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode tags")
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names, nil
}

// Languages fetches a project's language breakdown.
func (c *Client) Languages(ctx context.Context, projectID int64) ([]string, error) {
	body, _, err := c.do(ctx, fmt.Sprintf("/projects/%d/languages", projectID))
	if err != nil {
		return nil, err
	}
	var m map[string]float64
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode languages")
	}
	langs := make([]string, 0, len(m))
	for k := range m {
		langs = append(langs, k)
	}
	return langs, nil
}
