// Package azure implements the Azure DevOps REST adapter, grounded on the
// github/gitlab adapters' structure and on
// original_source/clients/azure_devops_connector.py's auth and item-API
// usage. Authentication is PAT Basic-auth or OAuth2 client-credentials for
// a service principal, per spec.md 6 and SPEC_FULL.md 18.
package azure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/ratelimit"
)

const (
	apiVersion     = "7.1"
	defaultTimeout = 30 * time.Second
	defaultUA      = "codecat-scanner"
)

// ServicePrincipal configures OAuth2 client-credentials auth.
type ServicePrincipal struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Options configures a Client.
type Options struct {
	OrgURL           string // e.g. https://dev.azure.com/myorg
	PAT              string
	ServicePrincipal *ServicePrincipal
	Timeout          time.Duration
}

// Client is a thin Azure DevOps REST client.
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
	last http.Header
}

// NewClient builds a Client, preferring service-principal OAuth2 when
// complete over a PAT, per spec.md 4.11 step 1.
func NewClient(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: o.Timeout}

	if sp := o.ServicePrincipal; sp != nil && sp.ClientID != "" && sp.ClientSecret != "" && sp.TenantID != "" {
		cfg := clientcredentials.Config{
			ClientID:     sp.ClientID,
			ClientSecret: sp.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", sp.TenantID),
			Scopes:       []string{"499b84ac-1321-427f-aa17-267ca6975798/.default"},
		}
		httpClient = cfg.Client(context.Background())
		httpClient.Timeout = o.Timeout
	}

	return &Client{
		http: httpClient,
		opts: o,
		log:  *logger.Named("adapter.azure"),
	}
}

// StatusError wraps a non-2xx Azure DevOps response.
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

// IsNotFound reports whether err is a 404 StatusError, or matches Azure's
// TF401019 "item not found" message embedded in an otherwise generic error.
func IsNotFound(err error) bool {
	if statusIs(err, http.StatusNotFound) {
		return true
	}
	var se *StatusError
	if asStatusError(err, &se) {
		return strings.Contains(se.Body, "TF401019") || strings.Contains(strings.ToLower(se.Body), "does not exist")
	}
	return false
}

// IsRateLimited reports whether err warrants a retry.
func IsRateLimited(err error) bool { return statusIs(err, http.StatusTooManyRequests) }

// IsAPIError reports whether err is any other non-2xx Azure DevOps response.
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
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	full := c.opts.OrgURL + path + sep + "api-version=" + apiVersion

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "azure new request failed")
	}
	req.Header.Set("User-Agent", defaultUA)
	if c.opts.ServicePrincipal == nil && c.opts.PAT != "" {
		basic := base64.StdEncoding.EncodeToString([]byte(":" + c.opts.PAT))
		req.Header.Set("Authorization", "Basic "+basic)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "azure request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.last = resp.Header
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.Header, perr.Wrapf(err, perr.ErrorCodeUnknown, "azure read body failed")
	}

	if resp.StatusCode == http.StatusOK {
		return body, resp.Header, nil
	}
	return body, resp.Header, &StatusError{
		Status:  resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
		Headers: resp.Header,
		Err:     perr.Newf(mapCode(resp.StatusCode), "azure %s -> %d", path, resp.StatusCode),
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

// LastRateLimit normalizes the most recently observed response headers,
// falling back to the conservative placeholder per spec.md 4.2.
func (c *Client) LastRateLimit() *ratelimit.Status {
	return ratelimit.FromAzureHeaders(c.last, time.Now().UTC())
}

// Repository is the subset of Azure DevOps's git repository document the
// scanner consumes.
type Repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	Size          int64  `json:"size"`
	WebURL        string `json:"webUrl"`
	IsDisabled    bool   `json:"isDisabled"`
	IsFork        bool   `json:"isFork"`
	Project       struct {
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
	} `json:"project"`
}

// ListRepositories lists a project's git repositories.
func (c *Client) ListRepositories(ctx context.Context, project string) ([]Repository, error) {
	path := fmt.Sprintf("/%s/_apis/git/repositories", url.PathEscape(project))
	body, _, err := c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Value []Repository `json:"value"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode repositories")
	}
	return out.Value, nil
}

// Commit is a single commit entry.
type Commit struct {
	CommitID string `json:"commitId"`
	Author   struct {
		Name  string    `json:"name"`
		Email string    `json:"email"`
		Date  time.Time `json:"date"`
	} `json:"author"`
}

// LatestCommit fetches the single most recent commit on branch.
func (c *Client) LatestCommit(ctx context.Context, project, repoID, branch string) (Commit, error) {
	path := fmt.Sprintf("/%s/_apis/git/repositories/%s/commits?searchCriteria.itemVersion.version=%s&$top=1",
		url.PathEscape(project), repoID, url.QueryEscape(branch))
	body, _, err := c.do(ctx, path)
	if err != nil {
		return Commit{}, err
	}
	var out struct {
		Value []Commit `json:"value"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Commit{}, perr.Wrapf(err, perr.ErrorCodeJSON, "decode latest commit")
	}
	if len(out.Value) == 0 {
		return Commit{}, perr.New(perr.ErrorCodeEmptyRepo, "no commits")
	}
	return out.Value[0], nil
}

// CommitHistory pages commit history on branch, stopping at capN.
func (c *Client) CommitHistory(ctx context.Context, project, repoID, branch string, capN int) ([]Commit, error) {
	var out []Commit
	for skip := 0; len(out) < capN; skip += 100 {
		top := 100
		if remaining := capN - len(out); remaining < top {
			top = remaining
		}
		path := fmt.Sprintf("/%s/_apis/git/repositories/%s/commits?searchCriteria.itemVersion.version=%s&$top=%d&$skip=%d",
			url.PathEscape(project), repoID, url.QueryEscape(branch), top, skip)
		body, _, err := c.do(ctx, path)
		if err != nil {
			return out, err
		}
		var page struct {
			Value []Commit `json:"value"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return out, perr.Wrapf(err, perr.ErrorCodeJSON, "decode commit history")
		}
		if len(page.Value) == 0 {
			break
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

// Item fetches raw file content from a repository at a path and branch.
func (c *Client) Item(ctx context.Context, project, repoID, path, branch string) ([]byte, error) {
	p := fmt.Sprintf("/%s/_apis/git/repositories/%s/items?path=%s&versionDescriptor.version=%s&includeContent=true",
		url.PathEscape(project), repoID, url.QueryEscape(path), url.QueryEscape(branch))
	body, _, err := c.do(ctx, p)
	if err != nil {
		return nil, err
	}
	return body, nil
}
