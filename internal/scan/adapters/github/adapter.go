package github

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"codecat/internal/scan/adapters"
	"codecat/internal/scan/decode"
	"codecat/internal/scan/fetch"
	"codecat/internal/scan/model"
	"codecat/internal/scan/ratelimit"
)

// codeownersPaths mirrors
// original_source/clients/github_connector.py's CODEOWNERS candidate list.
var codeownersPaths = []string{".github/CODEOWNERS", "docs/CODEOWNERS", "CODEOWNERS"}

const defaultLicenseName = "Apache License 2.0"
const defaultLicenseURL = "https://www.apache.org/licenses/LICENSE-2.0"

// Adapter implements adapters.Adapter for GitHub.org targets.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a Client as an adapters.Adapter.
func NewAdapter(c *Client) *Adapter { return &Adapter{client: c} }

// Platform identifies this adapter's platform.
func (a *Adapter) Platform() model.Platform { return model.PlatformGitHub }

// RateLimitStatus returns the client's last-observed rate limit.
func (a *Adapter) RateLimitStatus() *ratelimit.Status { return a.client.LastRateLimit() }

// EnumerateStubs pages an organization's repositories, skipping forks and
// stale private/internal repositories per spec.md 4.5.
func (a *Adapter) EnumerateStubs(ctx context.Context, org string, filters adapters.Filters) (<-chan adapters.RepoStub, int, error) {
	out := make(chan adapters.RepoStub)
	var count int

	repos, err := a.collectAll(ctx, org)
	if err != nil {
		close(out)
		return out, 0, err
	}

	go func() {
		defer close(out)
		for _, r := range repos {
			if r.Fork {
				continue
			}
			visibility := model.VisibilityPublic
			if r.Private {
				visibility = model.VisibilityPrivate
			}
			if visibility.IsPrivate() && !filters.PrivateCutoff.IsZero() && r.PushedAt.Before(filters.PrivateCutoff) {
				continue
			}
			if !filters.CreatedAfter.IsZero() && r.CreatedAt.Before(filters.CreatedAfter) {
				continue
			}
			stub := adapters.RepoStub{
				PlatformRepoID: strconv.FormatInt(r.ID, 10),
				Name:           r.Name,
				Organization:   r.Owner.Login,
				Owner:          r.Owner.Login,
				DefaultBranch:  r.DefaultBranch,
				Private:        r.Private,
				Archived:       r.Archived,
				Fork:           r.Fork,
				SizeZero:       r.Size == 0,
				LastActivity:   r.PushedAt,
			}
			select {
			case out <- stub:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Estimated call budget: 1 SHA + 5 metadata/readme/codeowners/tags/
	// buffer calls per repository. Commit-history calls for labor-hours
	// estimation are not counted, here or in the orchestrator.
	count = len(repos) * 6
	return out, count, nil
}

func (a *Adapter) collectAll(ctx context.Context, org string) ([]Repo, error) {
	var all []Repo
	for page := 1; ; page++ {
		repos, err := a.client.ListOrgRepos(ctx, org, page)
		if err != nil {
			return all, err
		}
		if len(repos) == 0 {
			break
		}
		all = append(all, repos...)
		if len(repos) < 100 {
			break
		}
	}
	return all, nil
}

// FetchCurrentCommit fetches the latest commit SHA on the default branch.
func (a *Adapter) FetchCurrentCommit(ctx context.Context, stub adapters.RepoStub) (string, time.Time, bool, error) {
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	c, err := a.client.LatestCommit(ctx, stub.Owner, stub.Name, branch)
	if err != nil {
		if IsNotFound(err) {
			return "", time.Time{}, true, nil
		}
		return "", time.Time{}, false, err
	}
	return c.SHA, c.Commit.Author.Date, false, nil
}

// FetchMetadata fetches the full repository metadata document and maps it
// onto the shared model.Repository shape.
func (a *Adapter) FetchMetadata(ctx context.Context, stub adapters.RepoStub) (model.Repository, error) {
	langs, err := a.client.Languages(ctx, stub.Owner, stub.Name)
	if err != nil {
		langs = nil
	}
	topics, err := a.client.Topics(ctx, stub.Owner, stub.Name)
	if err != nil {
		topics = nil
	}

	licenses := []model.License{{Name: defaultLicenseName, URL: defaultLicenseURL}}

	visibility := model.VisibilityPublic
	if stub.Private {
		visibility = model.VisibilityPrivate
	}

	r := model.Repository{
		Name:           stub.Name,
		Organization:   stub.Organization,
		Platform:       model.PlatformGitHub,
		PlatformRepoID: stub.PlatformRepoID,
		RepositoryURL:  "https://github.com/" + stub.Owner + "/" + stub.Name,
		HomepageURL:    "https://github.com/" + stub.Owner + "/" + stub.Name,
		VCS:            "git",
		Languages:      langs,
		Tags:           topics,
		Visibility:     visibility,
		Archived:       stub.Archived,
		SizeZero:       stub.SizeZero,
		Status:         model.StatusDevelopment,
		Version:        "N/A",
		Permissions:    model.Permissions{Licenses: licenses},
		Contact:        model.Contact{Name: "Centers for Disease Control and Prevention"},
	}
	r.SetActivityDates(stub.LastActivity.Format(time.RFC3339), stub.LastActivity.Format(time.RFC3339))
	return r, nil
}

// FetchReadme fetches README content over the well-known path plus the raw
// content endpoint via the optional-content fetcher.
func (a *Adapter) FetchReadme(ctx context.Context, stub adapters.RepoStub) (string, string, bool, error) {
	res := fetch.Fetch(func(path string) (string, error) {
		b64, htmlURL, err := a.client.FetchTextFile(ctx, stub.Owner, stub.Name, path)
		if err != nil {
			return "", err
		}
		raw, decErr := base64.StdEncoding.DecodeString(stripNewlines(b64))
		if decErr != nil {
			return "", decErr
		}
		return decode.Text(raw) + "\x00" + htmlURL, nil
	}, fetch.Options{
		Candidates: []string{"README.md"},
		Exceptions: githubExceptions(),
	}, "github:readme:"+stub.Name)

	if res.Kind == fetch.KindOK {
		parts := strings.SplitN(res.Content, "\x00", 2)
		text := parts[0]
		url := ""
		if len(parts) > 1 {
			url = parts[1]
		}
		return text, url, false, nil
	}
	if res.Kind == fetch.KindEmptyRepo {
		return "", "", true, nil
	}
	if res.Kind == fetch.KindNotFound {
		return "", "", false, nil
	}
	return "", "", false, readmeError(res)
}

// FetchCodeowners fetches CODEOWNERS content over the standard candidate paths.
func (a *Adapter) FetchCodeowners(ctx context.Context, stub adapters.RepoStub) (string, bool, error) {
	res := fetch.Fetch(func(path string) (string, error) {
		b64, _, err := a.client.FetchTextFile(ctx, stub.Owner, stub.Name, path)
		if err != nil {
			return "", err
		}
		raw, decErr := base64.StdEncoding.DecodeString(stripNewlines(b64))
		if decErr != nil {
			return "", decErr
		}
		return decode.Text(raw), nil
	}, fetch.Options{
		Candidates:      codeownersPaths,
		Exceptions:      githubExceptions(),
		MaxQuickRetries: 2,
	}, "github:codeowners:"+stub.Name)

	switch res.Kind {
	case fetch.KindOK:
		return res.Content, false, nil
	case fetch.KindEmptyRepo:
		return "", true, nil
	case fetch.KindNotFound:
		return "", false, nil
	default:
		return "", false, readmeError(res)
	}
}

// FetchCommitHistory pages commit history on branch, capped at capN entries.
func (a *Adapter) FetchCommitHistory(ctx context.Context, stub adapters.RepoStub, branch string, capN int) ([]adapters.CommitEntry, error) {
	if branch == "" {
		branch = stub.DefaultBranch
	}
	if branch == "" {
		branch = "main"
	}
	commits, err := a.client.CommitHistory(ctx, stub.Owner, stub.Name, branch, capN)
	if err != nil {
		return nil, err
	}
	out := make([]adapters.CommitEntry, 0, len(commits))
	for _, c := range commits {
		out = append(out, adapters.CommitEntry{
			AuthorName:  c.Commit.Author.Name,
			AuthorEmail: c.Commit.Author.Email,
			Date:        c.Commit.Author.Date,
		})
	}
	return out, nil
}

func githubExceptions() fetch.ExceptionMap {
	return fetch.ExceptionMap{
		IsForbidden: IsForbidden,
		IsNotFound:  IsNotFound,
		IsAPIError:  IsAPIError,
	}
}

func readmeError(res fetch.Result) error {
	return &fetchError{kind: res.Kind, path: res.Path}
}

type fetchError struct {
	kind fetch.Kind
	path string
}

func (e *fetchError) Error() string { return "github optional-content fetch failed" }

func stripNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", ""), "\r", "")
}
