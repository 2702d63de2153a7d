package gitlab

import (
	"context"
	"strconv"
	"time"

	"codecat/internal/scan/adapters"
	"codecat/internal/scan/decode"
	"codecat/internal/scan/fetch"
	"codecat/internal/scan/model"
	"codecat/internal/scan/ratelimit"
)

var codeownersPaths = []string{"CODEOWNERS", ".gitlab/CODEOWNERS", "docs/CODEOWNERS"}

const defaultLicenseName = "Apache License 2.0"
const defaultLicenseURL = "https://www.apache.org/licenses/LICENSE-2.0"

// Adapter implements adapters.Adapter for GitLab group targets.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a Client as an adapters.Adapter.
func NewAdapter(c *Client) *Adapter { return &Adapter{client: c} }

// Platform identifies this adapter's platform.
func (a *Adapter) Platform() model.Platform { return model.PlatformGitLab }

// RateLimitStatus returns the client's last-observed rate limit.
func (a *Adapter) RateLimitStatus() *ratelimit.Status { return a.client.LastRateLimit() }

// EnumerateStubs pages a group's projects (including subgroups), skipping
// forks and stale private/internal projects per spec.md 4.5.
func (a *Adapter) EnumerateStubs(ctx context.Context, group string, filters adapters.Filters) (<-chan adapters.RepoStub, int, error) {
	projects, err := a.collectAll(ctx, group)
	out := make(chan adapters.RepoStub)
	if err != nil {
		close(out)
		return out, 0, err
	}

	go func() {
		defer close(out)
		for _, p := range projects {
			if p.ForkedFromProject != nil {
				continue
			}
			visibility := model.Visibility(p.Visibility)
			if visibility.IsPrivate() && !filters.PrivateCutoff.IsZero() && p.LastActivityAt.Before(filters.PrivateCutoff) {
				continue
			}
			if !filters.CreatedAfter.IsZero() && p.CreatedAt.Before(filters.CreatedAfter) {
				continue
			}
			sizeZero := p.Statistics == nil || p.Statistics.RepositorySize == 0
			stub := adapters.RepoStub{
				PlatformRepoID: strconv.FormatInt(p.ID, 10),
				Name:           p.Name,
				Organization:   p.PathWithNamespace,
				Owner:          strconv.FormatInt(p.ID, 10),
				DefaultBranch:  p.DefaultBranch,
				Private:        visibility.IsPrivate(),
				Archived:       p.Archived,
				SizeZero:       sizeZero,
				LastActivity:   p.LastActivityAt,
			}
			select {
			case out <- stub:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, len(projects) * 6, nil
}

func (a *Adapter) collectAll(ctx context.Context, group string) ([]Project, error) {
	var all []Project
	for page := 1; ; page++ {
		projects, err := a.client.GroupProjects(ctx, group, page)
		if err != nil {
			return all, err
		}
		if len(projects) == 0 {
			break
		}
		all = append(all, projects...)
		if len(projects) < 100 {
			break
		}
	}
	return all, nil
}

func (a *Adapter) projectID(stub adapters.RepoStub) int64 {
	id, _ := strconv.ParseInt(stub.Owner, 10, 64)
	return id
}

// FetchCurrentCommit fetches the latest commit SHA on the default branch.
func (a *Adapter) FetchCurrentCommit(ctx context.Context, stub adapters.RepoStub) (string, time.Time, bool, error) {
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	c, err := a.client.LatestCommit(ctx, a.projectID(stub), branch)
	if err != nil {
		if IsNotFound(err) {
			return "", time.Time{}, true, nil
		}
		return "", time.Time{}, false, err
	}
	return c.ID, c.CommittedDate, false, nil
}

// FetchMetadata fetches project metadata and maps it to model.Repository.
func (a *Adapter) FetchMetadata(ctx context.Context, stub adapters.RepoStub) (model.Repository, error) {
	pid := a.projectID(stub)
	langs, err := a.client.Languages(ctx, pid)
	if err != nil {
		langs = nil
	}
	tags, err := a.client.Tags(ctx, pid)
	if err != nil {
		tags = nil
	}

	visibility := model.VisibilityPublic
	if stub.Private {
		visibility = model.VisibilityPrivate
	}

	r := model.Repository{
		Name:           stub.Name,
		Organization:   stub.Organization,
		Platform:       model.PlatformGitLab,
		PlatformRepoID: stub.PlatformRepoID,
		RepositoryURL:  "https://gitlab.com/" + stub.Organization,
		HomepageURL:    "https://gitlab.com/" + stub.Organization,
		VCS:            "git",
		Languages:      langs,
		Tags:           tags,
		Visibility:     visibility,
		Archived:       stub.Archived,
		SizeZero:       stub.SizeZero,
		Status:         model.StatusDevelopment,
		Version:        "N/A",
		Permissions:    model.Permissions{Licenses: []model.License{{Name: defaultLicenseName, URL: defaultLicenseURL}}},
		Contact:        model.Contact{Name: "Centers for Disease Control and Prevention"},
	}
	r.SetActivityDates(stub.LastActivity.Format(time.RFC3339), stub.LastActivity.Format(time.RFC3339))
	return r, nil
}

// FetchReadme fetches README content via the raw-file endpoint.
func (a *Adapter) FetchReadme(ctx context.Context, stub adapters.RepoStub) (string, string, bool, error) {
	pid := a.projectID(stub)
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	res := fetch.Fetch(func(path string) (string, error) {
		raw, err := a.client.RawFile(ctx, pid, path, branch)
		if err != nil {
			return "", err
		}
		return decode.Text(raw), nil
	}, fetch.Options{
		Candidates: []string{"README.md"},
		Exceptions: gitlabExceptions(),
	}, "gitlab:readme:"+stub.Name)

	switch res.Kind {
	case fetch.KindOK:
		return res.Content, "https://gitlab.com/" + stub.Organization + "/-/blob/" + branch + "/README.md", false, nil
	case fetch.KindEmptyRepo:
		return "", "", true, nil
	case fetch.KindNotFound:
		return "", "", false, nil
	default:
		return "", "", false, &fetchError{kind: res.Kind}
	}
}

// FetchCodeowners fetches CODEOWNERS content over the standard candidate paths.
func (a *Adapter) FetchCodeowners(ctx context.Context, stub adapters.RepoStub) (string, bool, error) {
	pid := a.projectID(stub)
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	res := fetch.Fetch(func(path string) (string, error) {
		raw, err := a.client.RawFile(ctx, pid, path, branch)
		if err != nil {
			return "", err
		}
		return decode.Text(raw), nil
	}, fetch.Options{
		Candidates:      codeownersPaths,
		Exceptions:      gitlabExceptions(),
		MaxQuickRetries: 2,
	}, "gitlab:codeowners:"+stub.Name)

	switch res.Kind {
	case fetch.KindOK:
		return res.Content, false, nil
	case fetch.KindEmptyRepo:
		return "", true, nil
	case fetch.KindNotFound:
		return "", false, nil
	default:
		return "", false, &fetchError{kind: res.Kind}
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
	commits, err := a.client.CommitHistory(ctx, a.projectID(stub), branch, capN)
	if err != nil {
		return nil, err
	}
	out := make([]adapters.CommitEntry, 0, len(commits))
	for _, c := range commits {
		out = append(out, adapters.CommitEntry{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail, Date: c.AuthoredDate})
	}
	return out, nil
}

func gitlabExceptions() fetch.ExceptionMap {
	return fetch.ExceptionMap{
		IsForbidden: IsForbidden,
		IsNotFound:  IsNotFound,
		IsAPIError:  IsAPIError,
	}
}

type fetchError struct{ kind fetch.Kind }

func (e *fetchError) Error() string { return "gitlab optional-content fetch failed" }
