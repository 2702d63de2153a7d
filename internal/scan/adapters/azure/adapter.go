package azure

import (
	"context"
	"time"

	"codecat/internal/scan/adapters"
	"codecat/internal/scan/decode"
	"codecat/internal/scan/fetch"
	"codecat/internal/scan/model"
	"codecat/internal/scan/ratelimit"
)

var codeownersPaths = []string{"CODEOWNERS", ".azuredevops/CODEOWNERS", "docs/CODEOWNERS"}

const defaultLicenseName = "Apache License 2.0"
const defaultLicenseURL = "https://www.apache.org/licenses/LICENSE-2.0"

// Adapter implements adapters.Adapter for Azure DevOps org/project targets.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a Client as an adapters.Adapter.
func NewAdapter(c *Client) *Adapter { return &Adapter{client: c} }

// Platform identifies this adapter's platform.
func (a *Adapter) Platform() model.Platform { return model.PlatformAzure }

// RateLimitStatus returns the client's last-observed rate limit, or the
// conservative placeholder spec.md 4.2 defines for Azure DevOps.
func (a *Adapter) RateLimitStatus() *ratelimit.Status { return a.client.LastRateLimit() }

// EnumerateStubs lists a project's git repositories, skipping forks. Azure
// DevOps does not reliably expose repositoryVisibility on this endpoint;
// absent an explicit field, visibility is assumed private per
// SPEC_FULL.md's resolution of spec.md 9 open question (c).
func (a *Adapter) EnumerateStubs(ctx context.Context, project string, filters adapters.Filters) (<-chan adapters.RepoStub, int, error) {
	repos, err := a.client.ListRepositories(ctx, project)
	out := make(chan adapters.RepoStub)
	if err != nil {
		close(out)
		return out, 0, err
	}

	go func() {
		defer close(out)
		for _, r := range repos {
			if r.IsFork {
				continue
			}
			visibility := model.VisibilityPrivate
			if r.Project.Visibility == "public" || r.Project.Visibility == "organization" {
				visibility = model.VisibilityPublic
			}
			stub := adapters.RepoStub{
				PlatformRepoID: r.ID,
				Name:           r.Name,
				Organization:   r.Project.Name,
				Owner:          r.Project.Name,
				DefaultBranch:  branchName(r.DefaultBranch),
				Private:        visibility.IsPrivate(),
				Archived:       r.IsDisabled,
				SizeZero:       r.Size == 0,
			}
			select {
			case out <- stub:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, len(repos) * 6, nil
}

func branchName(ref string) string {
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

// FetchCurrentCommit fetches the latest commit ID on the default branch.
func (a *Adapter) FetchCurrentCommit(ctx context.Context, stub adapters.RepoStub) (string, time.Time, bool, error) {
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	c, err := a.client.LatestCommit(ctx, stub.Owner, stub.PlatformRepoID, branch)
	if err != nil {
		if IsNotFound(err) {
			return "", time.Time{}, true, nil
		}
		return "", time.Time{}, false, err
	}
	return c.CommitID, c.Author.Date, false, nil
}

// FetchMetadata maps the stub's known fields onto model.Repository; Azure
// DevOps's repository document carries no languages/topics endpoint
// equivalent to GitHub/GitLab, so those fields are left empty.
func (a *Adapter) FetchMetadata(ctx context.Context, stub adapters.RepoStub) (model.Repository, error) {
	visibility := model.VisibilityPublic
	if stub.Private {
		visibility = model.VisibilityPrivate
	}
	r := model.Repository{
		Name:           stub.Name,
		Organization:   stub.Organization,
		Platform:       model.PlatformAzure,
		PlatformRepoID: stub.PlatformRepoID,
		RepositoryURL:  "https://dev.azure.com/" + stub.Organization + "/_git/" + stub.Name,
		HomepageURL:    "https://dev.azure.com/" + stub.Organization + "/_git/" + stub.Name,
		VCS:            "git",
		Visibility:     visibility,
		Archived:       stub.Archived,
		SizeZero:       stub.SizeZero,
		Status:         model.StatusDevelopment,
		Version:        "N/A",
		Permissions:    model.Permissions{Licenses: []model.License{{Name: defaultLicenseName, URL: defaultLicenseURL}}},
		Contact:        model.Contact{Name: "Centers for Disease Control and Prevention"},
	}
	return r, nil
}

// FetchReadme fetches README content via the items API. It returns no
// README URL.
func (a *Adapter) FetchReadme(ctx context.Context, stub adapters.RepoStub) (string, string, bool, error) {
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	res := fetch.Fetch(func(path string) (string, error) {
		raw, err := a.client.Item(ctx, stub.Owner, stub.PlatformRepoID, path, branch)
		if err != nil {
			return "", err
		}
		return decode.Text(raw), nil
	}, fetch.Options{
		Candidates: []string{"README.md", "/README.md"},
		Exceptions: azureExceptions(),
	}, "azure:readme:"+stub.Name)

	switch res.Kind {
	case fetch.KindOK:
		return res.Content, "", false, nil
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
	branch := stub.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	res := fetch.Fetch(func(path string) (string, error) {
		raw, err := a.client.Item(ctx, stub.Owner, stub.PlatformRepoID, path, branch)
		if err != nil {
			return "", err
		}
		return decode.Text(raw), nil
	}, fetch.Options{
		Candidates:      codeownersPaths,
		Exceptions:      azureExceptions(),
		MaxQuickRetries: 2,
	}, "azure:codeowners:"+stub.Name)

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
	commits, err := a.client.CommitHistory(ctx, stub.Owner, stub.PlatformRepoID, branch, capN)
	if err != nil {
		return nil, err
	}
	out := make([]adapters.CommitEntry, 0, len(commits))
	for _, c := range commits {
		out = append(out, adapters.CommitEntry{AuthorName: c.Author.Name, AuthorEmail: c.Author.Email, Date: c.Author.Date})
	}
	return out, nil
}

func azureExceptions() fetch.ExceptionMap {
	return fetch.ExceptionMap{
		IsForbidden: IsForbidden,
		IsNotFound:  IsNotFound,
		IsAPIError:  IsAPIError,
	}
}

type fetchError struct{ kind fetch.Kind }

func (e *fetchError) Error() string { return "azure devops optional-content fetch failed" }
