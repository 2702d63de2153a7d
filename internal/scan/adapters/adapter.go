// Package adapters defines the platform adapter contract spec.md 4.5
// requires of every hosting platform (GitHub, GitLab, Azure DevOps): list
// repositories, fetch metadata/README/CODEOWNERS/commit history, and
// report a live rate-limit status the delay planner can consume.
package adapters

import (
	"context"
	"time"

	"codecat/internal/scan/model"
	"codecat/internal/scan/ratelimit"
)

// RepoStub is the lightweight handle enumeration yields; adapters attach
// whatever identity fields they need to fetch the rest of a repository.
type RepoStub struct {
	PlatformRepoID string
	Name           string
	Organization   string
	Owner          string // adapter-specific: GitHub org/user login, GitLab namespace, Azure project
	DefaultBranch  string
	Private        bool
	Archived       bool
	Fork           bool
	SizeZero       bool
	LastActivity   time.Time
	LastCommitSHA  string // set by the orchestrator after FetchCurrentCommit, consumed by processRepository
}

// CommitEntry is one row of commit history, used by the labor estimator.
type CommitEntry struct {
	AuthorName  string
	AuthorEmail string
	Date        time.Time
}

// Filters narrows enumeration per spec.md 4.5's enumeration policies.
type Filters struct {
	PrivateCutoff time.Time // skip private/internal repos with LastActivity before this
	CreatedAfter  time.Time // zero means no filter
	SkipForks     bool
}

// Adapter is the per-platform contract the orchestrator drives.
type Adapter interface {
	// EnumerateStubs streams repository stubs for target, applying filters,
	// and returns an estimated API-call budget for the whole target.
	EnumerateStubs(ctx context.Context, target string, filters Filters) (<-chan RepoStub, int, error)

	// FetchCurrentCommit returns the SHA of the latest commit on the
	// default branch, or reports the repo as empty.
	FetchCurrentCommit(ctx context.Context, stub RepoStub) (sha string, committedAt time.Time, isEmpty bool, err error)

	// FetchMetadata fetches the full repository metadata document.
	FetchMetadata(ctx context.Context, stub RepoStub) (model.Repository, error)

	// FetchReadme fetches README content via the optional-content fetcher.
	FetchReadme(ctx context.Context, stub RepoStub) (text, htmlURL string, isEmptySignal bool, err error)

	// FetchCodeowners fetches CODEOWNERS content via the optional-content fetcher.
	FetchCodeowners(ctx context.Context, stub RepoStub) (text string, isEmptySignal bool, err error)

	// FetchCommitHistory pages commit history on branch up to capN entries.
	FetchCommitHistory(ctx context.Context, stub RepoStub, branch string, capN int) ([]CommitEntry, error)

	// RateLimitStatus returns the most recently observed rate-limit status.
	RateLimitStatus() *ratelimit.Status

	// Platform names the adapter's platform for model.Platform tagging.
	Platform() model.Platform
}
