package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codecat/internal/scan/adapters"
	"codecat/internal/scan/cache"
	"codecat/internal/scan/finalize"
	"codecat/internal/scan/model"
	"codecat/internal/scan/ratelimit"
	"codecat/internal/scan/sidecar"
)

type fakeAdapter struct {
	stubs    []adapters.RepoStub
	metadata map[string]model.Repository
	platform model.Platform
}

func (f *fakeAdapter) EnumerateStubs(_ context.Context, _ string, _ adapters.Filters) (<-chan adapters.RepoStub, int, error) {
	ch := make(chan adapters.RepoStub, len(f.stubs))
	for _, s := range f.stubs {
		ch <- s
	}
	close(ch)
	return ch, len(f.stubs), nil
}

func (f *fakeAdapter) FetchCurrentCommit(_ context.Context, stub adapters.RepoStub) (string, time.Time, bool, error) {
	return "sha-" + stub.Name, time.Now(), false, nil
}

func (f *fakeAdapter) FetchMetadata(_ context.Context, stub adapters.RepoStub) (model.Repository, error) {
	if r, ok := f.metadata[stub.Name]; ok {
		return r, nil
	}
	return model.Repository{
		Name: stub.Name, Organization: stub.Organization, Platform: f.platform,
		Visibility: model.VisibilityPublic,
	}, nil
}

func (f *fakeAdapter) FetchReadme(_ context.Context, _ adapters.RepoStub) (string, string, bool, error) {
	return "", "", false, nil
}

func (f *fakeAdapter) FetchCodeowners(_ context.Context, _ adapters.RepoStub) (string, bool, error) {
	return "", false, nil
}

func (f *fakeAdapter) FetchCommitHistory(_ context.Context, _ adapters.RepoStub, _ string, _ int) ([]adapters.CommitEntry, error) {
	return nil, nil
}

func (f *fakeAdapter) RateLimitStatus() *ratelimit.Status { return nil }

func (f *fakeAdapter) Platform() model.Platform { return f.platform }

func newTestOrchestrator(t *testing.T, a *fakeAdapter) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	ids, err := sidecar.LoadPrivateIDMap(filepath.Join(dir, "private_ids.csv"))
	if err != nil {
		t.Fatalf("LoadPrivateIDMap() error = %v", err)
	}
	log, err := sidecar.LoadExemptionLog(filepath.Join(dir, "exempted.csv"))
	if err != nil {
		t.Fatalf("LoadExemptionLog() error = %v", err)
	}
	f := finalize.New(finalize.Options{}, ids, log)
	cacheStore := cache.Load(filepath.Join(dir, "missing-cache.json"), "github")
	return New(a, cacheStore, f, nil)
}

func testOpts() Options {
	return Options{
		Workers:      2,
		MinDelay:     time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		SafetyFactor: 0.8,
	}
}

func TestRun_ProcessesAllStubs(t *testing.T) {
	a := &fakeAdapter{
		platform: model.PlatformGitHub,
		stubs: []adapters.RepoStub{
			{Name: "widget", Organization: "acme"},
			{Name: "gadget", Organization: "acme"},
		},
	}
	o := newTestOrchestrator(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repos, err := o.Run(ctx, testOpts())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("repos = %d, want 2", len(repos))
	}
	names := map[string]bool{}
	for _, r := range repos {
		names[r.Name] = true
	}
	if !names["widget"] || !names["gadget"] {
		t.Errorf("repos = %+v, want widget and gadget", repos)
	}
}

func TestRun_NoStubsReturnsEmpty(t *testing.T) {
	a := &fakeAdapter{platform: model.PlatformGitHub}
	o := newTestOrchestrator(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repos, err := o.Run(ctx, testOpts())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("repos = %d, want 0", len(repos))
	}
}

func TestRun_InvokesOnProcessedCallback(t *testing.T) {
	a := &fakeAdapter{
		platform: model.PlatformGitHub,
		stubs:    []adapters.RepoStub{{Name: "widget", Organization: "acme"}},
	}
	o := newTestOrchestrator(t, a)

	count := 0
	opts := testOpts()
	opts.OnProcessed = func() { count++ }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := o.Run(ctx, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if count != 1 {
		t.Errorf("OnProcessed invoked %d times, want 1", count)
	}
}

func TestRun_DebugLimitCapsProcessedCount(t *testing.T) {
	a := &fakeAdapter{
		platform: model.PlatformGitHub,
		stubs: []adapters.RepoStub{
			{Name: "a", Organization: "acme"},
			{Name: "b", Organization: "acme"},
			{Name: "c", Organization: "acme"},
		},
	}
	o := newTestOrchestrator(t, a)
	opts := testOpts()
	opts.DebugLimit = 1

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repos, err := o.Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(repos) != 1 {
		t.Errorf("repos = %d, want 1 (DebugLimit)", len(repos))
	}
}

func TestRun_CacheHitPreservesClassification(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	cacheBody := `[{
		"name":"widget","organization":"acme","repositoryURL":"https://old/widget",
		"lastCommitSHA":"sha-widget","visibility":"private",
		"permissions":{"usageType":"governmentWideReuse"},
		"description":"a cached widget","status":"maintained","laborHours":9
	}]`
	if err := os.WriteFile(cachePath, []byte(cacheBody), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ids, err := sidecar.LoadPrivateIDMap(filepath.Join(dir, "private_ids.csv"))
	if err != nil {
		t.Fatalf("LoadPrivateIDMap() error = %v", err)
	}
	log, err := sidecar.LoadExemptionLog(filepath.Join(dir, "exempted.csv"))
	if err != nil {
		t.Fatalf("LoadExemptionLog() error = %v", err)
	}
	finalizer := finalize.New(finalize.Options{PrivateContactEmail: "private@acme.gov"}, ids, log)
	cacheStore := cache.Load(cachePath, "github")

	a := &fakeAdapter{
		platform: model.PlatformGitHub,
		stubs:    []adapters.RepoStub{{Name: "widget", Organization: "acme"}},
	}
	o := New(a, cacheStore, finalizer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repos, err := o.Run(ctx, testOpts())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(repos) != 1 {
		t.Fatalf("repos = %d, want 1", len(repos))
	}
	r := repos[0]
	if r.Permissions.UsageType != "governmentWideReuse" {
		t.Errorf("UsageType = %q, want governmentWideReuse (cache hit should not re-run classification)", r.Permissions.UsageType)
	}
	if r.Description != "a cached widget" {
		t.Errorf("Description = %q, want cache hit to preserve it", r.Description)
	}
	if r.Contact.Email != "private@acme.gov" {
		t.Errorf("Contact.Email = %q, want private contact (visibility must survive the cache reload)", r.Contact.Email)
	}
	if r.PrivateID == "" {
		t.Errorf("PrivateID is empty, want assigned (private repo must get one even on a cache hit)")
	}
}

func TestCacheKey_PrefersPlatformRepoID(t *testing.T) {
	stub := adapters.RepoStub{PlatformRepoID: "123", Organization: "acme", Name: "widget"}
	if got := cacheKey(stub, model.PlatformGitHub); got != "123" {
		t.Errorf("cacheKey() = %q, want 123", got)
	}
}

func TestCacheKey_GitHubFallsBackToOrgSlashName(t *testing.T) {
	stub := adapters.RepoStub{Organization: "acme", Name: "widget"}
	if got := cacheKey(stub, model.PlatformGitHub); got != "acme/widget" {
		t.Errorf("cacheKey() = %q, want acme/widget", got)
	}
}

func TestCacheKey_NonGitHubWithoutRepoIDIsEmpty(t *testing.T) {
	stub := adapters.RepoStub{Organization: "acme", Name: "widget"}
	if got := cacheKey(stub, model.PlatformGitLab); got != "" {
		t.Errorf("cacheKey() = %q, want empty", got)
	}
}
