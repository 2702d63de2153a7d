// Package orchestrator drives a single scan target end to end: enumerate
// stubs, pace submissions against the live rate limit, fan out to a
// bounded worker pool, and collect results into an intermediate file, per
// spec.md 4.11. Pacing and worker-pool shape are grounded on
// internal/services/backfill/service's semaphore-and-waitgroup pattern.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codecat/internal/ai"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/adapters"
	"codecat/internal/scan/cache"
	"codecat/internal/scan/classify"
	"codecat/internal/scan/delay"
	"codecat/internal/scan/finalize"
	"codecat/internal/scan/labor"
	"codecat/internal/scan/model"
	"codecat/internal/scan/orgresolve"
)

// Options configures a Run.
type Options struct {
	Target         string
	Workers        int
	DebugLimit     int // <=0 means no limit
	CommitCapN     int
	HoursPerCommit float64
	PrivateCutoff  time.Time
	CreatedAfter   time.Time
	SkipForks      bool

	SafetyFactor   float64
	MinDelay       time.Duration
	MaxDelay       time.Duration
	PeekThreshold  time.Duration
	CacheHitDelay  time.Duration
	PostCallBase   time.Duration
	PostCallThresh int
	PostCallScale  float64

	// OnProcessed, if set, is called once per completed repository, so a
	// caller can drive a progress display without the orchestrator
	// depending on one.
	OnProcessed func()
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.CommitCapN <= 0 {
		o.CommitCapN = 500
	}
	if o.HoursPerCommit <= 0 {
		o.HoursPerCommit = labor.DefaultHoursPerCommit
	}
	if o.SafetyFactor <= 0 {
		o.SafetyFactor = 0.8
	}
	if o.MinDelay <= 0 {
		o.MinDelay = 200 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.PeekThreshold <= 0 {
		o.PeekThreshold = time.Second
	}
	if o.CacheHitDelay <= 0 {
		o.CacheHitDelay = 50 * time.Millisecond
	}
	if o.PostCallBase <= 0 {
		o.PostCallBase = 100 * time.Millisecond
	}
	if o.PostCallThresh <= 0 {
		o.PostCallThresh = 500
	}
	if o.PostCallScale <= 0 {
		o.PostCallScale = 0.5
	}
}

// Orchestrator runs one target's scan.
type Orchestrator struct {
	adapter    adapters.Adapter
	cacheStore *cache.Store
	finalizer  *finalize.Finalizer
	aiClient   *ai.Classifier
	useAI      bool
	log        logger.Logger

	processed int64
}

// New builds an Orchestrator. aiClient/useAI may be zero/false, in which
// case classify.AIClassifier/orgresolve.AIInferrer calls are skipped.
func New(adapter adapters.Adapter, cacheStore *cache.Store, finalizer *finalize.Finalizer, aiClassifier *ai.Classifier) *Orchestrator {
	o := &Orchestrator{
		adapter:    adapter,
		cacheStore: cacheStore,
		finalizer:  finalizer,
		log:        *logger.Named("scan.orchestrator"),
	}
	if aiClassifier != nil {
		o.aiClient = aiClassifier
		o.useAI = true
	}
	return o
}

// Run enumerates the target, paces submissions against the live rate
// limit, and fans out to a bounded worker pool, per spec.md 4.11.
func (o *Orchestrator) Run(ctx context.Context, opts Options) ([]model.Repository, error) {
	opts.setDefaults()

	stubs, estimatedCalls, err := o.adapter.EnumerateStubs(ctx, opts.Target, adapters.Filters{
		PrivateCutoff: opts.PrivateCutoff,
		CreatedAfter:  opts.CreatedAfter,
		SkipForks:     opts.SkipForks,
	})
	if err != nil {
		return nil, err
	}

	results := make(chan model.Repository, opts.Workers*2)
	jobs := make(chan adapters.RepoStub, opts.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stub := range jobs {
				results <- o.processRepository(ctx, stub, opts)
				if opts.OnProcessed != nil {
					opts.OnProcessed()
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for stub := range stubs {
			if opts.DebugLimit > 0 && atomic.LoadInt64(&o.processed) >= int64(opts.DebugLimit) {
				break
			}
			atomic.AddInt64(&o.processed, 1)

			status := o.adapter.RateLimitStatus()
			planned := delay.InterSubmission(delay.InterSubmissionParams{
				Status:         status,
				EstimatedCalls: estimatedCalls,
				Workers:        opts.Workers,
				SafetyFactor:   opts.SafetyFactor,
				MinDelay:       opts.MinDelay,
				MaxDelay:       opts.MaxDelay,
				Now:            time.Now().UTC(),
			})

			sha, _, isEmpty, err := o.adapter.FetchCurrentCommit(ctx, stub)
			var cachedSHA string
			var hasCache bool
			if err == nil {
				if entry, ok := o.cacheStore.Lookup(cacheKey(stub, o.adapter.Platform())); ok {
					cachedSHA, hasCache = entry.LastCommitSHA, true
				}
			}

			var sleepFor time.Duration
			switch {
			case err != nil:
				sleepFor = opts.MaxDelay
			case isEmpty:
				sleepFor = planned
			default:
				sleepFor = delay.PeekAhead(planned, opts.PeekThreshold, opts.CacheHitDelay, sha, cachedSHA, hasCache)
			}
			select {
			case <-time.After(sleepFor):
			case <-ctx.Done():
				return
			}

			stub.LastCommitSHA = sha
			select {
			case jobs <- stub:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []model.Repository
	for r := range results {
		out = append(out, r)
	}
	return out, nil
}

func cacheKey(stub adapters.RepoStub, platform model.Platform) string {
	if stub.PlatformRepoID != "" {
		return stub.PlatformRepoID
	}
	if platform == model.PlatformGitHub && stub.Organization != "" && stub.Name != "" {
		return stub.Organization + "/" + stub.Name
	}
	return ""
}

// processRepository implements spec.md 4.11 step 6: replay classification
// on a cache hit, or fetch the full record on a cache miss.
func (o *Orchestrator) processRepository(ctx context.Context, stub adapters.RepoStub, opts Options) model.Repository {
	entry, hasCache := o.cacheStore.Lookup(cacheKey(stub, o.adapter.Platform()))
	if hasCache && stub.LastCommitSHA != "" && entry.LastCommitSHA == stub.LastCommitSHA {
		r := entry.Repository
		o.classifyAndFinalize(ctx, &r)
		return r
	}

	r, err := o.adapter.FetchMetadata(ctx, stub)
	if err != nil {
		return model.Repository{Name: stub.Name, Organization: stub.Organization, ProcessingError: err.Error()}
	}
	r.PlatformRepoID = stub.PlatformRepoID
	r.Platform = o.adapter.Platform()
	r.SetLastCommitSHA(stub.LastCommitSHA)
	r.SetEmptyRepo(stub.SizeZero)

	readme, readmeURL, readmeEmpty, err := o.adapter.FetchReadme(ctx, stub)
	if err == nil {
		r.SetReadme(readme, readmeURL)
	}
	if readmeEmpty {
		r.SetEmptyRepo(true)
	}

	codeowners, codeownersEmpty, err := o.adapter.FetchCodeowners(ctx, stub)
	if err == nil {
		r.SetCodeowners(codeowners)
	}
	if codeownersEmpty {
		r.SetEmptyRepo(true)
	}

	if !r.IsEmptyRepo() {
		total, _, err := labor.Estimate(ctx, func(ctx context.Context, branch string, capN int) ([]adapters.CommitEntry, error) {
			return o.adapter.FetchCommitHistory(ctx, stub, branch, capN)
		}, stub.DefaultBranch, opts.CommitCapN, opts.HoursPerCommit)
		if err == nil {
			r.LaborHours = total
		}
	}
	if hours, ok := classify.ParseLaborHours(r.ReadmeContent()); ok && hours > 0 {
		r.LaborHours = float64(hours)
	}

	o.classifyAndFinalize(ctx, &r)
	return r
}

func (o *Orchestrator) classifyAndFinalize(ctx context.Context, r *model.Repository) {
	readme := r.ReadmeContent()
	r.SetPrivateContactEmails(classify.CombinedContactEmails(readme, r.CodeownersContent()))

	var aiClassifier classify.AIClassifier
	var aiInferrer orgresolve.AIInferrer
	if o.useAI {
		aiClassifier, aiInferrer = o.aiClient, o.aiClient
	}

	if r.Permissions.UsageType == "" {
		result := classify.Cascade(ctx, classify.Input{
			RepoName:    r.Name,
			IsPrivate:   r.Visibility.IsPrivate(),
			IsEmptyRepo: r.IsEmptyRepo(),
			README:      readme,
			Languages:   r.Languages,
			HasLicense:  len(r.Permissions.Licenses) > 0,
		}, aiClassifier)
		r.Permissions.UsageType = result.UsageType
		r.Permissions.ExemptionText = result.ExemptionText
	}

	orgMarker, _ := classify.ParseOrganization(readme)
	orgResult := orgresolve.Resolve(ctx, orgresolve.Input{
		RepoName:        r.Name,
		CurrentOrg:      r.Organization,
		ReadmeOrgMarker: orgMarker,
		Description:     r.Description,
		Tags:            r.Tags,
		ReadmeExcerpt:   readme,
	}, aiInferrer)
	r.Organization = orgResult.Organization
	r.SetGenericOrganization(orgResult.IsGenericOrganization)

	if status, ok := classify.ParseStatus(readme); ok {
		r.SetStatusFromReadme(status)
	}
	if tags := classify.ParseTags(readme); len(tags) > 0 && len(r.Tags) == 0 {
		r.Tags = tags
	}

	o.finalizer.Finalize(r)
}
