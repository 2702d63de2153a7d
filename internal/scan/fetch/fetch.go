// Package fetch implements the optional-content fetcher: try a list of
// candidate paths with quick 403-retry, distinguishing 404/empty-repo/
// forbidden outcomes so README/CODEOWNERS lookups degrade gracefully
// instead of aborting the whole repository, per spec.md 4.4.
package fetch

import (
	"time"

	"codecat/internal/platform/logger"
)

// Kind tags the outcome of a single candidate-path attempt.
type Kind int

// Kinds mirror original_source/utils/fetch_utils.py's FETCH_ERROR_* constants,
// replacing exception-as-control-flow with a typed return per spec.md 9.
const (
	KindOK Kind = iota
	KindForbidden
	KindNotFound
	KindEmptyRepo
	KindAPIError
	KindUnexpected
)

// ExceptionMap classifies an error returned by a thunk into a Kind. Each
// platform adapter supplies its own, since each platform raises different
// sentinel errors for 403/404/empty-repo.
type ExceptionMap struct {
	IsForbidden func(err error) bool
	IsNotFound  func(err error) bool
	IsEmptyRepo func(err error) bool
	IsAPIError  func(err error) bool
}

func (m ExceptionMap) classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case m.IsEmptyRepo != nil && m.IsEmptyRepo(err):
		return KindEmptyRepo
	case m.IsForbidden != nil && m.IsForbidden(err):
		return KindForbidden
	case m.IsNotFound != nil && m.IsNotFound(err):
		return KindNotFound
	case m.IsAPIError != nil && m.IsAPIError(err):
		return KindAPIError
	default:
		return KindUnexpected
	}
}

// Options configures Fetch.
type Options struct {
	Candidates      []string
	Exceptions      ExceptionMap
	MaxQuickRetries int
	QuickRetryDelay time.Duration
	DynamicDelay    func()
	Sleep           func(time.Duration)
}

func (o *Options) setDefaults() {
	if o.QuickRetryDelay <= 0 {
		o.QuickRetryDelay = 2 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

// Result is the outcome of Fetch.
type Result struct {
	Content string
	Kind    Kind
	Path    string
}

// Thunk fetches one candidate path, returning its content.
type Thunk func(path string) (string, error)

// Fetch tries each candidate path in order per spec.md 4.4:
//   - FORBIDDEN: retry up to MaxQuickRetries times with QuickRetryDelay, then
//     abandon the whole fetch.
//   - NOT_FOUND: try the next candidate path.
//   - EMPTY_REPO: stop immediately, flag the repo empty.
//   - API_ERROR / UNEXPECTED: stop the fetch for this content type.
func Fetch(call Thunk, opts Options, logCtx string) Result {
	opts.setDefaults()
	log := logger.Named("fetch")

	for _, path := range opts.Candidates {
		for attempt := 0; attempt <= opts.MaxQuickRetries; attempt++ {
			if opts.DynamicDelay != nil {
				opts.DynamicDelay()
			}
			content, err := call(path)
			if err == nil {
				return Result{Content: content, Kind: KindOK, Path: path}
			}

			kind := opts.Exceptions.classify(err)
			switch kind {
			case KindForbidden:
				if attempt < opts.MaxQuickRetries {
					log.Warn().Str("ctx", logCtx).Str("path", path).Int("attempt", attempt+1).Msg("forbidden, quick retry")
					opts.Sleep(opts.QuickRetryDelay)
					continue
				}
				log.Error().Str("ctx", logCtx).Str("path", path).Msg("forbidden after quick retries, abandoning fetch")
				return Result{Kind: KindForbidden, Path: path}
			case KindNotFound:
				log.Debug().Str("ctx", logCtx).Str("path", path).Msg("not found, trying next candidate")
				goto nextCandidate
			case KindEmptyRepo:
				log.Info().Str("ctx", logCtx).Str("path", path).Msg("empty repo signal")
				return Result{Kind: KindEmptyRepo, Path: path}
			case KindAPIError:
				log.Error().Str("ctx", logCtx).Str("path", path).Err(err).Msg("platform api error")
				return Result{Kind: KindAPIError, Path: path}
			default:
				log.Error().Str("ctx", logCtx).Str("path", path).Err(err).Msg("unexpected error")
				return Result{Kind: KindUnexpected, Path: path}
			}
		}
	nextCandidate:
	}
	return Result{Kind: KindNotFound}
}
