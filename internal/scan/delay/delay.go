// Package delay computes inter-submission pacing and dynamic post-call
// delay from live rate-limit status plus an a-priori API-call budget for
// the target, per spec.md 4.3. This pacing is the orchestrator's only
// backpressure mechanism: the producer holds the worker pool by sleeping
// rather than by an unbounded queue.
package delay

import (
	"time"

	"codecat/internal/scan/ratelimit"
)

// InterSubmissionParams bundles calculateInterSubmissionDelay's inputs.
type InterSubmissionParams struct {
	Status         *ratelimit.Status
	EstimatedCalls int
	Workers        int
	SafetyFactor   float64
	MinDelay       time.Duration
	MaxDelay       time.Duration
	Now            time.Time
}

// InterSubmission computes the delay the producer sleeps before handing the
// next stub to the worker pool, per spec.md 4.3.
func InterSubmission(p InterSubmissionParams) time.Duration {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Status == nil || p.EstimatedCalls <= 0 {
		return p.MaxDelay
	}

	permissible := float64(p.Status.Remaining) * p.SafetyFactor
	secondsToReset := p.Status.SecondsToReset(p.Now).Seconds()

	if permissible <= 0 && p.Status.ResetAt.After(p.Now) {
		d := time.Duration(secondsToReset/float64(p.Workers)*float64(time.Second)) + p.MinDelay
		max2 := 2 * p.MaxDelay
		if d > max2 {
			d = max2
		}
		return clamp(d, p.MinDelay, p.MaxDelay*2)
	}

	var d time.Duration
	perWorkerCalls := float64(p.EstimatedCalls) / float64(p.Workers)
	if perWorkerCalls <= 0 {
		perWorkerCalls = 1
	}

	if float64(p.EstimatedCalls) <= permissible {
		// Spread remaining calls evenly across the reset window.
		d = time.Duration(secondsToReset / perWorkerCalls * float64(time.Second))
	} else if secondsToReset <= 0 {
		// Reset window already elapsed with no permissible calls left: no
		// rate to compute, so pace at the floor per spec.md 4.3.
		return p.MinDelay
	} else {
		rate := permissible / secondsToReset // calls per second the budget allows
		if rate <= 0 {
			return p.MaxDelay
		}
		effectiveSeconds := float64(p.EstimatedCalls) / rate
		d = time.Duration(effectiveSeconds / perWorkerCalls * float64(time.Second))
	}
	return clamp(d, p.MinDelay, p.MaxDelay)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// DynamicPostCallParams bundles calculateDynamicPostCallDelay's inputs.
type DynamicPostCallParams struct {
	Base         time.Duration
	NumItems     int
	Threshold    int
	ScaleFactor  float64
	MaxDelay     time.Duration
	Workers      int
}

// DynamicPostCall computes the post-call delay applied after every API
// call, scaling with target size and worker count, per spec.md 4.3 and
// original_source/utils/delay_calculator.py.
func DynamicPostCall(p DynamicPostCallParams) time.Duration {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.NumItems <= 0 || p.Threshold <= 0 {
		return p.Base
	}

	var calculated time.Duration
	if p.NumItems <= p.Threshold {
		calculated = p.Base
	} else {
		excess := float64(p.NumItems - p.Threshold)
		calculated = time.Duration(float64(p.Base) * (1 + (excess/float64(p.Threshold))*p.ScaleFactor))
	}

	workerFactor := 1.0 + 0.2*float64(p.Workers-1)
	adjusted := time.Duration(float64(calculated) * workerFactor)

	capFactor := workerFactor
	if capFactor > 2.0 {
		capFactor = 2.0
	}
	maxWithWorkers := time.Duration(float64(p.MaxDelay) * capFactor)
	if adjusted > maxWithWorkers {
		return maxWithWorkers
	}
	return adjusted
}

// PeekAhead implements spec.md 4.3's peek-ahead rule: when the planned
// inter-submission delay exceeds threshold and the repo's current commit
// SHA matches the cached SHA, replace the delay with a small cache-hit
// delay.
func PeekAhead(planned, threshold, cacheHitDelay time.Duration, currentSHA, cachedSHA string, cacheHasEntry bool) time.Duration {
	if planned <= threshold {
		return planned
	}
	if cacheHasEntry && cachedSHA != "" && cachedSHA == currentSHA {
		return cacheHitDelay
	}
	return planned
}
