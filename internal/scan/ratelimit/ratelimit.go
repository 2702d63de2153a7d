// Package ratelimit normalizes each platform's rate-limit headers into a
// common Status the delay planner can reason about, independent of which
// adapter produced it.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Status is the common shape every adapter's probe normalizes into.
type Status struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// SecondsToReset returns the duration until ResetAt, clamped to zero.
func (s *Status) SecondsToReset(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// FromGitHubHeaders reads X-RateLimit-* from a GitHub REST response. Returns
// nil when the headers are absent (forces the planner to a conservative
// delay), matching spec.md 4.2's "on limit-exceeded return nil" rule for
// GitHub, generalized to "headers missing returns nil".
func FromGitHubHeaders(h http.Header) *Status {
	rem := h.Get("X-RateLimit-Remaining")
	lim := h.Get("X-RateLimit-Limit")
	reset := h.Get("X-RateLimit-Reset")
	if rem == "" || lim == "" || reset == "" {
		return nil
	}
	remaining, err1 := strconv.Atoi(rem)
	limit, err2 := strconv.Atoi(lim)
	resetEpoch, err3 := strconv.ParseInt(reset, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	return &Status{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Unix(resetEpoch, 0).UTC(),
	}
}

// FromGitLabHeaders reads RateLimit-* from a GitLab REST response, as
// populated by a forced lightweight call (current user or server version)
// per spec.md 4.2.
func FromGitLabHeaders(h http.Header) *Status {
	rem := h.Get("RateLimit-Remaining")
	lim := h.Get("RateLimit-Limit")
	reset := h.Get("RateLimit-Reset")
	if rem == "" || lim == "" {
		return nil
	}
	remaining, err1 := strconv.Atoi(rem)
	limit, err2 := strconv.Atoi(lim)
	if err1 != nil || err2 != nil {
		return nil
	}
	st := &Status{Remaining: remaining, Limit: limit}
	if reset != "" {
		if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
			st.ResetAt = time.Now().UTC().Add(time.Duration(secs) * time.Second)
		}
	}
	if st.ResetAt.IsZero() {
		st.ResetAt = time.Now().UTC().Add(time.Minute)
	}
	return st
}

// AzurePlaceholder returns the conservative placeholder spec.md 4.2 defines
// for Azure DevOps when X-RateLimit-* headers are absent: a target with
// on-prem Azure DevOps Server typically does not emit them at all (Open
// Question (b) in spec.md 9; documented as unresolved in DESIGN.md).
func AzurePlaceholder(now time.Time) *Status {
	return &Status{Remaining: 5000, Limit: 5000, ResetAt: now.Add(5 * time.Minute)}
}

// FromAzureHeaders attempts the last-response X-RateLimit-* headers before
// falling back to AzurePlaceholder.
func FromAzureHeaders(h http.Header, now time.Time) *Status {
	if st := FromGitHubHeaders(h); st != nil {
		return st
	}
	return AzurePlaceholder(now)
}
