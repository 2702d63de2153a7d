// Package labor estimates a repository's laborHours from its commit
// history, grounded on original_source/utils/labor_hrs_estimator.py's
// per-author aggregation.
package labor

import (
	"context"
	"math"
	"time"

	"codecat/internal/scan/adapters"
)

// DefaultHoursPerCommit mirrors the original implementation's constant,
// overridable via the HOURS_PER_COMMIT environment variable.
const DefaultHoursPerCommit = 0.5

// AuthorSummary aggregates one author's commit activity.
type AuthorSummary struct {
	AuthorName    string
	AuthorEmail   string
	Commits       int
	FirstCommit   time.Time
	LastCommit    time.Time
	EstimatedHours float64
}

// Estimate pages commitHistory via fetchFn up to capN commits, aggregates
// by (authorName, authorEmail), and returns the rounded total laborHours
// plus the per-author breakdown, per spec.md 4.6.
func Estimate(ctx context.Context, fetchFn func(ctx context.Context, branch string, capN int) ([]adapters.CommitEntry, error), branch string, capN int, hoursPerCommit float64) (float64, []AuthorSummary, error) {
	if hoursPerCommit <= 0 {
		hoursPerCommit = DefaultHoursPerCommit
	}
	commits, err := fetchFn(ctx, branch, capN)
	if err != nil {
		return 0, nil, err
	}

	type key struct{ name, email string }
	byAuthor := map[key]*AuthorSummary{}
	order := []key{}

	for _, c := range commits {
		k := key{name: c.AuthorName, email: c.AuthorEmail}
		s, ok := byAuthor[k]
		if !ok {
			s = &AuthorSummary{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail}
			byAuthor[k] = s
			order = append(order, k)
		}
		s.Commits++
		if s.FirstCommit.IsZero() || c.Date.Before(s.FirstCommit) {
			s.FirstCommit = c.Date
		}
		if c.Date.After(s.LastCommit) {
			s.LastCommit = c.Date
		}
	}

	var total float64
	summaries := make([]AuthorSummary, 0, len(order))
	for _, k := range order {
		s := byAuthor[k]
		s.EstimatedHours = float64(s.Commits) * hoursPerCommit
		total += s.EstimatedHours
		summaries = append(summaries, *s)
	}

	return math.Round(total), summaries, nil
}
