// Package cache loads a prior run's per-target intermediate file into a
// lookup keyed by platform repo ID, so the orchestrator can peek at a
// repository's current commit SHA before paying for a full metadata fetch
// and replay the cached classification on a hit, per spec.md 4.3 and
// original_source/utils/caching.py.
package cache

import (
	"encoding/json"
	"os"

	"codecat/internal/platform/logger"
	"codecat/internal/scan/model"
)

// Store is an in-memory, read-only view of the previous scan's output,
// keyed by platform repo ID with the fallbacks caching.py uses when that
// ID is absent from an older catalog file.
type Store struct {
	byKey map[string]model.CacheEntry
}

// Load reads path (a prior run's intermediate file for this target) and
// indexes every entry that carries a commit SHA. A missing file is not an
// error: it just means a full scan, matching caching.py's "no previous
// data" branch.
func Load(path, platform string) *Store {
	log := logger.Named("cache")
	s := &Store{byKey: map[string]model.CacheEntry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Str("platform", platform).Msg("no previous scan data, full scan")
			return s
		}
		log.Error().Err(err).Str("path", path).Msg("failed to read previous scan data")
		return s
	}

	var entries []cachedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to decode previous scan data")
		return s
	}

	for _, e := range entries {
		key := e.key(platform)
		if key == "" {
			log.Warn().Str("name", e.Name).Str("platform", platform).Msg("could not determine cache key for entry")
			continue
		}
		if e.LastCommitSHA == "" {
			continue
		}
		s.byKey[key] = model.CacheEntry{
			Repository:    e.ToRepository(),
			LastCommitSHA: e.LastCommitSHA,
		}
	}
	log.Info().Int("count", len(s.byKey)).Str("platform", platform).Msg("loaded cacheable entries from previous scan")
	return s
}

// Lookup returns the cached entry for key, if any.
func (s *Store) Lookup(key string) (model.CacheEntry, bool) {
	if s == nil {
		return model.CacheEntry{}, false
	}
	e, ok := s.byKey[key]
	return e, ok
}

// cachedEntry is a full model.IntermediateRecord plus the legacy "id"
// field older intermediate files keyed on before repo_id was added,
// matching the id-field fallback caching.py still supports for
// gitlab/azure.
type cachedEntry struct {
	model.IntermediateRecord
	ID string `json:"id,omitempty"`
}

func (e cachedEntry) key(platform string) string {
	switch {
	case e.RepoID != "":
		return e.RepoID
	case e.ID != "":
		return e.ID
	case platform == "github" && e.Organization != "" && e.Name != "":
		return e.Organization + "/" + e.Name
	case e.RepositoryURL != "":
		return e.RepositoryURL
	default:
		return ""
	}
}
