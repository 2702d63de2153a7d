// Package sidecar manages the two append/update CSV side-car files the
// scan pipeline maintains alongside the catalog: the private-ID mapping
// and the exemption log, grounded on
// original_source/utils/privateid_manager.py and
// original_source/utils/exemption_logger.py.
package sidecar

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
)

var privateIDHeader = []string{"PrivateID", "RepositoryName", "RepositoryURL", "Organization", "ContactEmails", "DateAdded"}

type privateIDEntry struct {
	repo, url, org string
	emails         []string
	date           string
}

// PrivateIDMap is a persistent, thread-safe mapping of PlatformRepoID to a
// stable PrivateID, with associated URL/org/contact-email bookkeeping.
type PrivateIDMap struct {
	path     string
	mu       sync.Mutex
	entries  map[string]*privateIDEntry
	newCount int
	log      logger.Logger
}

// LoadPrivateIDMap loads an existing mapping file, or starts an empty one
// if it doesn't exist yet.
func LoadPrivateIDMap(path string) (*PrivateIDMap, error) {
	m := &PrivateIDMap{
		path:    path,
		entries: map[string]*privateIDEntry{},
		log:     *logger.Named("sidecar.privateid"),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		m.log.Info().Str("path", path).Msg("private-ID mapping not found, starting empty")
		return m, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "open private-ID mapping")
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "read private-ID mapping")
	}
	if len(rows) == 0 {
		return m, nil
	}
	for _, row := range rows[1:] {
		if len(row) != len(privateIDHeader) {
			continue
		}
		privateID, repo, url, org, emailsStr, date := row[0], row[1], row[2], row[3], row[4], row[5]
		if privateID == "" || repo == "" || org == "" {
			continue
		}
		if _, exists := m.entries[privateID]; exists {
			continue
		}
		m.entries[privateID] = &privateIDEntry{repo: repo, url: url, org: org, emails: splitEmails(emailsStr), date: date}
	}
	m.log.Info().Int("count", len(m.entries)).Msg("loaded private-ID mappings")
	return m, nil
}

func splitEmails(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetOrCreate returns the stable PrivateID for a (platformPrefix,
// platformRepoID) pair, creating a new entry if none exists and updating
// organization/URL/contact-email bookkeeping when they've changed.
func (m *PrivateIDMap) GetOrCreate(platformPrefix, platformRepoID, organization, repoName, repositoryURL string, contactEmails []string) string {
	var privateID string
	if platformRepoID == "" {
		privateID = fmt.Sprintf("%s_random_%s", platformPrefix, randomSuffix(6))
	} else {
		privateID = platformPrefix + "_" + platformRepoID
	}

	emails := dedupeLower(contactEmails)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[privateID]
	if !exists {
		m.entries[privateID] = &privateIDEntry{
			repo:   repoName,
			url:    repositoryURL,
			org:    organization,
			emails: emails,
			date:   time.Now().UTC().Format(time.RFC3339),
		}
		m.newCount++
		return privateID
	}

	changed := false
	if entry.org != organization {
		entry.org = organization
		changed = true
	}
	if entry.url != repositoryURL {
		entry.url = repositoryURL
		changed = true
	}
	if entry.repo != repoName {
		entry.repo = repoName
		changed = true
	}
	if !equalSlices(entry.emails, emails) {
		entry.emails = emails
		changed = true
	}
	if changed {
		entry.date = time.Now().UTC().Format(time.RFC3339)
	}
	return privateID
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedupeLower(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// randomSuffix returns the first n characters of a fresh UUID's hex
// digits, for the "<platform>_random_<suffix>" fallback id.
func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// ContactEmailForCatalog resolves the email the finalizer should emit for
// a repository: the configured private-repo default for private repos, or
// the first known contact email (falling back to the public default) for
// public repos, per spec.md 4.10.
func (m *PrivateIDMap) ContactEmailForCatalog(organization, repoName string, isPrivate bool, privateDefault, publicDefault string) string {
	if isPrivate {
		return privateDefault
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if strings.EqualFold(e.org, organization) && strings.EqualFold(e.repo, repoName) {
			if len(e.emails) > 0 {
				return e.emails[0]
			}
			break
		}
	}
	return publicDefault
}

// NewCount returns the number of PrivateID entries created during this run.
func (m *PrivateIDMap) NewCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newCount
}

// Save writes the full mapping back to disk, sorted by (organization,
// repository name) for a stable diff.
func (m *PrivateIDMap) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create private-ID mapping directory")
	}

	type keyed struct {
		id string
		e  *privateIDEntry
	}
	rows := make([]keyed, 0, len(m.entries))
	for id, e := range m.entries {
		rows = append(rows, keyed{id, e})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !strings.EqualFold(rows[i].e.org, rows[j].e.org) {
			return strings.ToLower(rows[i].e.org) < strings.ToLower(rows[j].e.org)
		}
		return strings.ToLower(rows[i].e.repo) < strings.ToLower(rows[j].e.repo)
	})

	f, err := os.Create(m.path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create private-ID mapping file")
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(privateIDHeader); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "write private-ID mapping header")
	}
	for _, r := range rows {
		if err := w.Write([]string{r.id, r.e.repo, r.e.url, r.e.org, strings.Join(r.e.emails, ";"), r.e.date}); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "write private-ID mapping row")
		}
	}
	w.Flush()
	return w.Error()
}
