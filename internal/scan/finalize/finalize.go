// Package finalize applies the last per-record transformations before a
// repository is written into an intermediate file: privateID resolution,
// private-URL rewriting, exemption logging, status/version inference, and
// cleanup, grounded on original_source/utils/exemption_processor.py's
// tail section and the privateid_manager.py/exemption_logger.py side-cars.
package finalize

import (
	"sort"
	"strings"
	"time"

	"codecat/internal/scan/model"
	"codecat/internal/scan/sidecar"
)

// Options configures a Finalizer.
type Options struct {
	AgencyName          string
	InstructionsURL     string
	ExemptedNoticeURL   string
	PrivateContactEmail string
	PublicContactEmail  string
	InactiveAfter       time.Duration // repos with no activity for this long become "inactive"
}

var allowedReadmeStatuses = map[string]model.Status{
	"maintained":   model.StatusMaintained,
	"deprecated":   model.StatusDeprecated,
	"experimental": model.StatusExperimental,
	"inactive":     model.StatusInactive,
}

// Finalizer applies the ordered set of per-record finishing steps.
type Finalizer struct {
	opts       Options
	privateIDs *sidecar.PrivateIDMap
	exemptions *sidecar.ExemptionLog
	now        func() time.Time
}

// New builds a Finalizer backed by the given side-car stores.
func New(opts Options, privateIDs *sidecar.PrivateIDMap, exemptions *sidecar.ExemptionLog) *Finalizer {
	if opts.InactiveAfter <= 0 {
		opts.InactiveAfter = 2 * 365 * 24 * time.Hour
	}
	return &Finalizer{opts: opts, privateIDs: privateIDs, exemptions: exemptions, now: time.Now}
}

func platformPrefix(p model.Platform) string {
	switch p {
	case model.PlatformGitHub:
		return "github"
	case model.PlatformGitLab:
		return "gitlab"
	case model.PlatformAzure:
		return "azure"
	default:
		return string(p)
	}
}

// Finalize mutates r in place, applying spec.md 4.10's ordered steps.
func (f *Finalizer) Finalize(r *model.Repository) {
	isPrivate := r.Visibility.IsPrivate()

	// PrivateID assignment is gated on visibility, matching
	// generate_codejson.py's is_private_or_internal guard: public repos
	// never enter the private-ID map.
	var privateID string
	if isPrivate {
		privateID = f.privateIDs.GetOrCreate(
			platformPrefix(r.Platform),
			r.PlatformRepoID,
			r.Organization,
			r.Name,
			r.RepositoryURL,
			r.PrivateContactEmails(),
		)
		r.PrivateID = privateID
	}

	if isPrivate {
		if r.Permissions.UsageType.IsExempt() {
			r.RepositoryURL = f.opts.ExemptedNoticeURL
		} else {
			r.RepositoryURL = f.opts.InstructionsURL
		}
	}

	if r.Permissions.UsageType.IsExempt() {
		f.exemptions.LogExemption(privateID, r.Name, string(r.Permissions.UsageType), r.Permissions.UsageType, r.Permissions.ExemptionText)
	}

	r.Status = f.resolveStatus(r)

	if r.Version == "" || r.Version == "N/A" {
		if v, ok := PickVersion(append(append([]string{}, r.Tags...), r.APITags()...)); ok {
			r.Version = v
		}
	}

	if isPrivate {
		r.Contact.Email = f.opts.PrivateContactEmail
	} else {
		r.Contact.Email = firstContactEmail(r.PrivateContactEmails(), f.opts.PublicContactEmail)
	}

	if r.IsGenericOrganization() {
		r.Organization = f.opts.AgencyName
	}

	r.DropEmptyDate()
}

func (f *Finalizer) resolveStatus(r *model.Repository) model.Status {
	if r.Archived {
		return model.StatusArchived
	}
	if s, ok := allowedReadmeStatuses[r.StatusFromReadme()]; ok {
		return s
	}
	if lastModified, ok := parseRFC3339(r.LastModifiedDate()); ok {
		if f.now().Sub(lastModified) > f.opts.InactiveAfter {
			return model.StatusInactive
		}
	}
	if r.Status != "" {
		return r.Status
	}
	return model.StatusDevelopment
}

// firstContactEmail picks the lexically-first deduped email off a public
// repository's extracted contact emails, falling back to fallback when
// none were found, per spec.md 4.10.
func firstContactEmail(emails []string, fallback string) string {
	seen := map[string]bool{}
	var cleaned []string
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		cleaned = append(cleaned, e)
	}
	if len(cleaned) == 0 {
		return fallback
	}
	sort.Strings(cleaned)
	return cleaned[0]
}

func parseRFC3339(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
