// Package model defines the repository record and its sidecar shapes that
// flow through the scanning pipeline, from enumeration to the final catalog.
package model

import "time"

// UsageType is the permissions.usageType enum.
type UsageType string

// Usage type values, per the compliance catalog schema.
const (
	UsageOpenSource               UsageType = "openSource"
	UsageGovernmentWideReuse      UsageType = "governmentWideReuse"
	UsageExemptByLaw              UsageType = "exemptByLaw"
	UsageExemptByNationalSecurity UsageType = "exemptByNationalSecurity"
	UsageExemptByAgencySystem     UsageType = "exemptByAgencySystem"
	UsageExemptByMissionSystem    UsageType = "exemptByMissionSystem"
	UsageExemptByCIO              UsageType = "exemptByCIO"
	UsageExemptNonCode            UsageType = "exemptNonCode"
)

// IsExempt reports whether u begins with "exempt".
func (u UsageType) IsExempt() bool {
	return len(u) >= 6 && u[:6] == "exempt"
}

// ValidUsageTypes lists every usage type the finalizer accepts.
var ValidUsageTypes = map[UsageType]bool{
	UsageOpenSource:               true,
	UsageGovernmentWideReuse:      true,
	UsageExemptByLaw:              true,
	UsageExemptByNationalSecurity: true,
	UsageExemptByAgencySystem:     true,
	UsageExemptByMissionSystem:    true,
	UsageExemptByCIO:              true,
	UsageExemptNonCode:            true,
}

// Status is the operational status enum.
type Status string

// Status values.
const (
	StatusDevelopment  Status = "development"
	StatusMaintained   Status = "maintained"
	StatusDeprecated   Status = "deprecated"
	StatusExperimental Status = "experimental"
	StatusInactive     Status = "inactive"
	StatusArchived     Status = "archived"
)

// Platform identifies the hosting platform a repository was scanned from.
type Platform string

// Supported platforms.
const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
	PlatformAzure  Platform = "azure_devops"
)

// Visibility mirrors the platform's repository visibility field.
type Visibility string

// Visibility values.
const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
)

// IsPrivate reports whether v requires PrivateID assignment and URL rewriting.
func (v Visibility) IsPrivate() bool {
	return v == VisibilityPrivate || v == VisibilityInternal
}

// Permissions captures usage classification and licensing.
type Permissions struct {
	UsageType     UsageType `json:"usageType"`
	ExemptionText string    `json:"exemptionText,omitempty"`
	Licenses      []License `json:"licenses,omitempty"`
}

// License is a single license entry in permissions.licenses.
type License struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"URL,omitempty"`
}

// Dates captures created/modified timestamps, ISO-8601 UTC on output.
type Dates struct {
	Created             string `json:"created,omitempty"`
	LastModified        string `json:"lastModified,omitempty"`
	MetadataLastUpdated string `json:"metadataLastUpdated,omitempty"`
}

// IsZero reports whether every field of d is empty, so the finalizer can
// drop an all-empty date object per spec.md 4.10 step 6.
func (d Dates) IsZero() bool {
	return d.Created == "" && d.LastModified == "" && d.MetadataLastUpdated == ""
}

// Contact captures the emitted contact fields.
type Contact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// internalFields holds transient data that is never emitted in the final
// catalog. It is embedded unexported so normal JSON marshaling of
// Repository never sees it; the finalizer and cache reader access it
// directly as Go fields instead of through underscore-prefixed JSON keys.
type internalFields struct {
	ReadmeContent        string
	CodeownersContent    string
	APITags              []string
	StatusFromReadme     string
	IsEmptyRepo          bool
	PrivateContactEmails []string
	IsGenericOrganization bool
	LastCommitSHA        string
}

// Repository is the central compliance-catalog record, produced by an
// adapter stub and mutated by the classifier, org resolver, labor
// estimator, and finalizer in a single-threaded fan-in per repository.
type Repository struct {
	Name            string     `json:"name"`
	Organization    string     `json:"organization"`
	Platform        Platform   `json:"-"`
	PlatformRepoID  string     `json:"-"`
	RepositoryURL   string     `json:"repositoryURL"`
	PrivateID       string     `json:"privateID,omitempty"`
	Description     string     `json:"description,omitempty"`
	HomepageURL     string     `json:"homepageURL,omitempty"`
	VCS             string     `json:"vcs,omitempty"`
	Languages       []string   `json:"languages,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	ReadmeURL       string     `json:"readmeURL,omitempty"`
	Permissions     Permissions `json:"permissions"`
	Date            *Dates     `json:"date,omitempty"`
	Contact         Contact    `json:"contact,omitempty"`
	Status          Status     `json:"status,omitempty"`
	Version         string     `json:"version,omitempty"`
	LaborHours      float64    `json:"laborHours,omitempty"`

	// Not part of the public catalog schema. Visibility and Archived are
	// round-tripped through IntermediateRecord's own explicit fields (not
	// these tags) so a cache hit can replay them: visibility drives
	// IsPrivate()/PrivateID/contact-email resolution, archived drives
	// status. SizeZero is re-derived every scan from the live stub, so it
	// isn't persisted at all.
	Visibility Visibility `json:"-"`
	Archived   bool       `json:"-"`
	SizeZero   bool       `json:"-"`

	ProcessingError string `json:"processing_error,omitempty"`

	internal internalFields `json:"-"`
}

// SetReadme stores README content and its fetched URL.
func (r *Repository) SetReadme(content, url string) {
	r.internal.ReadmeContent = content
	r.ReadmeURL = url
}

// ReadmeContent returns the transient README text, empty if never fetched.
func (r *Repository) ReadmeContent() string { return r.internal.ReadmeContent }

// SetCodeowners stores CODEOWNERS content.
func (r *Repository) SetCodeowners(content string) { r.internal.CodeownersContent = content }

// CodeownersContent returns the transient CODEOWNERS text.
func (r *Repository) CodeownersContent() string { return r.internal.CodeownersContent }

// SetAPITags stores tag names fetched from the platform API.
func (r *Repository) SetAPITags(tags []string) { r.internal.APITags = tags }

// APITags returns the tag names fetched from the platform API.
func (r *Repository) APITags() []string { return r.internal.APITags }

// SetStatusFromReadme records a status string parsed out of the README.
func (r *Repository) SetStatusFromReadme(s string) { r.internal.StatusFromReadme = s }

// StatusFromReadme returns the status parsed from the README, if any.
func (r *Repository) StatusFromReadme() string { return r.internal.StatusFromReadme }

// SetEmptyRepo flags the repository as having zero size.
func (r *Repository) SetEmptyRepo(v bool) { r.internal.IsEmptyRepo = v }

// IsEmptyRepo reports whether the repository was flagged empty.
func (r *Repository) IsEmptyRepo() bool { return r.internal.IsEmptyRepo }

// SetPrivateContactEmails stores the contact emails extracted for this repo.
func (r *Repository) SetPrivateContactEmails(emails []string) { r.internal.PrivateContactEmails = emails }

// PrivateContactEmails returns the contact emails extracted for this repo.
func (r *Repository) PrivateContactEmails() []string { return r.internal.PrivateContactEmails }

// SetGenericOrganization flags that the resolved organization is still a
// default/unknown placeholder.
func (r *Repository) SetGenericOrganization(v bool) { r.internal.IsGenericOrganization = v }

// IsGenericOrganization reports whether the organization is still generic.
func (r *Repository) IsGenericOrganization() bool { return r.internal.IsGenericOrganization }

// SetActivityDates records the created/last-modified timestamps an adapter
// observed, allocating Date on first use.
func (r *Repository) SetActivityDates(created, lastModified string) {
	if r.Date == nil {
		r.Date = &Dates{}
	}
	r.Date.Created = created
	r.Date.LastModified = lastModified
}

// LastModifiedDate returns the last-modified timestamp, empty if Date was
// never set.
func (r *Repository) LastModifiedDate() string {
	if r.Date == nil {
		return ""
	}
	return r.Date.LastModified
}

// StampMetadataUpdated records when this record was last written to a
// catalog, allocating Date on first use.
func (r *Repository) StampMetadataUpdated(t time.Time) {
	if r.Date == nil {
		r.Date = &Dates{}
	}
	r.Date.MetadataLastUpdated = t.Format(time.RFC3339)
}

// DropEmptyDate clears Date when every field on it is empty, so an
// all-empty date object is omitted from the catalog entirely rather than
// emitted as {}.
func (r *Repository) DropEmptyDate() {
	if r.Date != nil && r.Date.IsZero() {
		r.Date = nil
	}
}

// SetLastCommitSHA records the SHA observed during this scan.
func (r *Repository) SetLastCommitSHA(sha string) { r.internal.LastCommitSHA = sha }

// LastCommitSHA returns the SHA observed during this scan, if any.
func (r *Repository) LastCommitSHA() string { return r.internal.LastCommitSHA }

// IntermediateRecord is a Repository plus the bookkeeping fields the public
// catalog omits: platform repo ID, last observed commit SHA, visibility,
// and archived status. This is the pipeline's own round-trip format,
// written per target by merge.WriteIntermediate and read back both by
// merge.Run (to union the final catalog) and cache.Load (to replay a
// cache hit) — every field classify/finalize touched on a repository must
// survive that round trip, per spec.md 4.12 and
// original_source/utils/caching.py.
//
// Visibility and Archived shadow Repository's own same-named fields
// (which carry json:"-" and are never reachable from Repository's own
// marshaling): the embedding promotes Repository's copies at depth 1,
// but these depth-0 fields win for both Go selectors and JSON, so the
// public catalog schema stays untouched while the intermediate file
// still carries what a cache hit needs.
type IntermediateRecord struct {
	Repository
	RepoID        string     `json:"repo_id,omitempty"`
	LastCommitSHA string     `json:"lastCommitSHA,omitempty"`
	Visibility    Visibility `json:"visibility,omitempty"`
	Archived      bool       `json:"archived,omitempty"`
}

// FromRepository builds the round-trip record r writes to an intermediate
// file.
func FromRepository(r Repository) IntermediateRecord {
	return IntermediateRecord{
		Repository:    r,
		RepoID:        r.PlatformRepoID,
		LastCommitSHA: r.LastCommitSHA(),
		Visibility:    r.Visibility,
		Archived:      r.Archived,
	}
}

// ToRepository reconstructs the Repository rec was written from.
func (rec IntermediateRecord) ToRepository() Repository {
	r := rec.Repository
	r.PlatformRepoID = rec.RepoID
	r.SetLastCommitSHA(rec.LastCommitSHA)
	r.Visibility = rec.Visibility
	r.Archived = rec.Archived
	return r
}

// PrivateIDRow is one row of the private-ID CSV side-car.
type PrivateIDRow struct {
	PrivateID      string
	RepositoryName string
	RepositoryURL  string
	Organization   string
	ContactEmails  []string
	DateAdded      time.Time
}

// ExemptionRow is one append-only row of the exemption-log CSV side-car.
type ExemptionRow struct {
	PrivateID     string
	RepositoryName string
	Reason        string
	UsageType     UsageType
	ExemptionText string
	Timestamp     time.Time
}

// CacheEntry is a prior scan's emitted record, keyed by platform repo ID
// (or "<org>/<name>" for the GitHub fallback), usable only when
// LastCommitSHA is populated.
type CacheEntry struct {
	Repository    Repository
	LastCommitSHA string
}

// MeasurementType names the counting method a catalog reports.
type MeasurementType struct {
	Method string `json:"method"`
}

// Catalog is the final code.json document the merge phase writes: every
// project unioned from a scan's per-target intermediates.
type Catalog struct {
	Version         string          `json:"version"`
	Agency          string          `json:"agency"`
	MeasurementType MeasurementType `json:"measurementType"`
	Projects        []Repository    `json:"projects"`
}
