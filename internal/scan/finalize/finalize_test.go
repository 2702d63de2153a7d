package finalize

import (
	"path/filepath"
	"testing"
	"time"

	"codecat/internal/scan/model"
	"codecat/internal/scan/sidecar"
)

func newFinalizer(t *testing.T, opts Options) *Finalizer {
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
	return New(opts, ids, log)
}

func TestFinalize_PrivateRepoGetsPrivateIDAndInstructionsURL(t *testing.T) {
	f := newFinalizer(t, Options{InstructionsURL: "https://example.gov/howto", ExemptedNoticeURL: "https://example.gov/exempt"})
	r := &model.Repository{
		Name: "widget", Organization: "acme", Platform: model.PlatformGitHub,
		PlatformRepoID: "1", Visibility: model.VisibilityPrivate,
		Permissions: model.Permissions{UsageType: model.UsageGovernmentWideReuse},
	}
	f.Finalize(r)

	if r.PrivateID == "" {
		t.Errorf("PrivateID not set for private repo")
	}
	if r.RepositoryURL != "https://example.gov/howto" {
		t.Errorf("RepositoryURL = %q, want instructions URL", r.RepositoryURL)
	}
}

func TestFinalize_ExemptPrivateRepoGetsExemptedNoticeURL(t *testing.T) {
	f := newFinalizer(t, Options{InstructionsURL: "https://example.gov/howto", ExemptedNoticeURL: "https://example.gov/exempt"})
	r := &model.Repository{
		Name: "widget", Organization: "acme", Platform: model.PlatformGitHub,
		PlatformRepoID: "1", Visibility: model.VisibilityPrivate,
		Permissions: model.Permissions{UsageType: model.UsageExemptByLaw, ExemptionText: "statute"},
	}
	f.Finalize(r)

	if r.RepositoryURL != "https://example.gov/exempt" {
		t.Errorf("RepositoryURL = %q, want exempted notice URL", r.RepositoryURL)
	}
}

func TestFinalize_PublicRepoKeepsURLAndNoPrivateID(t *testing.T) {
	f := newFinalizer(t, Options{InstructionsURL: "https://example.gov/howto"})
	r := &model.Repository{
		Name: "widget", Organization: "acme", Platform: model.PlatformGitHub,
		RepositoryURL: "https://github.com/acme/widget", Visibility: model.VisibilityPublic,
		Permissions: model.Permissions{UsageType: model.UsageOpenSource},
	}
	f.Finalize(r)

	if r.PrivateID != "" {
		t.Errorf("PrivateID = %q, want empty for public repo", r.PrivateID)
	}
	if r.RepositoryURL != "https://github.com/acme/widget" {
		t.Errorf("RepositoryURL changed for public repo: %q", r.RepositoryURL)
	}
}

func TestFinalize_ArchivedStatusWins(t *testing.T) {
	f := newFinalizer(t, Options{})
	r := &model.Repository{Name: "widget", Archived: true, Visibility: model.VisibilityPublic}
	f.Finalize(r)
	if r.Status != model.StatusArchived {
		t.Errorf("Status = %q, want archived", r.Status)
	}
}

func TestFinalize_InactiveWhenStaleAndNoReadmeStatus(t *testing.T) {
	f := newFinalizer(t, Options{InactiveAfter: time.Hour})
	f.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	r := &model.Repository{
		Name: "widget", Visibility: model.VisibilityPublic,
		Date: &model.Dates{LastModified: "2025-01-01T00:00:00Z"},
	}
	f.Finalize(r)
	if r.Status != model.StatusInactive {
		t.Errorf("Status = %q, want inactive", r.Status)
	}
}

func TestFinalize_DefaultsToDevelopment(t *testing.T) {
	f := newFinalizer(t, Options{})
	r := &model.Repository{Name: "widget", Visibility: model.VisibilityPublic}
	f.Finalize(r)
	if r.Status != model.StatusDevelopment {
		t.Errorf("Status = %q, want development", r.Status)
	}
}

func TestFinalize_VersionFromTagsWhenUnset(t *testing.T) {
	f := newFinalizer(t, Options{})
	r := &model.Repository{Name: "widget", Visibility: model.VisibilityPublic, Tags: []string{"v1.2.3", "v1.0.0"}}
	f.Finalize(r)
	if r.Version != "v1.2.3" {
		t.Errorf("Version = %q, want v1.2.3", r.Version)
	}
}

func TestFinalize_ExistingVersionIsNotOverwritten(t *testing.T) {
	f := newFinalizer(t, Options{})
	r := &model.Repository{Name: "widget", Visibility: model.VisibilityPublic, Version: "9.9.9", Tags: []string{"v1.0.0"}}
	f.Finalize(r)
	if r.Version != "9.9.9" {
		t.Errorf("Version = %q, want unchanged 9.9.9", r.Version)
	}
}

func TestFinalize_GenericOrganizationReplacedWithAgencyName(t *testing.T) {
	f := newFinalizer(t, Options{AgencyName: "ACME Agency"})
	r := &model.Repository{Name: "widget", Organization: "unknown", Visibility: model.VisibilityPublic}
	r.SetGenericOrganization(true)
	f.Finalize(r)
	if r.Organization != "ACME Agency" {
		t.Errorf("Organization = %q, want ACME Agency", r.Organization)
	}
}

func TestFinalize_LogsExemptionOnce(t *testing.T) {
	dir := t.TempDir()
	ids, err := sidecar.LoadPrivateIDMap(filepath.Join(dir, "private_ids.csv"))
	if err != nil {
		t.Fatalf("LoadPrivateIDMap() error = %v", err)
	}
	log, err := sidecar.LoadExemptionLog(filepath.Join(dir, "exempted.csv"))
	if err != nil {
		t.Fatalf("LoadExemptionLog() error = %v", err)
	}
	f := New(Options{}, ids, log)

	r := &model.Repository{
		Name: "widget", Visibility: model.VisibilityPrivate,
		Permissions: model.Permissions{UsageType: model.UsageExemptByLaw, ExemptionText: "x"},
	}
	f.Finalize(r)
	if log.NewCount() != 1 {
		t.Errorf("NewCount() = %d, want 1", log.NewCount())
	}

	r2 := &model.Repository{
		Name: "widget", Visibility: model.VisibilityPrivate,
		Permissions: model.Permissions{UsageType: model.UsageExemptByLaw, ExemptionText: "x"},
	}
	f.Finalize(r2)
	if log.NewCount() != 1 {
		t.Errorf("NewCount() after duplicate = %d, want still 1", log.NewCount())
	}
}

func TestPickVersion_PrefersHighestNonPrerelease(t *testing.T) {
	got, ok := PickVersion([]string{"v1.0.0", "v2.0.0-rc1", "v1.5.0"})
	if !ok || got != "v1.5.0" {
		t.Errorf("PickVersion() = (%q, %v), want (v1.5.0, true)", got, ok)
	}
}

func TestPickVersion_FallsBackToPrereleaseWhenNothingElse(t *testing.T) {
	got, ok := PickVersion([]string{"v1.0.0-beta"})
	if !ok || got != "v1.0.0-beta" {
		t.Errorf("PickVersion() = (%q, %v)", got, ok)
	}
}

func TestPickVersion_IgnoresUnparseableTags(t *testing.T) {
	got, ok := PickVersion([]string{"latest", "unstable", "v3.1.4"})
	if !ok || got != "v3.1.4" {
		t.Errorf("PickVersion() = (%q, %v), want (v3.1.4, true)", got, ok)
	}
}

func TestPickVersion_NoParsableTagsReturnsFalse(t *testing.T) {
	if _, ok := PickVersion([]string{"latest", "nightly"}); ok {
		t.Errorf("PickVersion() = ok=true, want false")
	}
}
