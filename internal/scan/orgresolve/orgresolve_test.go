package orgresolve

import (
	"context"
	"errors"
	"testing"
)

type fakeAIInferrer struct {
	org string
	err error
}

func (f fakeAIInferrer) InferOrganization(_ context.Context, _, _ string, _ []string, _ string, _ map[string]string) (string, error) {
	return f.org, f.err
}

func TestMatchAcronym_LongestFirst(t *testing.T) {
	full, ok := MatchAcronym("ncezid-tools")
	if !ok || full != KnownOrganizations["ncezid"] {
		t.Errorf("MatchAcronym() = (%q, %v), want (%q, true)", full, ok, KnownOrganizations["ncezid"])
	}
}

func TestMatchAcronym_DoesNotShadowOnSubstring(t *testing.T) {
	// "cid" is a known acronym but must not match inside "decide-app".
	if _, ok := MatchAcronym("decide-app"); ok {
		t.Errorf("MatchAcronym(%q) matched, want no match", "decide-app")
	}
}

func TestMatchAcronym_NoMatch(t *testing.T) {
	if _, ok := MatchAcronym("totally-unrelated-repo"); ok {
		t.Errorf("MatchAcronym() matched, want no match")
	}
}

func TestCanonicalize_KnownFullName(t *testing.T) {
	got := Canonicalize("Centers for Disease Control and Prevention")
	if got != "cdc" {
		t.Errorf("Canonicalize() = %q, want cdc", got)
	}
}

func TestCanonicalize_UnknownNameUnchanged(t *testing.T) {
	got := Canonicalize("Some Other Agency")
	if got != "Some Other Agency" {
		t.Errorf("Canonicalize() = %q, want unchanged", got)
	}
}

func TestResolve_ProgrammaticAcronymMatchWhenGeneric(t *testing.T) {
	got := Resolve(context.Background(), Input{RepoName: "niosh-dashboard", CurrentOrg: "cdc"}, nil)
	if got.Organization != "niosh" {
		t.Errorf("Organization = %q, want niosh", got.Organization)
	}
	if got.IsGenericOrganization {
		t.Errorf("IsGenericOrganization = true, want false")
	}
}

func TestResolve_NonGenericOrgIsLeftAlone(t *testing.T) {
	got := Resolve(context.Background(), Input{RepoName: "niosh-dashboard", CurrentOrg: "Office of the Director"}, nil)
	if got.Organization != "od" {
		t.Errorf("Organization = %q, want od (canonicalized)", got.Organization)
	}
}

func TestResolve_ReadmeMarkerOverridesAcronymMatch(t *testing.T) {
	got := Resolve(context.Background(), Input{
		RepoName: "niosh-dashboard", CurrentOrg: "cdc", ReadmeOrgMarker: "Office of Global Affairs",
	}, nil)
	if got.Organization != "oga" {
		t.Errorf("Organization = %q, want oga", got.Organization)
	}
}

func TestResolve_AIUsedOnlyWhenStillGeneric(t *testing.T) {
	ai := fakeAIInferrer{org: "National Center for Health Statistics"}
	got := Resolve(context.Background(), Input{RepoName: "repo-1", CurrentOrg: "cdc"}, ai)
	if got.Organization != "nchs" {
		t.Errorf("Organization = %q, want nchs", got.Organization)
	}
}

func TestResolve_AINotCalledWhenAlreadySpecific(t *testing.T) {
	ai := fakeAIInferrer{org: "National Center for Health Statistics"}
	got := Resolve(context.Background(), Input{RepoName: "repo-1", CurrentOrg: "Office of Global Affairs"}, ai)
	if got.Organization != "oga" {
		t.Errorf("Organization = %q, want oga (AI should not override a specific org)", got.Organization)
	}
}

func TestResolve_AIUnknownOrgIsIgnored(t *testing.T) {
	ai := fakeAIInferrer{org: "Not A Real Agency"}
	got := Resolve(context.Background(), Input{RepoName: "repo-1", CurrentOrg: "cdc"}, ai)
	if !got.IsGenericOrganization {
		t.Errorf("IsGenericOrganization = false, want true when AI org isn't recognized")
	}
}

func TestResolve_AIErrorIsIgnored(t *testing.T) {
	ai := fakeAIInferrer{err: errors.New("boom")}
	got := Resolve(context.Background(), Input{RepoName: "repo-1", CurrentOrg: "cdc"}, ai)
	if got.Organization != "cdc" {
		t.Errorf("Organization = %q, want cdc unchanged on AI error", got.Organization)
	}
}

func TestResolve_NoMatchRemainsGeneric(t *testing.T) {
	got := Resolve(context.Background(), Input{RepoName: "repo-1", CurrentOrg: "unknownorg"}, nil)
	if !got.IsGenericOrganization {
		t.Errorf("IsGenericOrganization = false, want true")
	}
}
