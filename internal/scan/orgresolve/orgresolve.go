// Package orgresolve implements the organization resolver cascade
// (programmatic acronym match -> README marker -> AI -> canonicalize),
// grounded on original_source/utils/exemption_processor.py's
// KNOWN_CDC_ORGANIZATIONS table and
// original_source/utils/organization_detector.py's matching approach.
package orgresolve

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// KnownOrganizations maps a lowercased acronym to its canonical full name.
// MatchAcronym tries longer acronyms first, so cdc is tried after every
// acronym of four or more letters; the order among acronyms of equal
// length is not fixed.
var KnownOrganizations = map[string]string{
	"od":     "Office of the Director",
	"om":     "Office of Mission Support",
	"ocoo":   "Office of the Chief Operating Officer",
	"oadc":   "Office of the Associate Directory of Communications",
	"ocio":   "Office of the Chief Information Officer",
	"oed":    "Office of Equal Employment Opportunity and Workplace Equity",
	"oga":    "Office of Global Affairs",
	"ohs":    "Office of Health Equity",
	"opa":    "Office of Policy, Performance, and Evaluation",
	"ostlts": "Office of State, Tribal, Local and Territorial Support",
	"owcd":   "Office of Women's Health and Health Equity",
	"csels":  "Center for Surveillance, Epidemiology, and Laboratory Services",
	"ddphss": "Deputy Director for Public Health Science and Surveillance",
	"cgh":    "Center for Global Health",
	"cid":    "Center for Preparedness and Response",
	"cpr":    "Center for Preparedness and Response",
	"ncezid": "National Center for Emerging and Zoonotic Infectious Diseases",
	"ncird":  "National Center for Immunization and Respiratory Diseases",
	"nchhstp": "National Center for HIV, Viral Hepatitis, STD, and TB Prevention",
	"nccdphp": "National Center for Chronic Disease Prevention and Health Promotion",
	"nceh":   "National Center for Environmental Health",
	"atsdr":  "Agency for Toxic Substances and Disease Registry",
	"ncipc":  "National Center for Injury Prevention and Control",
	"ncbddd": "National Center on Birth Defects and Developmental Disabilities",
	"nchs":   "National Center for Health Statistics",
	"niosh":  "National Institute for Occupational Safety and Health",
	"ddid":   "Deputy Director for Infectious Diseases",
	"ddnidd": "Deputy Director for Non-Infectious Diseases",
	"cfa":    "Center for Forecasting and Outbreak Analytics",
	"ophdst": "Office of Public Health Data, Surveillance, and Technology",
	"amd":    "Office of Advanced Molecular Detection",
	"oamd":   "Office of Advanced Molecular Detection",
	"cdc":    "Centers for Disease Control and Prevention",
}

// ReverseKnownOrganizations maps a lowercased full name back to its
// canonical acronym, for the canonicalize stage.
var ReverseKnownOrganizations = buildReverse()

func buildReverse() map[string]string {
	m := make(map[string]string, len(KnownOrganizations))
	for acronym, name := range KnownOrganizations {
		m[strings.ToLower(name)] = acronym
	}
	return m
}

// DefaultOrgIdentifiers are the organization values considered
// "generic/default/unknown" and thus eligible for override.
var DefaultOrgIdentifiers = map[string]bool{
	"unknownorg": true,
	"cdc":        true,
	"centers for disease control and prevention": true,
}

// acronymsLongestFirst orders KnownOrganizations' keys so a longer acronym
// (e.g. "ncezid") is tried before a shorter one that could be a substring
// match elsewhere (e.g. "cid"), mirroring the original's sort-by-length.
var acronymsLongestFirst = sortedAcronyms()

func sortedAcronyms() []string {
	keys := make([]string, 0, len(KnownOrganizations))
	for k := range KnownOrganizations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}

// isGeneric reports whether org is one of the identifiers eligible for
// programmatic or AI override.
func isGeneric(org string) bool {
	return DefaultOrgIdentifiers[strings.ToLower(strings.TrimSpace(org))]
}

// MatchAcronym tokenizes repoName on non-alphanumeric characters and
// returns the full name of the first known acronym found, trying longer
// acronyms first so multi-letter centers aren't shadowed by shorter ones.
func MatchAcronym(repoName string) (fullName string, ok bool) {
	lower := strings.ToLower(repoName)
	for _, acronym := range acronymsLongestFirst {
		re := regexp.MustCompile(`(?:^|[^a-z0-9])` + regexp.QuoteMeta(acronym) + `(?:[^a-z0-9]|$)`)
		if re.MatchString(lower) {
			return KnownOrganizations[acronym], true
		}
	}
	return "", false
}

// Canonicalize maps a full organization name back to its acronym via the
// reverse table, leaving it unchanged if the name isn't recognized.
func Canonicalize(fullName string) string {
	if acronym, ok := ReverseKnownOrganizations[strings.ToLower(fullName)]; ok {
		return acronym
	}
	return fullName
}

// AIInferrer is the narrow interface the resolver needs from the AI
// classifier for organization inference (spec.md 4.9 stage 3).
type AIInferrer interface {
	InferOrganization(ctx context.Context, repoName, description string, tags []string, readmeExcerpt string, knownOrgs map[string]string) (string, error)
}

// Input bundles Resolve's per-repository inputs.
type Input struct {
	RepoName        string
	CurrentOrg      string
	ReadmeOrgMarker string // from "Organization:" README marker, empty if absent
	Description     string
	Tags            []string
	ReadmeExcerpt   string
}

// Result is Resolve's output.
type Result struct {
	Organization          string
	IsGenericOrganization bool
}

// Resolve runs the organization resolver cascade: programmatic acronym
// match, README marker, AI inference (only when still generic), then
// canonicalize and flag remaining generic values, per spec.md 4.9.
func Resolve(ctx context.Context, in Input, ai AIInferrer) Result {
	org := in.CurrentOrg

	if isGeneric(org) {
		if full, ok := MatchAcronym(in.RepoName); ok {
			org = full
		}
	}

	if in.ReadmeOrgMarker != "" {
		org = in.ReadmeOrgMarker
	}

	if ai != nil && isGeneric(org) {
		if full, err := ai.InferOrganization(ctx, in.RepoName, in.Description, in.Tags, in.ReadmeExcerpt, KnownOrganizations); err == nil && full != "" {
			if _, known := ReverseKnownOrganizations[strings.ToLower(full)]; known {
				org = full
			}
		}
	}

	org = Canonicalize(org)

	return Result{
		Organization:          org,
		IsGenericOrganization: isGeneric(org),
	}
}
