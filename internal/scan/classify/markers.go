// Package classify implements README marker parsing and the exemption
// cascade (manual marker, non-code, AI exploratory, AI general), grounded
// on original_source/utils/exemption_processor.py.
package classify

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

var (
	versionMarker      = regexp.MustCompile(`(?im)^\s*Version:\s*(.+)$`)
	organizationMarker = regexp.MustCompile(`(?im)^\s*Organization:\s*(.+)$`)
	statusRegex        = regexp.MustCompile(`(?im)^(?:Project Status|Status):\s*(Maintained|Deprecated|Experimental|Active|Inactive)\b`)
	laborHoursRegex    = regexp.MustCompile(`(?im)^(?:Estimated Labor Hours|Labor Hours):\s*(\d+)\b`)
	contactLineRegex   = regexp.MustCompile(`(?im)^(?:Contact|Contacts):\s*(.*)$`)
	tagsRegex          = regexp.MustCompile(`(?im)^(?:Keywords|Tags|Topics):\s*(.+)$`)
	htmlTagRegex       = regexp.MustCompile(`<[^>]+>`)
	contractRegex      = regexp.MustCompile(`(?im)^Contract#:\s*(.*)$`)
	manualExemptRegex  = regexp.MustCompile(`(?im)Exemption:\s*(\S+)`)
	justificationRegex = regexp.MustCompile(`(?im)Exemption justification:\s*(.*)$`)
	brTagRegex         = regexp.MustCompile(`(?i)<br\s*/?>`)
	emailPattern       = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// NonCodeLanguages are languages that don't count toward "has code" for
// the non-code exemption check.
var NonCodeLanguages = map[string]bool{
	"":           true,
	"markdown":   true,
	"text":       true,
	"html":       true,
	"css":        true,
	"xml":        true,
	"yaml":       true,
	"json":       true,
	"shell":      true,
	"batchfile":  true,
	"powershell": true,
	"dockerfile": true,
	"makefile":   true,
	"cmake":      true,
	"tex":        true,
	"roff":       true,
	"csv":        true,
	"tsv":        true,
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(htmlTagRegex.ReplaceAllString(s, ""))
}

// ParseVersion extracts a "Version:" marker from readme, stripping HTML,
// surrounding markdown emphasis characters, and a leading "v".
func ParseVersion(readme string) (string, bool) {
	m := versionMarker.FindStringSubmatch(readme)
	if m == nil {
		return "", false
	}
	v := stripHTML(html.UnescapeString(strings.TrimSpace(m[1])))
	v = strings.Trim(v, "*_`")
	if strings.HasPrefix(strings.ToLower(v), "v") {
		v = strings.TrimSpace(v[1:])
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// ParseTags extracts a "Keywords:"/"Tags:"/"Topics:" marker as a
// comma-split, trimmed tag list.
func ParseTags(readme string) []string {
	m := tagsRegex.FindStringSubmatch(readme)
	if m == nil {
		return nil
	}
	line := stripHTML(html.UnescapeString(strings.TrimSpace(m[1])))
	var tags []string
	for _, t := range strings.Split(line, ",") {
		t = strings.Trim(strings.TrimSpace(t), "*_`")
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ParseStatus extracts a "Status:"/"Project Status:" marker, normalizing
// "active" to "maintained" per the original's convention.
func ParseStatus(readme string) (string, bool) {
	m := statusRegex.FindStringSubmatch(readme)
	if m == nil {
		return "", false
	}
	s := strings.ToLower(strings.TrimSpace(m[1]))
	if s == "active" {
		return "maintained", true
	}
	return s, true
}

// ParseLaborHours extracts an "Estimated Labor Hours:"/"Labor Hours:" marker.
func ParseLaborHours(readme string) (int, bool) {
	m := laborHoursRegex.FindStringSubmatch(readme)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, c := range m[1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// ParseOrganization extracts an "Organization:" marker, stripping a
// redundant leading "Organization:"/"Org:" prefix and <br> tags.
func ParseOrganization(readme string) (string, bool) {
	m := organizationMarker.FindStringSubmatch(readme)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	v = regexp.MustCompile(`(?i)^(?:Organization|Org):\s*`).ReplaceAllString(v, "")
	v = html.UnescapeString(v)
	v = strings.TrimSpace(brTagRegex.ReplaceAllString(v, " "))
	return v, v != ""
}

// ParseContractNumber extracts a "Contract#:" marker.
func ParseContractNumber(readme string) (string, bool) {
	m := contractRegex.FindStringSubmatch(readme)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

// ManualExemption holds a manually-marked exemption code and justification
// parsed from README "Exemption:"/"Exemption justification:" lines.
type ManualExemption struct {
	Code          string
	Justification string
}

// ParseManualExemption extracts an "Exemption:"/"Exemption justification:"
// marker pair. Both must be present for a manual exemption to apply.
func ParseManualExemption(readme string) (ManualExemption, bool) {
	codeMatch := manualExemptRegex.FindStringSubmatch(readme)
	justMatch := justificationRegex.FindStringSubmatch(readme)
	if codeMatch == nil || justMatch == nil {
		return ManualExemption{}, false
	}
	return ManualExemption{
		Code:          strings.TrimSpace(codeMatch[1]),
		Justification: strings.TrimSpace(justMatch[1]),
	}, true
}

// ExtractEmails returns the CDC-domain email addresses found in content,
// deduplicated and lowercased.
func ExtractEmails(content string) []string {
	if content == "" {
		return nil
	}
	matches := emailPattern.FindAllString(content, -1)
	seen := map[string]bool{}
	var out []string
	for _, e := range matches {
		lower := strings.ToLower(e)
		if !strings.HasSuffix(lower, "@cdc.gov") || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	sort.Strings(out)
	return out
}

// CombinedContactEmails resolves contact emails with the original's
// precedence: README "Contact:" line first, then CODEOWNERS, then a full
// README scan, only falling through when the higher-priority source
// yields nothing.
func CombinedContactEmails(readme, codeowners string) []string {
	if readme != "" {
		var contactLineEmails []string
		for _, m := range contactLineRegex.FindAllStringSubmatch(readme, -1) {
			contactLineEmails = append(contactLineEmails, ExtractEmails(m[1])...)
		}
		if len(contactLineEmails) > 0 {
			return dedupeSorted(contactLineEmails)
		}
	}
	if emails := ExtractEmails(codeowners); len(emails) > 0 {
		return dedupeSorted(emails)
	}
	if readme != "" {
		if emails := ExtractEmails(readme); len(emails) > 0 {
			return dedupeSorted(emails)
		}
	}
	return nil
}

func dedupeSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range in {
		e = strings.ToLower(e)
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// IsPurelyNonCode reports whether every entry in languages is one of
// NonCodeLanguages, treating an empty list as non-code.
func IsPurelyNonCode(languages []string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, lang := range languages {
		if !NonCodeLanguages[strings.ToLower(strings.TrimSpace(lang))] {
			return false
		}
	}
	return true
}
