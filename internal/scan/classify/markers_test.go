package classify

import (
	"reflect"
	"testing"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		name   string
		readme string
		want   string
		wantOK bool
	}{
		{"simple", "Version: 1.2.3", "1.2.3", true},
		{"v-prefixed", "Version: v2.0.0", "2.0.0", true},
		{"markdown emphasis", "Version: **1.0**", "1.0", true},
		{"absent", "nothing here", "", false},
		{"blank value", "Version: ", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ParseVersion(c.readme)
			if got != c.want || ok != c.wantOK {
				t.Errorf("ParseVersion(%q) = (%q, %v), want (%q, %v)", c.readme, got, ok, c.want, c.wantOK)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags("Tags: foo, bar,  baz ")
	want := []string{"foo", "bar", "baz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTags() = %v, want %v", got, want)
	}
	if got := ParseTags("no tags here"); got != nil {
		t.Errorf("ParseTags() = %v, want nil", got)
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		readme string
		want   string
		wantOK bool
	}{
		{"Status: Active", "maintained", true},
		{"Project Status: Deprecated", "deprecated", true},
		{"Status: Experimental", "experimental", true},
		{"no marker", "", false},
	}
	for _, c := range cases {
		got, ok := ParseStatus(c.readme)
		if got != c.want || ok != c.wantOK {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", c.readme, got, ok, c.want, c.wantOK)
		}
	}
}

func TestParseLaborHours(t *testing.T) {
	got, ok := ParseLaborHours("Estimated Labor Hours: 240")
	if !ok || got != 240 {
		t.Errorf("ParseLaborHours() = (%d, %v), want (240, true)", got, ok)
	}
	if _, ok := ParseLaborHours("Labor Hours: abc"); ok {
		t.Errorf("ParseLaborHours() with non-numeric should fail")
	}
	if _, ok := ParseLaborHours("nothing"); ok {
		t.Errorf("ParseLaborHours() with no marker should fail")
	}
}

func TestParseOrganization(t *testing.T) {
	got, ok := ParseOrganization("Organization: CDC<br>Extra")
	if !ok || got != "CDC Extra" {
		t.Errorf("ParseOrganization() = (%q, %v), want (%q, true)", got, ok, "CDC Extra")
	}
	if _, ok := ParseOrganization("no marker"); ok {
		t.Errorf("ParseOrganization() with no marker should fail")
	}
}

func TestParseContractNumber(t *testing.T) {
	got, ok := ParseContractNumber("Contract#: 123-ABC")
	if !ok || got != "123-ABC" {
		t.Errorf("ParseContractNumber() = (%q, %v)", got, ok)
	}
}

func TestParseManualExemption_RequiresBothMarkers(t *testing.T) {
	_, ok := ParseManualExemption("Exemption: exemptByLaw")
	if ok {
		t.Errorf("ParseManualExemption() with only code should fail")
	}

	got, ok := ParseManualExemption("Exemption: exemptByLaw\nExemption justification: because reasons")
	if !ok {
		t.Fatalf("ParseManualExemption() failed, want success")
	}
	if got.Code != "exemptByLaw" || got.Justification != "because reasons" {
		t.Errorf("ParseManualExemption() = %+v", got)
	}
}

func TestExtractEmails_OnlyCDCDomain(t *testing.T) {
	got := ExtractEmails("reach out to Jane.Doe@cdc.gov or someone@example.com, also JANE.DOE@CDC.GOV")
	want := []string{"jane.doe@cdc.gov"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractEmails() = %v, want %v", got, want)
	}
}

func TestExtractEmails_Empty(t *testing.T) {
	if got := ExtractEmails(""); got != nil {
		t.Errorf("ExtractEmails(\"\") = %v, want nil", got)
	}
}

func TestCombinedContactEmails_PrefersContactLine(t *testing.T) {
	readme := "Contact: a@cdc.gov\nsome other text with b@cdc.gov"
	codeowners := "* c@cdc.gov"
	got := CombinedContactEmails(readme, codeowners)
	want := []string{"a@cdc.gov"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CombinedContactEmails() = %v, want %v", got, want)
	}
}

func TestCombinedContactEmails_FallsBackToCodeowners(t *testing.T) {
	readme := "no contact marker here"
	codeowners := "* c@cdc.gov"
	got := CombinedContactEmails(readme, codeowners)
	want := []string{"c@cdc.gov"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CombinedContactEmails() = %v, want %v", got, want)
	}
}

func TestCombinedContactEmails_FallsBackToFullReadmeScan(t *testing.T) {
	readme := "Reach the team at d@cdc.gov for questions."
	got := CombinedContactEmails(readme, "")
	want := []string{"d@cdc.gov"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CombinedContactEmails() = %v, want %v", got, want)
	}
}

func TestCombinedContactEmails_NoneFound(t *testing.T) {
	if got := CombinedContactEmails("nothing", ""); got != nil {
		t.Errorf("CombinedContactEmails() = %v, want nil", got)
	}
}

func TestIsPurelyNonCode(t *testing.T) {
	if !IsPurelyNonCode(nil) {
		t.Errorf("IsPurelyNonCode(nil) = false, want true")
	}
	if !IsPurelyNonCode([]string{"Markdown", "YAML"}) {
		t.Errorf("IsPurelyNonCode(markdown/yaml) = false, want true")
	}
	if IsPurelyNonCode([]string{"Go", "Markdown"}) {
		t.Errorf("IsPurelyNonCode(go/markdown) = true, want false")
	}
}
