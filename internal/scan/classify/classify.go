package classify

import (
	"context"
	"fmt"
	"strings"

	"codecat/internal/scan/model"
)

// ValidExemptionCodes lists the manual-marker codes process honors,
// mirroring VALID_AI_EXEMPTION_CODES plus the non-code exemption.
var ValidExemptionCodes = map[string]bool{
	string(model.UsageExemptByLaw):              true,
	string(model.UsageExemptByNationalSecurity): true,
	string(model.UsageExemptByAgencySystem):     true,
	string(model.UsageExemptByMissionSystem):    true,
	string(model.UsageExemptByCIO):              true,
	string(model.UsageExemptNonCode):            true,
}

// AIClassifier is the narrow interface the exemption cascade needs from
// the AI classifier, per spec.md 4.8.
type AIClassifier interface {
	IsExploratory(ctx context.Context, repoName, description, readme string) (exploratory bool, reason string, err error)
	InferExemption(ctx context.Context, repoName, description, readme string) (usageType model.UsageType, exemptionText string, err error)
}

// Input bundles Cascade's per-repository inputs.
type Input struct {
	RepoName    string
	IsPrivate   bool
	IsEmptyRepo bool
	README      string
	Languages   []string
	HasLicense  bool
}

// Result is Cascade's output: the resolved permissions plus whichever
// README-derived values a manual exemption parse happened to surface.
type Result struct {
	UsageType     model.UsageType
	ExemptionText string
}

// Cascade resolves a repository's usageType/exemptionText following the
// original's precedence: manual README marker, then non-code check, then
// AI exploratory-status check, then AI general exemption check, falling
// back to governmentWideReuse. Public repos skip the whole cascade and
// are classified by license presence alone, per spec.md 4.7.
func Cascade(ctx context.Context, in Input, ai AIClassifier) Result {
	if !in.IsPrivate {
		if in.HasLicense {
			return Result{UsageType: model.UsageOpenSource}
		}
		return Result{UsageType: model.UsageGovernmentWideReuse}
	}

	if in.README != "" {
		if manual, ok := ParseManualExemption(in.README); ok {
			if ValidExemptionCodes[manual.Code] {
				return Result{UsageType: model.UsageType(manual.Code), ExemptionText: manual.Justification}
			}
		}
	}

	if IsPurelyNonCode(in.Languages) {
		langs := strings.Join(nonEmpty(in.Languages), ", ")
		if langs == "" {
			langs = "None detected"
		}
		return Result{
			UsageType:     model.UsageExemptNonCode,
			ExemptionText: fmt.Sprintf("Non-code repository (languages: [%s])", langs),
		}
	}

	if ai != nil && !in.IsEmptyRepo && in.README != "" {
		if exploratory, reason, err := ai.IsExploratory(ctx, in.RepoName, "", in.README); err == nil && exploratory {
			reasonText := "AI determined the code is experimental/demo/exploratory."
			if reason != "" {
				reasonText = "AI Reason: " + reason
			}
			return Result{
				UsageType:     model.UsageExemptByCIO,
				ExemptionText: fmt.Sprintf("Code is experimental/demo/exploratory and does not qualify as custom-developed code. (%s)", reasonText),
			}
		}
	}

	if ai != nil && !in.IsEmptyRepo {
		if usageType, text, err := ai.InferExemption(ctx, in.RepoName, "", in.README); err == nil && usageType != "" {
			return Result{UsageType: usageType, ExemptionText: text}
		}
	}

	return Result{UsageType: model.UsageGovernmentWideReuse}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
