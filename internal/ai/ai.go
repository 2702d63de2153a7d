// Package ai wraps the Anthropic API for the narrow inference tasks the
// scan pipeline needs: exemption/exploratory classification, organization
// inference, and short description backfill, grounded on the config and
// AI-gating conventions of original_source/utils/exemption_processor.py
// (AI_ORGANIZATION_ENABLED, DISABLE_SSL_VERIFICATION, sentinel values).
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/model"
)

// InsufficientDescriptionSentinel mirrors the original's sentinel value
// returned when the model judges a repository has too little content to
// describe.
const InsufficientDescriptionSentinel = "N/A"

// Options configures a Classifier.
type Options struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

func (o *Options) setDefaults() {
	if o.Model == "" {
		o.Model = "claude-3-5-haiku-latest"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
}

// Classifier implements classify.AIClassifier and orgresolve.AIInferrer
// against the Anthropic messages API.
type Classifier struct {
	client anthropic.Client
	opts   Options
	log    logger.Logger
}

// NewClassifier builds a Classifier. Callers should gate construction on
// a configured, non-placeholder API key, per spec.md 4.8.
func NewClassifier(o Options) *Classifier {
	o.setDefaults()
	return &Classifier{
		client: anthropic.NewClient(option.WithAPIKey(o.APIKey)),
		opts:   o,
		log:    *logger.Named("ai.classifier"),
	}
}

func (c *Classifier) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "anthropic completion failed")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// IsExploratory asks whether a repository's README/description describes
// purely experimental, demo, or exploratory code.
func (c *Classifier) IsExploratory(ctx context.Context, repoName, description, readme string) (bool, string, error) {
	system := "You determine whether a government software repository is purely experimental, a demo, or exploratory code rather than production custom-developed code. " +
		"Respond with exactly one JSON object: {\"exploratory\": true|false, \"reason\": \"short reason\"}."
	user := fmt.Sprintf("Repository: %s\nDescription: %s\nREADME excerpt:\n%s", repoName, description, truncate(readme, 4000))

	raw, err := c.complete(ctx, system, user)
	if err != nil {
		return false, "", err
	}
	var out struct {
		Exploratory bool   `json:"exploratory"`
		Reason      string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return false, "", perr.Wrapf(err, perr.ErrorCodeJSON, "decode exploratory-status response")
	}
	return out.Exploratory, out.Reason, nil
}

// InferExemption asks whether a repository qualifies for one of the
// Share IT Act exemption codes.
func (c *Classifier) InferExemption(ctx context.Context, repoName, description, readme string) (model.UsageType, string, error) {
	system := "You classify government software repositories against Share IT Act exemption categories: " +
		"exemptByLaw, exemptByNationalSecurity, exemptByAgencySystem, exemptByMissionSystem, exemptByCIO. " +
		"Respond with exactly one JSON object: {\"usageType\": \"<code or empty string>\", \"exemptionText\": \"short justification or empty string\"}. " +
		"Use an empty usageType if no exemption clearly applies."
	user := fmt.Sprintf("Repository: %s\nDescription: %s\nREADME excerpt:\n%s", repoName, description, truncate(readme, 4000))

	raw, err := c.complete(ctx, system, user)
	if err != nil {
		return "", "", err
	}
	var out struct {
		UsageType     string `json:"usageType"`
		ExemptionText string `json:"exemptionText"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return "", "", perr.Wrapf(err, perr.ErrorCodeJSON, "decode exemption response")
	}
	return model.UsageType(out.UsageType), out.ExemptionText, nil
}

// InferOrganization asks which known CDC organization, if any, a
// repository belongs to, constrained to the supplied acronym table.
func (c *Classifier) InferOrganization(ctx context.Context, repoName, description string, tags []string, readmeExcerpt string, knownOrgs map[string]string) (string, error) {
	var names []string
	for _, name := range knownOrgs {
		names = append(names, name)
	}
	system := "You match a government software repository to one of a fixed list of known organizations. " +
		"Respond with exactly one JSON object: {\"organization\": \"<one of the listed names, or empty string if none fit>\"}. " +
		"Known organizations: " + strings.Join(names, "; ")
	user := fmt.Sprintf("Repository: %s\nDescription: %s\nTags: %s\nREADME excerpt:\n%s",
		repoName, description, strings.Join(tags, ", "), truncate(readmeExcerpt, 4000))

	raw, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	var out struct {
		Organization string `json:"organization"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeJSON, "decode organization response")
	}
	return out.Organization, nil
}

// Describe generates a short description from a README excerpt, returning
// InsufficientDescriptionSentinel when the content doesn't support one.
func (c *Classifier) Describe(ctx context.Context, repoName, readme string) (string, error) {
	system := "You write a single-sentence description of a software repository from its README. " +
		"If the README has too little content to describe, respond with exactly: " + InsufficientDescriptionSentinel + ". " +
		"Otherwise respond with only the description sentence, no preamble."
	user := fmt.Sprintf("Repository: %s\nREADME excerpt:\n%s", repoName, truncate(readme, 6000))

	raw, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// extractJSON trims leading/trailing prose a model sometimes wraps the
// JSON object in, returning the substring between the first '{' and the
// matching last '}'.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

// NullClassifier implements the same interfaces as Classifier but always
// declines, for use when AI inference is disabled or misconfigured.
type NullClassifier struct{}

// IsExploratory always declines.
func (NullClassifier) IsExploratory(context.Context, string, string, string) (bool, string, error) {
	return false, "", nil
}

// InferExemption always declines.
func (NullClassifier) InferExemption(context.Context, string, string, string) (model.UsageType, string, error) {
	return "", "", nil
}

// InferOrganization always declines.
func (NullClassifier) InferOrganization(context.Context, string, string, []string, string, map[string]string) (string, error) {
	return "", nil
}

// Describe always declines, returning the sentinel.
func (NullClassifier) Describe(context.Context, string, string) (string, error) {
	return InsufficientDescriptionSentinel, nil
}
