// Command codecat scans one or more source-code hosting platforms and
// produces a compliance catalog, grounded on cmd/swearjar-backfill's
// flag/env wiring but restructured into explicit per-platform
// subcommands, per spec.md 6.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"codecat/internal/ai"
	"codecat/internal/platform/config"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/adapters"
	"codecat/internal/scan/adapters/azure"
	"codecat/internal/scan/adapters/github"
	"codecat/internal/scan/adapters/gitlab"
	"codecat/internal/scan/cache"
	scanconfig "codecat/internal/scan/config"
	"codecat/internal/scan/finalize"
	"codecat/internal/scan/merge"
	"codecat/internal/scan/orchestrator"
	"codecat/internal/scan/sidecar"
	"codecat/internal/scan/status"
)

// progress is shared across every target a single invocation scans, so
// one optional status server can report on the whole run.
var progress = status.NewProgress()

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: codecat <github|gitlab|azure|merge> [flags]")
		os.Exit(1)
	}

	l := logger.Get()
	ctx := context.Background()

	root := config.New()
	if root.MayBool("STATUS_ENABLED", false) {
		srv := status.New(root, progress)
		go func() {
			if err := srv.Run(ctx); err != nil {
				l.Error().Err(err).Msg("status server stopped")
			}
		}()
		defer func() { _ = srv.Shutdown(ctx) }()
	}

	if err := scanconfig.Validate(buildRunConfig(root)); err != nil {
		l.Error().Err(err).Msg("configuration invalid")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "github":
		err = runGitHub(ctx, os.Args[2:])
	case "gitlab":
		err = runGitLab(ctx, os.Args[2:])
	case "azure":
		err = runAzure(ctx, os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		l.Error().Err(err).Str("subcommand", os.Args[1]).Msg("codecat run failed")
		os.Exit(1)
	}
}

// outputOptions reads the environment config spec.md 6 names for output
// paths, agency name, and finalizer URLs/contacts.
type outputOptions struct {
	dir               string
	catalogFile       string
	exemptedCSVFile   string
	privateIDCSVFile  string
	agencyName        string
	instructionsURL   string
	exemptedNoticeURL string
	privateContact    string
	publicContact     string
}

// buildRunConfig assembles the validated view of every env var spec.md 6
// names, checked once before any target starts.
func buildRunConfig(root config.Conf) scanconfig.RunConfig {
	out := loadOutputOptions(root)
	aiEnabled := root.MayBool("AI_ENABLED", false)
	return scanconfig.RunConfig{
		OutputDir:         out.dir,
		CatalogJSONFile:   out.catalogFile,
		ExemptedCSVFile:   out.exemptedCSVFile,
		PrivateIDCSVFile:  out.privateIDCSVFile,
		AgencyName:        out.agencyName,
		InstructionsURL:   out.instructionsURL,
		ExemptedNoticeURL: out.exemptedNoticeURL,
		PrivateContact:    out.privateContact,
		PublicContact:     out.publicContact,
		Workers:           root.MayInt("SCANNER_MAX_WORKERS", 5),
		SafetyFactor:      root.MayFloat64("API_SAFETY_FACTOR", 0.8),
		MinDelaySecs:      root.MayFloat64("MIN_INTER_REPO_DELAY_SECONDS", 0.1),
		MaxDelaySecs:      root.MayFloat64("MAX_INTER_REPO_DELAY_SECONDS", 30),
		HoursPerCommit:    root.MayFloat64("HOURS_PER_COMMIT", 0.5),
		AIEnabled:         aiEnabled,
		AIModel:           root.MayString("AI_MODEL_NAME", map[bool]string{true: "claude-3-5-haiku-latest"}[aiEnabled]),
	}
}

func loadOutputOptions(root config.Conf) outputOptions {
	return outputOptions{
		dir:               root.MayString("OUTPUT_DIR", "."),
		catalogFile:       root.MayString("CATALOG_JSON_FILE", "code.json"),
		exemptedCSVFile:   root.MayString("EXEMPTED_CSV_FILE", "exemption_log.csv"),
		privateIDCSVFile:  root.MayString("PRIVATE_ID_CSV_FILE", "privateid_map.csv"),
		agencyName:        root.MayString("AGENCY_NAME", "CDC"),
		instructionsURL:   root.MayString("INSTRUCTIONS_PDF_URL", ""),
		exemptedNoticeURL: root.MayString("EXEMPTED_NOTICE_PDF_URL", ""),
		privateContact:    root.MayString("PRIVATE_REPO_CONTACT_EMAIL", ""),
		publicContact:     root.MayString("DEFAULT_CONTACT_EMAIL", ""),
	}
}

func buildAIClassifier(root config.Conf) *ai.Classifier {
	if !root.MayBool("AI_ENABLED", false) {
		return nil
	}
	if root.MayBool("DISABLE_SSL_VERIFICATION", false) {
		return nil
	}
	apiKey := root.MayString("GOOGLE_API_KEY", "")
	if apiKey == "" {
		return nil
	}
	return ai.NewClassifier(ai.Options{
		APIKey:      apiKey,
		Model:       root.MayString("AI_MODEL_NAME", ""),
		MaxTokens:   int64(root.MayInt("AI_MAX_OUTPUT_TOKENS", 0)),
		Temperature: root.MayFloat64("AI_TEMPERATURE", 0),
	})
}

func secondsEnv(root config.Conf, key string, def float64) time.Duration {
	return time.Duration(root.MayFloat64(key, def) * float64(time.Second))
}

// pacingOptions reads the shared submission-pacing env vars spec.md 6
// names, common to every scan subcommand. The *_SECONDS vars hold plain
// floating-point seconds, not Go duration strings.
func pacingOptions(root config.Conf, workers int, limit int) orchestrator.Options {
	return orchestrator.Options{
		Workers:        workers,
		DebugLimit:     limit,
		HoursPerCommit: root.MayFloat64("HOURS_PER_COMMIT", 0),
		SafetyFactor:   root.MayFloat64("API_SAFETY_FACTOR", 0),
		MinDelay:       secondsEnv(root, "MIN_INTER_REPO_DELAY_SECONDS", 0.1),
		MaxDelay:       secondsEnv(root, "MAX_INTER_REPO_DELAY_SECONDS", 30),
		PeekThreshold:  secondsEnv(root, "PEEK_AHEAD_THRESHOLD_DELAY_SECONDS", 0.5),
		CacheHitDelay:  secondsEnv(root, "CACHE_HIT_SUBMISSION_DELAY_SECONDS", 0.05),
		PostCallThresh: root.MayInt("DYNAMIC_DELAY_THRESHOLD_REPOS", 100),
		PostCallScale:  root.MayFloat64("DYNAMIC_DELAY_SCALE_FACTOR", 1.5),
	}
}

func privateCutoff(root config.Conf) time.Time {
	raw := root.MayString("FIXED_PRIVATE_REPO_FILTER_DATE", "2021-04-21")
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func createdAfter(root config.Conf) time.Time {
	raw := root.MayString("REPOS_CREATED_AFTER_DATE", "")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// runTarget wires the shared side-cars, finalizer, cache, and AI
// classifier around adapter, then runs the orchestrator and writes the
// target's intermediate file, per spec.md 4.11/4.12.
func runTarget(ctx context.Context, target string, adapter adapters.Adapter, workers, limit int) error {
	root := config.New()
	out := loadOutputOptions(root)

	intermediatePath := merge.IntermediatePath(out.dir, string(adapter.Platform()), target)
	cacheStore := cache.Load(intermediatePath, string(adapter.Platform()))

	privateIDs, err := sidecar.LoadPrivateIDMap(out.dir + "/" + out.privateIDCSVFile)
	if err != nil {
		return err
	}
	exemptions, err := sidecar.LoadExemptionLog(out.dir + "/" + out.exemptedCSVFile)
	if err != nil {
		return err
	}

	finalizer := finalize.New(finalize.Options{
		AgencyName:          out.agencyName,
		InstructionsURL:     out.instructionsURL,
		ExemptedNoticeURL:   out.exemptedNoticeURL,
		PrivateContactEmail: out.privateContact,
		PublicContactEmail:  out.publicContact,
	}, privateIDs, exemptions)

	orch := orchestrator.New(adapter, cacheStore, finalizer, buildAIClassifier(root))

	opts := pacingOptions(root, workers, limit)
	opts.Target = target
	opts.PrivateCutoff = privateCutoff(root)
	opts.CreatedAfter = createdAfter(root)
	progress.SetTarget(target)
	opts.OnProcessed = func() {
		progress.IncProcessed()
		progress.SetCounts(exemptions.NewCount(), privateIDs.NewCount())
	}

	repos, err := orch.Run(ctx, opts)
	if err != nil {
		progress.SetDone(err)
		return err
	}

	if err := merge.WriteIntermediate(intermediatePath, repos); err != nil {
		return err
	}
	if err := privateIDs.Save(); err != nil {
		return err
	}
	if err := exemptions.Flush(); err != nil {
		return err
	}

	progress.SetDone(nil)
	logger.Get().Info().Str("target", target).Int("repos", len(repos)).
		Int("new_private_ids", privateIDs.NewCount()).Int("new_exemptions", exemptions.NewCount()).
		Msg("scan target complete")
	return nil
}

func runGitHub(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("github", flag.ExitOnError)
	orgs := fs.String("orgs", "", "comma-separated GitHub organizations")
	ghesURL := fs.String("github-ghes-url", "", "GitHub Enterprise Server base API URL")
	token := fs.String("gh-tk", "", "GitHub token")
	workers := fs.Int("workers", 0, "worker pool size")
	limit := fs.Int("limit", 0, "max repos to process per org, <=0 means no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *orgs == "" || *token == "" {
		return fmt.Errorf("github: --orgs and --gh-tk are required")
	}
	if *workers <= 0 {
		*workers = config.New().MayInt("SCANNER_MAX_WORKERS", 5)
	}

	client := github.NewClient(github.Options{BaseURL: *ghesURL, Token: *token})
	adapter := github.NewAdapter(client)

	for _, org := range splitCSV(*orgs) {
		if err := runTarget(ctx, org, adapter, *workers, *limit); err != nil {
			return fmt.Errorf("github org %s: %w", org, err)
		}
	}
	return nil
}

func runGitLab(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gitlab", flag.ExitOnError)
	groups := fs.String("groups", "", "comma-separated GitLab groups")
	glURL := fs.String("gitlab-url", "", "GitLab base URL")
	token := fs.String("gl-tk", "", "GitLab token")
	workers := fs.Int("workers", 0, "worker pool size")
	limit := fs.Int("limit", 0, "max repos to process per group, <=0 means no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *groups == "" || *token == "" {
		return fmt.Errorf("gitlab: --groups and --gl-tk are required")
	}
	if *workers <= 0 {
		*workers = config.New().MayInt("SCANNER_MAX_WORKERS", 5)
	}

	client := gitlab.NewClient(gitlab.Options{BaseURL: *glURL, Token: *token})
	adapter := gitlab.NewAdapter(client)

	for _, group := range splitCSV(*groups) {
		if err := runTarget(ctx, group, adapter, *workers, *limit); err != nil {
			return fmt.Errorf("gitlab group %s: %w", group, err)
		}
	}
	return nil
}

func runAzure(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("azure", flag.ExitOnError)
	targets := fs.String("targets", "", "comma-separated Org/Project pairs")
	pat := fs.String("az-tk", "", "Azure DevOps PAT")
	clientID := fs.String("az-cid", "", "service-principal client ID")
	clientSecret := fs.String("az-cs", "", "service-principal client secret")
	tenantID := fs.String("az-tid", "", "service-principal tenant ID")
	workers := fs.Int("workers", 0, "worker pool size")
	limit := fs.Int("limit", 0, "max repos to process per project, <=0 means no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *targets == "" {
		return fmt.Errorf("azure: --targets is required")
	}
	if *workers <= 0 {
		*workers = config.New().MayInt("SCANNER_MAX_WORKERS", 5)
	}

	for _, target := range splitCSV(*targets) {
		org, _, ok := strings.Cut(target, "/")
		if !ok {
			return fmt.Errorf("azure: target %q must be Org/Project", target)
		}
		opts := azure.Options{OrgURL: "https://dev.azure.com/" + org, PAT: *pat}
		if *pat == "" && *clientID != "" {
			opts.ServicePrincipal = &azure.ServicePrincipal{ClientID: *clientID, ClientSecret: *clientSecret, TenantID: *tenantID}
		}
		client := azure.NewClient(opts)
		adapter := azure.NewAdapter(client)
		if err := runTarget(ctx, target, adapter, *workers, *limit); err != nil {
			return fmt.Errorf("azure target %s: %w", target, err)
		}
	}
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root := config.New()
	out := loadOutputOptions(root)

	m := merge.New(merge.Options{
		IntermediateDir:  out.dir,
		OutputPath:       out.dir + "/" + out.catalogFile,
		ExemptionLogPath: out.dir + "/" + out.exemptedCSVFile,
		PrivateIDMapPath: out.dir + "/" + out.privateIDCSVFile,
		Agency:           out.agencyName,
	})

	catalog, err := m.Run()
	if err != nil {
		return err
	}
	logger.Get().Info().Int("projects", len(catalog.Projects)).Msg("catalog merged")
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
