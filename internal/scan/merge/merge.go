// Package merge implements the final phase of a scan, per spec.md 4.12:
// glob every per-target intermediate file, union their records into a
// single catalog, stamp metadataLastUpdated, and back up whatever it
// replaces before writing. Atomic-write-then-rename and the JSON sidecar
// idioms are grounded on internal/adapters/ingest/gharchive/cache.go's
// tmp-file-then-rename pattern.
package merge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/model"
)

var nonAlnumRegex = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// IntermediatePath builds the per-target intermediate file path spec.md
// 4.12 names: intermediate_<platform>_<sanitized-target>.json.
func IntermediatePath(dir, platform, target string) string {
	sanitized := nonAlnumRegex.ReplaceAllString(target, "_")
	return filepath.Join(dir, "intermediate_"+platform+"_"+sanitized+".json")
}

// WriteIntermediate persists one target's collected records so a later
// Run can glob and union them, and so a future scan's cache.Load can
// replay cache hits from it.
func WriteIntermediate(path string, repos []model.Repository) error {
	records := make([]model.IntermediateRecord, len(repos))
	for i, r := range repos {
		records[i] = model.FromRepository(r)
	}
	return writeJSONAtomic(path, records)
}

// Options configures a merge run.
type Options struct {
	IntermediateDir   string // directory holding one JSON file per target
	IntermediateGlob  string // defaults to "intermediate_*.json"
	OutputPath        string // final catalog path, e.g. code.json
	ExemptionLogPath  string
	PrivateIDMapPath  string
	Agency            string
	MeasurementMethod string // defaults to "projects"
}

func (o *Options) setDefaults() {
	if o.IntermediateGlob == "" {
		o.IntermediateGlob = "intermediate_*.json"
	}
	if o.MeasurementMethod == "" {
		o.MeasurementMethod = "projects"
	}
}

// Merger runs the merge phase.
type Merger struct {
	opts Options
	log  logger.Logger
	now  func() time.Time
}

// New builds a Merger.
func New(opts Options) *Merger {
	opts.setDefaults()
	return &Merger{opts: opts, log: *logger.Named("scan.merge"), now: time.Now}
}

// Run globs the intermediate directory, unions every record into a
// catalog, backs up whatever files it replaces, and writes the result.
func (m *Merger) Run() (model.Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(m.opts.IntermediateDir, m.opts.IntermediateGlob))
	if err != nil {
		return model.Catalog{}, perr.Wrapf(err, perr.ErrorCodeUnknown, "glob intermediates")
	}
	sort.Strings(paths)

	var projects []model.Repository
	for _, p := range paths {
		repos, err := loadIntermediate(p)
		if err != nil {
			m.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable intermediate")
			continue
		}
		projects = append(projects, repos...)
	}

	now := m.now().UTC()
	for i := range projects {
		if projects[i].ProcessingError == "" {
			projects[i].StampMetadataUpdated(now)
		}
	}

	catalog := model.Catalog{
		Version:         "2.0",
		Agency:          m.opts.Agency,
		MeasurementType: model.MeasurementType{Method: m.opts.MeasurementMethod},
		Projects:        projects,
	}

	if err := m.backupPriorCatalog(); err != nil {
		return model.Catalog{}, err
	}
	if err := copyIfExists(m.opts.ExemptionLogPath); err != nil {
		return model.Catalog{}, err
	}
	if err := copyIfExists(m.opts.PrivateIDMapPath); err != nil {
		return model.Catalog{}, err
	}

	if err := writeJSONAtomic(m.opts.OutputPath, catalog); err != nil {
		return model.Catalog{}, err
	}

	m.log.Info().Int("projects", len(projects)).Str("output", m.opts.OutputPath).Msg("merged catalog")
	return catalog, nil
}

func loadIntermediate(path string) ([]model.Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "open intermediate")
	}
	defer func() { _ = f.Close() }()

	var records []model.IntermediateRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "decode intermediate")
	}

	repos := make([]model.Repository, len(records))
	for i, rec := range records {
		repos[i] = rec.ToRepository()
	}
	return repos, nil
}

// backupPriorCatalog renames any existing final catalog aside with a
// timestamp suffix, so a failed write never clobbers the last good one.
func (m *Merger) backupPriorCatalog() error {
	if _, err := os.Stat(m.opts.OutputPath); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "stat prior catalog")
	}

	backupPath := m.opts.OutputPath + "." + m.now().UTC().Format("20060102T150405Z") + ".bak"
	if err := os.Rename(m.opts.OutputPath, backupPath); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "backup prior catalog")
	}
	m.log.Info().Str("backup", backupPath).Msg("backed up prior catalog")
	return nil
}

// copyIfExists backs up a sidecar file by copying it, not renaming it,
// since the sidecar keeps accumulating across runs and must stay live.
func copyIfExists(path string) error {
	if path == "" {
		return nil
	}
	src, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "open sidecar for backup")
	}
	defer func() { _ = src.Close() }()

	backupPath := path + "." + time.Now().UTC().Format("20060102T150405Z") + ".bak"
	tmp := backupPath + ".part"
	dst, err := os.Create(tmp)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create sidecar backup")
	}
	if _, err := dst.ReadFrom(src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "copy sidecar backup")
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "close sidecar backup")
	}
	return os.Rename(tmp, backupPath)
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create output directory")
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create catalog temp file")
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeJSON, "encode catalog")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "close catalog temp file")
	}
	return os.Rename(tmp, path)
}
