package sidecar

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	perr "codecat/internal/platform/errors"
	"codecat/internal/platform/logger"
	"codecat/internal/scan/model"
)

var exemptionLogHeader = []string{"privateID", "repositoryName", "reason", "usageType", "exemptionText", "timestamp"}

// ExemptionLog is an append-only, dedup-by-repo-name log of every
// exemption applied during a scan, persisted across runs.
type ExemptionLog struct {
	path     string
	mu       sync.Mutex
	seen     map[string]bool
	appended []model.ExemptionRow
	newCount int
	log      logger.Logger
}

// LoadExemptionLog loads prior entries (by repository name only, to detect
// duplicates), creating the file with headers if absent.
func LoadExemptionLog(path string) (*ExemptionLog, error) {
	l := &ExemptionLog{
		path: path,
		seen: map[string]bool{},
		log:  *logger.Named("sidecar.exemptionlog"),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := l.writeHeaderOnly(); err != nil {
			return nil, err
		}
		return l, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "open exemption log")
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "read exemption log")
	}
	if len(rows) == 0 {
		return l, l.writeHeaderOnly()
	}
	for _, row := range rows[1:] {
		if len(row) != len(exemptionLogHeader) {
			continue
		}
		if repoName := row[1]; repoName != "" {
			l.seen[repoName] = true
		}
	}
	l.log.Info().Int("count", len(l.seen)).Msg("loaded exemption log entries")
	return l, nil
}

func (l *ExemptionLog) writeHeaderOnly() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create exemption log directory")
	}
	f, err := os.Create(l.path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "create exemption log file")
	}
	defer func() { _ = f.Close() }()
	w := csv.NewWriter(f)
	if err := w.Write(exemptionLogHeader); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "write exemption log header")
	}
	w.Flush()
	return w.Error()
}

// LogExemption appends an exemption entry if repoName hasn't already been
// logged, returning whether it was newly logged.
func (l *ExemptionLog) LogExemption(privateID, repoName, reason string, usageType model.UsageType, exemptionText string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[repoName] {
		return false
	}

	row := model.ExemptionRow{
		PrivateID:      privateID,
		RepositoryName: repoName,
		Reason:         reason,
		UsageType:      usageType,
		ExemptionText:  exemptionText,
		Timestamp:      time.Now().UTC(),
	}
	l.seen[repoName] = true
	l.appended = append(l.appended, row)
	l.newCount++
	return true
}

// NewCount returns the number of exemptions logged during this run.
func (l *ExemptionLog) NewCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newCount
}

// Flush appends all newly-logged rows from this run to the CSV file.
func (l *ExemptionLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.appended) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "open exemption log for append")
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	for _, row := range l.appended {
		record := []string{
			row.PrivateID,
			row.RepositoryName,
			row.Reason,
			string(row.UsageType),
			row.ExemptionText,
			row.Timestamp.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "write exemption log row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	l.appended = nil
	return nil
}
