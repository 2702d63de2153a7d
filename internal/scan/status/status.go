// Package status exposes an optional read-only HTTP surface over a scan
// run: liveness, a progress snapshot, and a swagger UI skeleton, grounded
// on internal/platform/net/http.Server and internal/modkit/swaggerkit's
// mount pattern, repointed at a single in-process progress source instead
// of modkit's module registry.
package status

import (
	"net/http"
	"sync/atomic"

	"codecat/internal/modkit/swaggerkit"
	"codecat/internal/platform/config"
	phttp "codecat/internal/platform/net/http"
	"codecat/internal/platform/net/middleware"

	"github.com/go-chi/chi/v5"
)

// Snapshot is a point-in-time view of a scan run's progress.
type Snapshot struct {
	Target        string `json:"target"`
	Processed     int64  `json:"processed"`
	NewExemptions int64  `json:"newExemptions"`
	NewPrivateIDs int64  `json:"newPrivateIDs"`
	Done          bool   `json:"done"`
	LastError     string `json:"lastError,omitempty"`
}

// Progress is a concurrency-safe holder for the current Snapshot, updated
// by the orchestrator and read by the status handler.
type Progress struct {
	target        atomic.Value
	processed     atomic.Int64
	newExemptions atomic.Int64
	newPrivateIDs atomic.Int64
	done          atomic.Bool
	lastError     atomic.Value
}

// NewProgress builds an empty Progress tracker.
func NewProgress() *Progress {
	p := &Progress{}
	p.target.Store("")
	p.lastError.Store("")
	return p
}

// SetTarget records which target is currently being scanned.
func (p *Progress) SetTarget(target string) { p.target.Store(target) }

// IncProcessed bumps the processed-repository counter.
func (p *Progress) IncProcessed() { p.processed.Add(1) }

// SetCounts records the side-cars' running new-row counts.
func (p *Progress) SetCounts(newExemptions, newPrivateIDs int) {
	p.newExemptions.Store(int64(newExemptions))
	p.newPrivateIDs.Store(int64(newPrivateIDs))
}

// SetDone marks the run finished, optionally with a terminal error.
func (p *Progress) SetDone(err error) {
	p.done.Store(true)
	if err != nil {
		p.lastError.Store(err.Error())
	}
}

// Snapshot returns the current progress view.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Target:        p.target.Load().(string),
		Processed:     p.processed.Load(),
		NewExemptions: p.newExemptions.Load(),
		NewPrivateIDs: p.newPrivateIDs.Load(),
		Done:          p.done.Load(),
		LastError:     p.lastError.Load().(string),
	}
}

// New builds a status HTTP server bound to cfg's API_PORT, mounting
// /healthz, /status, and a swagger UI skeleton under /api/docs via
// swaggerkit.Mount.
func New(cfg config.Conf, progress *Progress) *phttp.Server {
	srv := phttp.NewServer(cfg, func(m *chi.Mux) {
		m.Use(middleware.RequestID(), middleware.Recover(), middleware.CORS(middleware.CORSOptions{AllowedOrigins: []string{"*"}}))

		r := phttp.AdaptChi(m)
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			phttp.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			phttp.JSON(w, http.StatusOK, progress.Snapshot())
		})
		swaggerkit.Mount(r, true)
	})
	return srv
}
