/*
Package runner wires one complete audit: load inputs, run the correction
loop, write reports, persist the run.

STARTUP SEQUENCE:
  1. Build an audit.Database from config.Schedule
  2. Load roster, leave, submissions and reviews through factory.Loader
  3. Run a session.Session with the given Operator (nil means batch mode)
  4. Render report files into config.Outputs.Dir
  5. Save the run to the SQLite store when one is attached

  Batch mode never blocks: open errors end the run as aborted and stay in
  errors.csv for the next round of reviews.

SEE ALSO:
  - cmd/auditor/main.go: the CLI
  - api/scheduler.go: periodic re-audits
*/
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/andykuo1/progress-auditor-sub001/accounting"
	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/config"
	"github.com/andykuo1/progress-auditor-sub001/factory"
	"github.com/andykuo1/progress-auditor-sub001/report"
	"github.com/andykuo1/progress-auditor-sub001/resolve"
	"github.com/andykuo1/progress-auditor-sub001/review"
	"github.com/andykuo1/progress-auditor-sub001/session"
	"github.com/andykuo1/progress-auditor-sub001/store/sqlite"
)

// Outcome is everything one audit produced.
type Outcome struct {
	State    session.State
	Session  *session.Session
	Document *report.Document
	Problems []error
	// Run is nil when no store is attached.
	Run *sqlite.RunRecord
}

type Runner struct {
	Config *config.Config
	Store  *sqlite.Store
	// Registry is shared by every run. Nil means review.DefaultRegistry().
	Registry *review.Registry
	// WriteOutputs controls whether report files are written.
	WriteOutputs bool
	logger       *slog.Logger

	// one audit at a time: runs share output files and the registry
	mu sync.Mutex
}

func New(cfg *config.Config, store *sqlite.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Config:       cfg,
		Store:        store,
		Registry:     review.DefaultRegistry(),
		WriteOutputs: true,
		logger:       logger,
	}
}

// Audit runs one audit end to end.
func (r *Runner) Audit(ctx context.Context, op session.Operator) (*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.Config
	f, err := factory.New(cfg.Schedule.WeekPattern)
	if err != nil {
		return nil, err
	}

	db := audit.NewDatabase(audit.Options{Threshold: cfg.Schedule.Threshold, Intro: cfg.Schedule.Intro})
	loaded, err := factory.NewLoader(f, r.logger).Load(db, cfg.FactoryInputs())
	if err != nil {
		return nil, fmt.Errorf("load inputs: %w", err)
	}

	zone := cfg.Zone()
	now := cfg.Now()
	s := session.New(db, session.Config{
		Registry: r.Registry,
		Pipeline: resolve.DefaultPipeline(r.logger, zone),
		Engine:   accounting.NewEngine(cfg.Schedule.SlipsPerWeek, zone, r.logger),
		Now:      now,
		Logger:   r.logger,
	})
	if err := s.AddReviews(loaded.Reviews...); err != nil {
		// duplicates are dropped; the rest still apply
		r.logger.Warn("rejected reviews", "error", err)
	}

	state, err := s.Run(ctx, op)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		State:    state,
		Session:  s,
		Problems: loaded.Problems,
		Document: report.Build(db, s.Summaries(), s.Reviews(), state.String(), now),
	}

	if r.WriteOutputs && cfg.Outputs.Dir != "" {
		if err := report.WriteAll(cfg.Outputs.Dir, db, out.Document, s.Summaries(), s.Reviews()); err != nil {
			return nil, err
		}
		r.logger.Info("reports written", "dir", cfg.Outputs.Dir)
	}

	if r.Store != nil {
		snap, err := db.Snapshot().Canonical()
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		run := sqlite.NewRunRecord(out.Document, snap)
		if err := r.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
		out.Run = &run
		r.logger.Info("run saved", "run", run.ID, "state", run.State, "open_errors", run.OpenErrors)
	}
	return out, nil
}

// AuditRun is Audit in batch mode, returning only the stored run. It is
// what the HTTP scheduler calls.
func (r *Runner) AuditRun(ctx context.Context) (*sqlite.RunRecord, error) {
	out, err := r.Audit(ctx, nil)
	if err != nil {
		return nil, err
	}
	if out.Run == nil {
		return nil, fmt.Errorf("no store attached")
	}
	return out.Run, nil
}

// OpenStore opens the store named by cfg.Outputs.DB, creating its
// directory. An empty path means no store.
func OpenStore(cfg *config.Config) (*sqlite.Store, error) {
	if cfg.Outputs.DB == "" {
		return nil, nil
	}
	if cfg.Outputs.DB != ":memory:" {
		if dir := filepath.Dir(cfg.Outputs.DB); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	return sqlite.New(cfg.Outputs.DB)
}
