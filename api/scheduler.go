/*
scheduler.go - Periodic re-audit

PURPOSE:
  Submissions keep arriving after a run. The scheduler re-audits on a
  fixed interval so the latest stored run, and everything the API serves,
  follows the input files without a manual trigger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Audits once immediately on Start
  - A failed audit is logged and retried on the next tick; the previous
    run stays the latest

USAGE:
  scheduler := NewAuditScheduler(runner, 15*time.Minute, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerAudit (manual re-audit)
  - runner/runner.go: the audit itself
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditScheduler re-audits on a fixed interval.
type AuditScheduler struct {
	Auditor       Auditor
	CheckInterval time.Duration
	Enabled       bool

	logger *slog.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runs     int
	failures int
}

// NewAuditScheduler creates a scheduler. A zero interval disables it.
func NewAuditScheduler(auditor Auditor, interval time.Duration, logger *slog.Logger) *AuditScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditScheduler{
		Auditor:       auditor,
		CheckInterval: interval,
		Enabled:       interval > 0,
		logger:        logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.Auditor == nil {
		as.logger.Info("disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	as.cancel = cancel
	as.stop = make(chan struct{})
	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run(ctx, as.ticker.C, as.stop)

	as.logger.Info("started", "interval", as.CheckInterval)
}

// Stop stops the scheduler and waits for an audit in flight.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	if as.ticker == nil {
		as.mu.Unlock()
		return
	}
	as.ticker.Stop()
	as.cancel()
	close(as.stop)
	as.ticker = nil
	as.mu.Unlock()

	// audit takes mu to record stats, so wait outside it.
	as.wg.Wait()
	as.logger.Info("stopped")
}

// Stats reports how many audits ran and how many failed.
func (as *AuditScheduler) Stats() (runs, failures int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.runs, as.failures
}

func (as *AuditScheduler) run(ctx context.Context, tick <-chan time.Time, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.audit(ctx)

	for {
		select {
		case <-tick:
			as.audit(ctx)
		case <-stop:
			return
		}
	}
}

func (as *AuditScheduler) audit(ctx context.Context) {
	start := time.Now()
	run, err := as.Auditor.AuditRun(ctx)

	as.mu.Lock()
	as.runs++
	if err != nil {
		as.failures++
	}
	as.mu.Unlock()

	if err != nil {
		as.logger.Error("audit failed", "error", err)
		return
	}
	as.logger.Info("audit complete",
		"run", run.ID,
		"state", run.State,
		"open_errors", run.OpenErrors,
		"duration", time.Since(start))
}
