/*
Package resolve binds loosely-keyed submissions to scheduled obligations.

PURPOSE:
  Submissions arrive under owner keys and with whatever obligation their
  header suggested, if any. The pipeline runs an ordered list of passes
  over the database to bind what it can, pick the authoritative
  submission per obligation, and record everything it cannot resolve.

PASSES (default order):
  1. ContentIDPass:     re-ingested copies follow the original's binding
  2. HeaderLiteralPass: a header equal to the participant's name is the intro
  3. NearestPass:       pick the base submission per obligation
  4. EditPass:          classify edits between base and latest (informational)
  5. ErrorPass:         record unresolved bindings in the error ledger

CONTRACT:
  Passes only change submission bindings (through Database.Rebind) and
  append to the error ledger. Obligations are read, never written; the
  accounting engine consumes the Result instead. No pass aborts the run.

PIPELINE OWNERSHIP:
  A Pipeline is a value built by the caller. There is no package-level pass
  registry; tests and the correction loop build their own.

SEE ALSO:
  - accounting/engine.go: consumes Result
  - audit/ledger.go: where errors go
*/
package resolve

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// =============================================================================
// RESULT
// =============================================================================

// Edit classifies how the latest submission for an obligation differs from
// the base one.
type Edit int

const (
	EditNone  Edit = iota // latest is the base
	EditMinor             // re-submitted with the same content
	EditMajor             // content changed
)

func (e Edit) String() string {
	switch e {
	case EditNone:
		return "unchanged"
	case EditMinor:
		return "minor"
	case EditMajor:
		return "major"
	default:
		return fmt.Sprintf("edit(%d)", int(e))
	}
}

// Result is what the pipeline learned about each obligation.
type Result struct {
	Bases map[audit.ObligationKey]audit.SubmissionID
	Edits map[audit.ObligationKey]Edit
}

func NewResult() *Result {
	return &Result{
		Bases: make(map[audit.ObligationKey]audit.SubmissionID),
		Edits: make(map[audit.ObligationKey]Edit),
	}
}

// Base returns the base submission chosen for an obligation.
func (r *Result) Base(key audit.ObligationKey) (audit.SubmissionID, bool) {
	id, ok := r.Bases[key]
	return id, ok
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pass is one step of the pipeline.
type Pass interface {
	Name() string
	Run(db *audit.Database, res *Result)
}

type Pipeline struct {
	passes []Pass
	logger *slog.Logger
}

// NewPipeline runs passes in the given order.
func NewPipeline(logger *slog.Logger, passes ...Pass) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{passes: passes, logger: logger.With("component", "resolve")}
}

// DefaultPipeline is the standard five-pass pipeline. Dates are judged in
// zone, normally generic.LatestZone.
func DefaultPipeline(logger *slog.Logger, zone *time.Location) *Pipeline {
	p := NewPipeline(logger)
	p.passes = []Pass{
		ContentIDPass{Logger: p.logger},
		HeaderLiteralPass{Obligation: audit.IntroObligation, Logger: p.logger},
		NearestPass{Zone: zone},
		EditPass{},
		ErrorPass{},
	}
	return p
}

// Passes returns the pass names in order.
func (p *Pipeline) Passes() []string {
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
	}
	return names
}

// Run executes every pass in order and returns what they resolved.
func (p *Pipeline) Run(db *audit.Database) *Result {
	res := NewResult()
	for _, pass := range p.passes {
		before := db.Errors.Len()
		pass.Run(db, res)
		p.logger.Debug("pass complete",
			"pass", pass.Name(),
			"bases", len(res.Bases),
			"new_errors", db.Errors.Len()-before,
		)
	}
	return res
}

// =============================================================================
// HELPERS
// =============================================================================

// knownObligation reports whether the submission's owner maps to a
// participant that has the obligation it is bound to.
func knownObligation(db *audit.Database, s *audit.Submission) (audit.ObligationKey, bool) {
	if !s.IsBound() {
		return audit.ObligationKey{}, false
	}
	p, ok := db.ParticipantByOwner(s.OwnerKey)
	if !ok {
		return audit.ObligationKey{}, false
	}
	key := audit.ObligationKey{Participant: p.ID, Obligation: s.Obligation}
	_, ok = db.Obligation(key)
	return key, ok
}

func dayOf(t time.Time, zone *time.Location) generic.TimePoint {
	return generic.InZone(t, zone)
}
