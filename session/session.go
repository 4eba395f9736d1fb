/*
Package session drives the correction loop.

PURPOSE:
  One Session owns one audit database and the growing list of reviews.
  Every iteration resets the database to its raw records, reapplies every
  review in phase order, regenerates obligations, resolves, and accounts.
  If open errors remain, an Operator is asked for more reviews.

STATE MACHINE:

    Resolving ──► Clean                       (no open errors)
        │
        ▼
    ErrorsFound ──► AwaitingCorrections ──► Aborted   (operator stops)
                            │
                            ▼
                       Reapplying ──► Resolving ...

  The loop is not required to converge. It ends when the ledger is clean,
  when the operator declines to continue, or when ctx is cancelled between
  iterations.

REAPPLY ORDER:
  Reset → meta → records → obligations generated → obligations phase →
  resolve pipeline → accounting → post-resolve

SEE ALSO:
  - review/registry.go: phases and handlers
  - resolve/pipeline.go, accounting/engine.go
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/accounting"
	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/resolve"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

// State is a correction-loop state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateErrorsFound
	StateAwaitingCorrections
	StateReapplying
	StateClean
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateResolving:           "resolving",
	StateErrorsFound:         "errors-found",
	StateAwaitingCorrections: "awaiting-corrections",
	StateReapplying:          "reapplying",
	StateClean:               "clean",
	StateAborted:             "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the loop has finished.
func (s State) Terminal() bool { return s == StateClean || s == StateAborted }

// Operator supplies corrections for open errors. Returning cont=false stops
// the loop; reviews returned alongside it are still applied once.
type Operator interface {
	Propose(ctx context.Context, open []audit.Error) (reviews []review.Review, cont bool, err error)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, open []audit.Error) ([]review.Review, bool, error)

func (f OperatorFunc) Propose(ctx context.Context, open []audit.Error) ([]review.Review, bool, error) {
	return f(ctx, open)
}

// =============================================================================
// SESSION
// =============================================================================

// Config wires a Session. Zero values fall back to the defaults of each
// component.
type Config struct {
	Registry *review.Registry
	Pipeline *resolve.Pipeline
	Engine   *accounting.Engine
	// Now is the instant "today" is derived from. Zero means time.Now().
	Now    time.Time
	Logger *slog.Logger
}

type Session struct {
	db       *audit.Database
	reviews  []review.Review
	applier  *review.Applier
	pipeline *resolve.Pipeline
	engine   *accounting.Engine
	now      time.Time
	logger   *slog.Logger

	state     State
	history   []State
	result    *resolve.Result
	summaries []accounting.Summary
}

func New(db *audit.Database, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = resolve.DefaultPipeline(logger, accounting.DefaultZone)
	}
	if cfg.Engine == nil {
		cfg.Engine = accounting.NewEngine(accounting.DefaultSlipsPerWeek, accounting.DefaultZone, logger)
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Session{
		db:       db,
		applier:  review.NewApplier(cfg.Registry, logger),
		pipeline: cfg.Pipeline,
		engine:   cfg.Engine,
		now:      now,
		logger:   logger.With("component", "session"),
		state:    StateIdle,
		result:   resolve.NewResult(),
	}
}

// Accessors
func (s *Session) DB() *audit.Database             { return s.db }
func (s *Session) State() State                    { return s.state }
func (s *Session) History() []State                { return append([]State(nil), s.history...) }
func (s *Session) Result() *resolve.Result         { return s.result }
func (s *Session) Summaries() []accounting.Summary { return s.summaries }
func (s *Session) Reviews() []review.Review        { return append([]review.Review(nil), s.reviews...) }
func (s *Session) Registry() *review.Registry      { return s.applier.Registry() }
func (s *Session) Open() []audit.Error             { return s.db.Errors.Open() }

// AddReviews appends reviews. A review whose id is already present is
// rejected; the others are still added. The returned error joins every
// rejection.
func (s *Session) AddReviews(reviews ...review.Review) error {
	seen := make(map[string]bool, len(s.reviews))
	for _, r := range s.reviews {
		seen[r.ID] = true
	}
	var errs []error
	for _, r := range reviews {
		if seen[r.ID] {
			errs = append(errs, &generic.DuplicateIDError{Kind: "review", ID: r.ID})
			continue
		}
		seen[r.ID] = true
		s.reviews = append(s.reviews, r)
	}
	return errors.Join(errs...)
}

// Reapply rebuilds all derived state from the raw records and the current
// reviews. Only a schedule overflow is returned; everything else lands in
// the ledger.
func (s *Session) Reapply() error {
	s.db.Reset()
	target := review.NewTarget(s.db)

	s.applier.ApplyPhase(target, s.reviews, review.PhaseMeta)
	s.applier.ApplyPhase(target, s.reviews, review.PhaseRecords)
	if err := s.db.GenerateObligations(); err != nil {
		return fmt.Errorf("generate obligations: %w", err)
	}
	s.applier.ApplyPhase(target, s.reviews, review.PhaseObligations)

	s.result = s.pipeline.Run(s.db)
	s.summaries = s.engine.Account(s.db, s.result, s.now)

	s.applier.ApplyPhase(target, s.reviews, review.PhasePostResolve)
	return nil
}

// Run drives the loop until it reaches a terminal state. The returned state
// is also available from State().
func (s *Session) Run(ctx context.Context, op Operator) (State, error) {
	s.transition(StateResolving)
	for {
		if err := ctx.Err(); err != nil {
			s.transition(StateAborted)
			return s.state, err
		}
		if err := s.Reapply(); err != nil {
			s.transition(StateAborted)
			return s.state, err
		}

		open := s.db.Errors.Open()
		if len(open) == 0 {
			s.transition(StateClean)
			return s.state, nil
		}
		s.transition(StateErrorsFound)
		if op == nil {
			s.transition(StateAborted)
			return s.state, nil
		}

		s.transition(StateAwaitingCorrections)
		proposed, cont, err := op.Propose(ctx, open)
		if err != nil {
			s.transition(StateAborted)
			return s.state, fmt.Errorf("operator: %w", err)
		}
		if err := s.AddReviews(proposed...); err != nil {
			s.logger.Warn("reviews rejected", "error", err)
		}

		if !cont {
			if len(proposed) > 0 {
				if err := s.Reapply(); err != nil {
					s.transition(StateAborted)
					return s.state, err
				}
				if len(s.db.Errors.Open()) == 0 {
					s.transition(StateClean)
					return s.state, nil
				}
			}
			s.transition(StateAborted)
			return s.state, nil
		}

		s.transition(StateReapplying)
		s.transition(StateResolving)
	}
}

func (s *Session) transition(to State) {
	s.logger.Info("transition", "from", s.state.String(), "to", to.String(), "reviews", len(s.reviews), "open_errors", len(s.db.Errors.Open()))
	s.state = to
	s.history = append(s.history, to)
}
