/*
Package review applies operator-authored corrections to an audit database.

PURPOSE:
  Corrections are data, not code. A Review names a Type from a closed
  vocabulary and carries positional string parameters. The Registry maps
  each Type to a Handler that checks arity and mutates the database.

PHASES:
  Reviews are reapplied from scratch after every Database.Reset, in a
  fixed order:

    1. PhaseMeta:        ignore-another-correction, settled as a whole
    2. PhaseRecords:     aliases, ignores, date changes, extra leave
       (obligations are generated here, after records and before phase 3)
    3. PhaseObligations: reassignments, forced statuses
       (resolution and accounting run here)
    4. PhasePostResolve: skip-one-error

  Meta reviews run first because a later review can be nullified by one;
  reading them after the fact would apply and then have to undo it.

  Meta reviews may cancel each other, so none takes effect until all are
  settled: one stands when every review cancelling it has fallen and falls
  as soon as one cancelling it stands. List order plays no part. Reviews
  left undecided (a cancellation cycle) are reported and do nothing.

FAILURE:
  A review that fails is recorded in the ledger under TagReview and the
  rest keep going. Arity is checked before any mutation.

REGISTRY OWNERSHIP:
  Registries are plain values. DefaultRegistry builds a fresh one with
  every built-in handler; callers may Register more.

SEE ALSO:
  - handlers.go: the built-in vocabulary
  - session/session.go: the loop that drives reapplication
*/
package review

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// =============================================================================
// REVIEW
// =============================================================================

// Type is a review type tag.
type Type string

const (
	TypeAddOwnerAlias           Type = "add-owner-alias"
	TypeIgnoreSubmissionsBy     Type = "ignore-submissions-by-owner"
	TypeIgnoreOneSubmission     Type = "ignore-one-submission"
	TypeChangeSubmissionDate    Type = "change-submission-date"
	TypeAddLeavePeriod          Type = "add-leave-period"
	TypeReassignSubmission      Type = "reassign-submission-to-obligation"
	TypeForceObligationStatus   Type = "force-obligation-status"
	TypeSkipOneError            Type = "skip-one-error"
	TypeIgnoreAnotherCorrection Type = "ignore-another-correction"
)

// Review is one correction.
type Review struct {
	ID      string
	Date    generic.TimePoint
	Comment string
	Type    Type
	Params  []string
}

// Param returns the i-th parameter trimmed, or "" when absent.
func (r Review) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return strings.TrimSpace(r.Params[i])
}

// Phase orders review application.
type Phase int

const (
	PhaseMeta Phase = iota
	PhaseRecords
	PhaseObligations
	PhasePostResolve
)

func (p Phase) String() string {
	switch p {
	case PhaseMeta:
		return "meta"
	case PhaseRecords:
		return "records"
	case PhaseObligations:
		return "obligations"
	case PhasePostResolve:
		return "post-resolve"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ArityError is returned when a review has fewer parameters than its type
// needs. Nothing was mutated.
type ArityError struct {
	Review string
	Type   Type
	Want   int
	Got    int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("review %s (%s): want %d params, got %d", e.Review, e.Type, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error { return generic.ErrTooFewParams }

// UnknownTypeError is returned for a tag with no registered handler.
type UnknownTypeError struct {
	Review string
	Type   Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("review %s: unknown type %q", e.Review, e.Type)
}

func (e *UnknownTypeError) Unwrap() error { return generic.ErrUnknownReviewType }

// =============================================================================
// HANDLER & REGISTRY
// =============================================================================

// Handler applies one review type.
type Handler interface {
	Type() Type
	Arity() int
	Phase() Phase
	Apply(t *Target, r Review) error
}

// Canceller is a meta handler that nullifies another review. Cancels
// returns the id of the review r would nullify without touching t.
type Canceller interface {
	Cancels(t *Target, r Review) (string, error)
}

// Target is what a handler mutates. Ignored collects review ids nullified
// by meta reviews during the current reapplication; Known holds every
// review id in play.
type Target struct {
	DB      *audit.Database
	Ignored map[string]bool
	Known   map[string]bool
}

func NewTarget(db *audit.Database) *Target {
	return &Target{DB: db, Ignored: make(map[string]bool), Known: make(map[string]bool)}
}

type Registry struct {
	handlers map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]Handler)}
}

// DefaultRegistry returns a registry holding every built-in handler.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range Builtins() {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for h.Type().
func (r *Registry) Register(h Handler) {
	r.handlers[h.Type()] = h
}

// Lookup returns the handler for t. Unknown tags get an UnknownHandler, so
// Lookup never returns nil.
func (r *Registry) Lookup(t Type) Handler {
	if h, ok := r.handlers[t]; ok {
		return h
	}
	return UnknownHandler{Tag: t}
}

// Types lists the registered tags, sorted.
func (r *Registry) Types() []Type {
	types := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Known reports whether t has a registered handler.
func (r *Registry) Known(t Type) bool {
	_, ok := r.handlers[t]
	return ok
}

// =============================================================================
// APPLY
// =============================================================================

// Applier runs the reviews of one phase against a target.
type Applier struct {
	registry *Registry
	logger   *slog.Logger
}

func NewApplier(registry *Registry, logger *slog.Logger) *Applier {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{registry: registry, logger: logger.With("component", "review")}
}

func (a *Applier) Registry() *Registry { return a.registry }

// ApplyPhase applies, in list order, every non-ignored review whose handler
// belongs to phase. PhaseMeta settles cancellations first. Unknown types
// fail in PhaseRecords so they are reported exactly once. It returns how
// many reviews applied cleanly.
func (a *Applier) ApplyPhase(t *Target, reviews []Review, phase Phase) int {
	var applied int
	if phase == PhaseMeta {
		applied = a.applyMeta(t, reviews)
	} else {
		for _, r := range reviews {
			h := a.registry.Lookup(r.Type)
			if h.Phase() != phase || t.Ignored[r.ID] {
				continue
			}
			if err := Apply(h, t, r); err != nil {
				a.fail(t, r, err)
				continue
			}
			applied++
		}
	}
	a.logger.Debug("phase applied", "phase", phase.String(), "applied", applied)
	return applied
}

const (
	undecided = iota
	stands
	falls
)

func (a *Applier) applyMeta(t *Target, reviews []Review) int {
	for _, r := range reviews {
		t.Known[r.ID] = true
	}

	var (
		metas, others []Review
		cancels       = make(map[string]string)
		cancelledBy   = make(map[string][]string)
		invalid       = make(map[string]error)
	)
	for _, r := range reviews {
		h := a.registry.Lookup(r.Type)
		if h.Phase() != PhaseMeta {
			continue
		}
		c, ok := h.(Canceller)
		if !ok {
			others = append(others, r)
			continue
		}
		metas = append(metas, r)
		target, err := cancelTarget(h, c, t, r)
		if err != nil {
			invalid[r.ID] = err
			continue
		}
		cancels[r.ID] = target
		cancelledBy[target] = append(cancelledBy[target], r.ID)
	}

	// Label until nothing changes. Only valid cancellers take part.
	status := make(map[string]int, len(cancels))
	for changed := true; changed; {
		changed = false
		for _, r := range metas {
			if _, ok := cancels[r.ID]; !ok || status[r.ID] != undecided {
				continue
			}
			if v := verdict(cancelledBy[r.ID], status); v != undecided {
				status[r.ID] = v
				changed = true
			}
		}
	}

	applied := 0
	for _, r := range metas {
		if status[r.ID] == stands {
			t.Ignored[cancels[r.ID]] = true
			applied++
		}
	}
	for _, r := range metas {
		if t.Ignored[r.ID] {
			continue
		}
		if err, bad := invalid[r.ID]; bad {
			a.fail(t, r, err)
		} else if status[r.ID] == undecided {
			a.fail(t, r, fmt.Errorf("review %s (%s): caught in a cancellation cycle: %w", r.ID, r.Type, generic.ErrInvalidValue))
		}
	}

	for _, r := range others {
		if t.Ignored[r.ID] {
			continue
		}
		if err := Apply(a.registry.Lookup(r.Type), t, r); err != nil {
			a.fail(t, r, err)
			continue
		}
		applied++
	}
	return applied
}

// verdict labels a canceller from the labels of the reviews cancelling it.
func verdict(by []string, status map[string]int) int {
	v := stands
	for _, id := range by {
		switch status[id] {
		case stands:
			return falls
		case undecided:
			v = undecided
		}
	}
	return v
}

func cancelTarget(h Handler, c Canceller, t *Target, r Review) (string, error) {
	if got := len(r.Params); got < h.Arity() {
		return "", &ArityError{Review: r.ID, Type: r.Type, Want: h.Arity(), Got: got}
	}
	target, err := c.Cancels(t, r)
	if err != nil {
		return "", fmt.Errorf("review %s (%s): %w", r.ID, r.Type, err)
	}
	return target, nil
}

func (a *Applier) fail(t *Target, r Review, err error) {
	a.logger.Debug("review failed", "review", r.ID, "type", r.Type, "error", err)
	t.DB.Errors.Record(audit.TagReview, "review:"+r.ID, err.Error(),
		[]string{string(TypeIgnoreAnotherCorrection)},
		"type="+string(r.Type),
		"params="+strings.Join(r.Params, ","),
	)
}

// Apply checks arity and runs one handler.
func Apply(h Handler, t *Target, r Review) error {
	if got := len(r.Params); got < h.Arity() {
		return &ArityError{Review: r.ID, Type: r.Type, Want: h.Arity(), Got: got}
	}
	if err := h.Apply(t, r); err != nil {
		var unknown *UnknownTypeError
		if errors.As(err, &unknown) {
			return err
		}
		return fmt.Errorf("review %s (%s): %w", r.ID, r.Type, err)
	}
	return nil
}

// Validate checks reviews for duplicate ids.
func Validate(reviews []Review) error {
	seen := make(map[string]bool, len(reviews))
	for _, r := range reviews {
		if seen[r.ID] {
			return &generic.DuplicateIDError{Kind: "review", ID: r.ID}
		}
		seen[r.ID] = true
	}
	return nil
}
