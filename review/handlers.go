package review

import (
	"fmt"
	"strconv"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// Builtins returns a fresh instance of every built-in handler.
func Builtins() []Handler {
	return []Handler{
		AddOwnerAlias{},
		IgnoreSubmissionsByOwner{},
		IgnoreOneSubmission{},
		ChangeSubmissionDate{},
		AddLeavePeriod{},
		ReassignSubmission{},
		ForceObligationStatus{},
		SkipOneError{},
		IgnoreAnotherCorrection{},
	}
}

// =============================================================================
// META
// =============================================================================

// IgnoreAnotherCorrection nullifies another review by id. The target must
// be one of the reviews being applied.
// Params: review id.
type IgnoreAnotherCorrection struct{}

func (IgnoreAnotherCorrection) Type() Type   { return TypeIgnoreAnotherCorrection }
func (IgnoreAnotherCorrection) Arity() int   { return 1 }
func (IgnoreAnotherCorrection) Phase() Phase { return PhaseMeta }

func (IgnoreAnotherCorrection) Cancels(t *Target, r Review) (string, error) {
	target := r.Param(0)
	if target == r.ID {
		return "", fmt.Errorf("a review cannot ignore itself: %w", generic.ErrInvalidValue)
	}
	if !t.Known[target] {
		return "", &generic.NotFoundError{Kind: "review", ID: target}
	}
	return target, nil
}

func (h IgnoreAnotherCorrection) Apply(t *Target, r Review) error {
	target, err := h.Cancels(t, r)
	if err != nil {
		return err
	}
	t.Ignored[target] = true
	return nil
}

// =============================================================================
// RECORDS
// =============================================================================

// AddOwnerAlias gives a participant another owner key.
// Params: participant id, owner key.
type AddOwnerAlias struct{}

func (AddOwnerAlias) Type() Type   { return TypeAddOwnerAlias }
func (AddOwnerAlias) Arity() int   { return 2 }
func (AddOwnerAlias) Phase() Phase { return PhaseRecords }

func (AddOwnerAlias) Apply(t *Target, r Review) error {
	return t.DB.AddOwnerKey(audit.ParticipantID(r.Param(0)), audit.OwnerKey(r.Param(1)))
}

// IgnoreSubmissionsByOwner drops everything received under an owner key.
// Params: owner key.
type IgnoreSubmissionsByOwner struct{}

func (IgnoreSubmissionsByOwner) Type() Type   { return TypeIgnoreSubmissionsBy }
func (IgnoreSubmissionsByOwner) Arity() int   { return 1 }
func (IgnoreSubmissionsByOwner) Phase() Phase { return PhaseRecords }

func (IgnoreSubmissionsByOwner) Apply(t *Target, r Review) error {
	key := r.Param(0)
	if t.DB.RemoveSubmissionsByOwner(audit.OwnerKey(key)) == 0 {
		return &generic.NotFoundError{Kind: "owner key", ID: key}
	}
	return nil
}

// IgnoreOneSubmission drops a single submission.
// Params: submission id.
type IgnoreOneSubmission struct{}

func (IgnoreOneSubmission) Type() Type   { return TypeIgnoreOneSubmission }
func (IgnoreOneSubmission) Arity() int   { return 1 }
func (IgnoreOneSubmission) Phase() Phase { return PhaseRecords }

func (IgnoreOneSubmission) Apply(t *Target, r Review) error {
	return t.DB.RemoveSubmission(audit.SubmissionID(r.Param(0)))
}

// ChangeSubmissionDate overrides a submission's timestamp.
// Params: submission id, RFC3339 timestamp or YYYY-MM-DD.
type ChangeSubmissionDate struct{}

func (ChangeSubmissionDate) Type() Type   { return TypeChangeSubmissionDate }
func (ChangeSubmissionDate) Arity() int   { return 2 }
func (ChangeSubmissionDate) Phase() Phase { return PhaseRecords }

func (ChangeSubmissionDate) Apply(t *Target, r Review) error {
	at, err := generic.ParseTimestamp(r.Param(1))
	if err != nil {
		return &generic.InvalidValueError{Field: "date", Value: r.Param(1), Err: err}
	}
	return t.DB.SetSubmitted(audit.SubmissionID(r.Param(0)), at)
}

// AddLeavePeriod adds leave that the leave file is missing.
// Params: owner key, start, end, optional padding ("week" or days).
type AddLeavePeriod struct{}

func (AddLeavePeriod) Type() Type   { return TypeAddLeavePeriod }
func (AddLeavePeriod) Arity() int   { return 3 }
func (AddLeavePeriod) Phase() Phase { return PhaseRecords }

func (AddLeavePeriod) Apply(t *Target, r Review) error {
	start, err := generic.ParseDate(r.Param(1))
	if err != nil {
		return &generic.InvalidValueError{Field: "start", Value: r.Param(1), Err: err}
	}
	end, err := generic.ParseDate(r.Param(2))
	if err != nil {
		return &generic.InvalidValueError{Field: "end", Value: r.Param(2), Err: err}
	}
	padding, err := generic.ParsePadding(r.Param(3))
	if err != nil {
		return err
	}
	_, err = t.DB.AddVacation(audit.Vacation{
		OwnerKey: audit.OwnerKey(r.Param(0)),
		Start:    start,
		End:      end,
		Padding:  padding,
	})
	return err
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

// ReassignSubmission binds a submission to an obligation of the
// participant that owns it. Rebinding to "unassigned" is allowed.
// Params: submission id, obligation id.
type ReassignSubmission struct{}

func (ReassignSubmission) Type() Type   { return TypeReassignSubmission }
func (ReassignSubmission) Arity() int   { return 2 }
func (ReassignSubmission) Phase() Phase { return PhaseObligations }

func (ReassignSubmission) Apply(t *Target, r Review) error {
	id := audit.SubmissionID(r.Param(0))
	obligation := audit.ObligationID(r.Param(1))
	s, ok := t.DB.Submission(id)
	if !ok {
		return &generic.NotFoundError{Kind: "submission", ID: string(id)}
	}
	if obligation != audit.Unassigned {
		p, ok := t.DB.ParticipantByOwner(s.OwnerKey)
		if !ok {
			return &generic.NotFoundError{Kind: "owner key", ID: string(s.OwnerKey)}
		}
		key := audit.ObligationKey{Participant: p.ID, Obligation: obligation}
		if _, ok := t.DB.Obligation(key); !ok {
			return &generic.NotFoundError{Kind: "obligation", ID: key.String()}
		}
	}
	return t.DB.Rebind(id, obligation)
}

// ForceObligationStatus pins an obligation's status and slips. Accounting
// never overwrites a forced obligation.
// Params: participant id or owner key, obligation id, status, optional slips.
type ForceObligationStatus struct{}

func (ForceObligationStatus) Type() Type   { return TypeForceObligationStatus }
func (ForceObligationStatus) Arity() int   { return 3 }
func (ForceObligationStatus) Phase() Phase { return PhaseObligations }

func (ForceObligationStatus) Apply(t *Target, r Review) error {
	pid := audit.ParticipantID(r.Param(0))
	if _, ok := t.DB.Participant(pid); !ok {
		p, ok := t.DB.ParticipantByOwner(audit.OwnerKey(r.Param(0)))
		if !ok {
			return &generic.NotFoundError{Kind: "participant", ID: r.Param(0)}
		}
		pid = p.ID
	}
	status, err := audit.ParseStatus(r.Param(2))
	if err != nil {
		return err
	}
	slips := 0
	if raw := r.Param(3); raw != "" {
		slips, err = strconv.Atoi(raw)
		if err != nil || slips < 0 {
			return &generic.InvalidValueError{Field: "slips", Value: raw, Err: err}
		}
	}
	return t.DB.Force(audit.ObligationKey{Participant: pid, Obligation: audit.ObligationID(r.Param(1))}, status, slips)
}

// =============================================================================
// POST-RESOLVE
// =============================================================================

// SkipOneError hides a ledger entry. An id that no longer exists is a
// no-op; the underlying data may have been fixed since.
// Params: error id.
type SkipOneError struct{}

func (SkipOneError) Type() Type   { return TypeSkipOneError }
func (SkipOneError) Arity() int   { return 1 }
func (SkipOneError) Phase() Phase { return PhasePostResolve }

func (SkipOneError) Apply(t *Target, r Review) error {
	t.DB.Errors.Skip(r.Param(0))
	return nil
}

// =============================================================================
// UNKNOWN
// =============================================================================

// UnknownHandler stands in for any tag the registry does not know. It
// always fails with an UnknownTypeError.
type UnknownHandler struct {
	Tag Type
}

func (u UnknownHandler) Type() Type { return u.Tag }
func (UnknownHandler) Arity() int   { return 0 }
func (UnknownHandler) Phase() Phase { return PhaseRecords }

func (u UnknownHandler) Apply(_ *Target, r Review) error {
	return &UnknownTypeError{Review: r.ID, Type: u.Tag}
}
