// Package audit holds the in-memory record set the engine reconciles:
// participants, obligations, submissions, leave and the error ledger.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/schedule"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ParticipantID string
type OwnerKey string
type ObligationID string
type SubmissionID string
type VacationID string

// Unassigned is the obligation id of a submission that is not bound to
// anything yet. It keeps grouping by obligation total.
const Unassigned ObligationID = "unassigned"

// IntroObligation is the introductory obligation matched by header literal.
const IntroObligation ObligationID = "intro"

// WeekObligation returns the id of the n-th weekly obligation (1-based).
func WeekObligation(n int) ObligationID {
	return ObligationID(fmt.Sprintf("week[%d]", n))
}

// ObligationKey addresses one obligation of one participant.
type ObligationKey struct {
	Participant ParticipantID
	Obligation  ObligationID
}

func (k ObligationKey) String() string {
	return string(k.Participant) + "/" + string(k.Obligation)
}

// =============================================================================
// PARTICIPANT
// =============================================================================

// Participant is one member of the audited cohort. OwnerKeys lists every
// alias submissions may arrive under; the set only grows during a run.
type Participant struct {
	ID        ParticipantID
	Name      string
	OwnerKeys []OwnerKey
	Schedule  schedule.Schedule
}

// HasOwnerKey reports whether key is one of the participant's aliases.
func (p *Participant) HasOwnerKey(key OwnerKey) bool {
	for _, k := range p.OwnerKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (p Participant) clone() Participant {
	p.OwnerKeys = append([]OwnerKey(nil), p.OwnerKeys...)
	return p
}

// =============================================================================
// OBLIGATION
// =============================================================================

// Status is the resolution state of an obligation.
type Status int

const (
	StatusPending Status = iota
	StatusSatisfied
	StatusMissing
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusSatisfied: "satisfied",
	StatusMissing:   "missing",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus accepts the lower-case status names.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return status, nil
		}
	}
	return StatusPending, &generic.InvalidValueError{Field: "status", Value: s}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ObligationState is the mutable part of an obligation. Forced marks state
// set by a review; accounting never overwrites it.
type ObligationState struct {
	Submission SubmissionID
	Status     Status
	Slips      int
	Forced     bool
}

// Obligation is a scheduled deliverable owned by exactly one participant.
type Obligation struct {
	ID          ObligationID
	Participant ParticipantID
	Due         generic.TimePoint
	State       ObligationState
}

func (o *Obligation) Key() ObligationKey {
	return ObligationKey{Participant: o.Participant, Obligation: o.ID}
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submission is a raw record claiming to fulfil an obligation. OwnerKey is
// as received and may match no participant.
type Submission struct {
	ID         SubmissionID
	OwnerKey   OwnerKey
	Obligation ObligationID
	PostID     string
	Submitted  time.Time
	Header     string
	HeaderHash string
	BodyHash   string
}

// IsBound reports whether the submission claims an obligation.
func (s *Submission) IsBound() bool {
	return s.Obligation != "" && s.Obligation != Unassigned
}

// Fingerprint is the content identity used for edit classification.
func (s *Submission) Fingerprint() string {
	return s.HeaderHash + ":" + s.BodyHash
}

// =============================================================================
// VACATION
// =============================================================================

// Vacation is a leave period for an owner key. Start/End are what the
// participant asked for; the effective dates include padding. Overlaps are
// allowed here and merged by the interval engine.
type Vacation struct {
	ID       VacationID
	OwnerKey OwnerKey
	Start    generic.TimePoint
	End      generic.TimePoint
	Padding  generic.Padding
}

// Effective returns the padded period.
func (v *Vacation) Effective() generic.Period {
	return v.Padding.Apply(generic.Period{Start: v.Start, End: v.End})
}
