/*
Package accounting computes slip days from resolved bindings.

PURPOSE:
  Every obligation gets a status and a slip count. Every participant gets
  an aggregate: slips used, slips remaining, the allowance, a mean slip
  rate, and status counts.

RULES:
  1. FORCED FIRST: an obligation whose state was set by a review is left
     exactly as the review set it
  2. NOT YET DUE: if today is before the due date the obligation is
     pending with 0 slips, bound or not
  3. SATISFIED: a bound base submission counts its lateness in whole days
  4. MISSING: no base submission counts lateness up to today

  Lateness is measured on calendar dates read in Zone, normally UTC-12, so
  anything submitted on the due date anywhere on Earth is on time. Slips
  are never negative.

SEE ALSO:
  - resolve/pipeline.go: produces the Result consumed here
*/
package accounting

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/resolve"
)

// DefaultSlipsPerWeek is the slip allowance granted per scheduled week.
const DefaultSlipsPerWeek = 3

// DefaultZone is the zone due dates are judged in.
var DefaultZone = generic.LatestZone

// Summary is one participant's aggregate.
type Summary struct {
	Participant audit.ParticipantID
	Name        string
	WeekCount   int

	Used      generic.Amount
	Remaining generic.Amount
	Max       generic.Amount
	// Mean is slips used per obligation that is no longer pending.
	Mean decimal.Decimal

	Satisfied int
	Missing   int
	Pending   int
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	SlipsPerWeek int
	Zone         *time.Location
	logger       *slog.Logger
}

func NewEngine(slipsPerWeek int, zone *time.Location, logger *slog.Logger) *Engine {
	if slipsPerWeek <= 0 {
		slipsPerWeek = DefaultSlipsPerWeek
	}
	if zone == nil {
		zone = DefaultZone
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{SlipsPerWeek: slipsPerWeek, Zone: zone, logger: logger.With("component", "accounting")}
}

// Account writes the state of every obligation in db and returns one
// summary per participant in roster order.
func (e *Engine) Account(db *audit.Database, res *resolve.Result, now time.Time) []Summary {
	today := generic.InZone(now, e.Zone)
	summaries := make([]Summary, 0, len(db.Participants()))

	for _, p := range db.Participants() {
		for _, o := range db.Obligations(p.ID) {
			if o.State.Forced {
				continue
			}
			var base *audit.Submission
			if id, ok := res.Base(o.Key()); ok {
				base, _ = db.Submission(id)
			}
			o.State = e.Evaluate(o.Due, base, today)
		}
		summaries = append(summaries, e.Summarize(p, db.Obligations(p.ID)))
	}

	e.logger.Debug("accounted", "participants", len(summaries), "today", today.String())
	return summaries
}

// Evaluate computes the state of a single obligation.
func (e *Engine) Evaluate(due generic.TimePoint, base *audit.Submission, today generic.TimePoint) audit.ObligationState {
	if today.Before(due) {
		state := audit.ObligationState{Status: audit.StatusPending}
		if base != nil {
			state.Submission = base.ID
		}
		return state
	}
	if base != nil {
		return audit.ObligationState{
			Submission: base.ID,
			Status:     audit.StatusSatisfied,
			Slips:      Slips(due, generic.InZone(base.Submitted, e.Zone)),
		}
	}
	return audit.ObligationState{
		Status: audit.StatusMissing,
		Slips:  Slips(due, today),
	}
}

// Slips is the number of whole days from due to at, floored at zero.
func Slips(due, at generic.TimePoint) int {
	if d := generic.DaysBetween(due, at); d > 0 {
		return d
	}
	return 0
}

// Summarize aggregates a participant's obligation states.
func (e *Engine) Summarize(p *audit.Participant, obligations []*audit.Obligation) Summary {
	s := Summary{
		Participant: p.ID,
		Name:        p.Name,
		WeekCount:   p.Schedule.WeekCount,
		Max:         generic.Days(e.SlipsPerWeek * p.Schedule.WeekCount),
		Used:        generic.Days(0),
	}
	for _, o := range obligations {
		switch o.State.Status {
		case audit.StatusSatisfied:
			s.Satisfied++
		case audit.StatusMissing:
			s.Missing++
		default:
			s.Pending++
		}
		s.Used = s.Used.Add(generic.Days(o.State.Slips))
	}
	s.Remaining = s.Max.Sub(s.Used)
	s.Mean = s.Used.Ratio(generic.Days(s.Satisfied+s.Missing), 2)
	return s
}
