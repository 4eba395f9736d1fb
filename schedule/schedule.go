/*
Package schedule turns a participant's dates and leave into weekly due dates.

PURPOSE:
  A participant owes one obligation per effective week between their start
  and end dates. Each obligation is due on a Sunday. When a Sunday falls
  inside a week lost to leave, the obligation moves past the leave and
  every later obligation moves with it.

KEY CONCEPTS:
  Schedule:  the immutable week frame derived from start/end/threshold
  Validator: shifts a candidate date out of leave, never backwards
  GenerateWeekly: the Sunday-to-Sunday stream with a hard cap

EXAMPLE:
  s, _ := schedule.Generate(start, end, generic.DefaultWeekThreshold)
  weeks := generic.ToEffectiveWeeks(leave, generic.DefaultWeekThreshold)
  dues, err := schedule.Dues(s, weeks)

SEE ALSO:
  - generic/period.go: MergeOverlapping, ToEffectiveWeeks
  - audit/obligations.go: turns dues into obligations
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// MaxGenerated caps GenerateWeekly. Hitting it means the input is
// pathological, not that the schedule is long.
const MaxGenerated = 100

// =============================================================================
// SCHEDULE
// =============================================================================

// Schedule is the week frame for one participant. It does not know about
// leave; leave only moves individual due dates.
type Schedule struct {
	Start       generic.TimePoint
	End         generic.TimePoint
	FirstSunday generic.TimePoint
	LastSunday  generic.TimePoint
	WeekCount   int
	Threshold   int
}

// Generate derives the schedule for a participant active from start to end.
//
// The first Sunday closes the first week in which the participant is
// present for more than threshold days; the last Sunday closes the last
// such week. WeekCount is the number of Sundays in between, inclusive.
func Generate(start, end generic.TimePoint, threshold int) (Schedule, error) {
	if end.Before(start) {
		return Schedule{}, fmt.Errorf("schedule %s..%s: %w", start, end, generic.ErrInvalidPeriod)
	}
	if threshold < 0 || threshold > 6 {
		return Schedule{}, &generic.InvalidValueError{Field: "threshold", Value: fmt.Sprint(threshold)}
	}

	first := start.NextEffectiveSunday(threshold)
	last := end.AddDays(-threshold).NextSunday()

	weeks := 0
	if !last.Before(first) {
		weeks = generic.DaysBetween(first, last)/7 + 1
	}

	return Schedule{
		Start:       start.Date(),
		End:         end.Date(),
		FirstSunday: first,
		LastSunday:  last,
		WeekCount:   weeks,
		Threshold:   threshold,
	}, nil
}

// Sundays returns the unshifted Sunday of every week in the schedule.
func (s Schedule) Sundays() []generic.TimePoint {
	sundays := make([]generic.TimePoint, 0, s.WeekCount)
	for i := 0; i < s.WeekCount; i++ {
		sundays = append(sundays, s.FirstSunday.AddDays(7*i))
	}
	return sundays
}

// =============================================================================
// VALIDATOR - Moves dates out of ineffective weeks
// =============================================================================

// Validator maps a candidate due date to the date it should really be due.
// Implementations must be monotonic (never earlier than the input) and
// idempotent.
type Validator func(generic.TimePoint) generic.TimePoint

// Identity leaves every date where it is.
func Identity(tp generic.TimePoint) generic.TimePoint { return tp }

// NewVacationValidator returns a validator over the given ineffective
// intervals. A date inside an interval moves to the day after its end; the
// new date is checked again, so back-to-back intervals are skipped in one
// call.
func NewVacationValidator(intervals []generic.Period) Validator {
	merged := generic.MergeOverlapping(intervals)
	return func(tp generic.TimePoint) generic.TimePoint {
		date := tp.Date()
		for moved := true; moved; {
			moved = false
			for _, iv := range merged {
				if iv.Contains(date) {
					date = iv.End.AddDays(1)
					moved = true
				}
			}
		}
		return date
	}
}

// =============================================================================
// WEEKLY STREAM
// =============================================================================

// OverflowError reports a due-date stream that ran past MaxGenerated.
type OverflowError struct {
	Start generic.TimePoint
	End   generic.TimePoint
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("weekly schedule %s..%s exceeds %d obligations", e.Start, e.End, e.Limit)
}

func (e *OverflowError) Unwrap() error { return generic.ErrScheduleOverflow }

// GenerateWeekly emits one due date per Sunday in [start, end]. The first
// candidate is start; every later candidate is one week after the previous
// emitted date, so a shift carries forward into the rest of the stream.
func GenerateWeekly(start, end generic.TimePoint, validate Validator) ([]generic.TimePoint, error) {
	if validate == nil {
		validate = Identity
	}
	if end.Before(start) {
		return nil, nil
	}

	count := generic.DaysBetween(start, end)/7 + 1
	if count > MaxGenerated {
		return nil, &OverflowError{Start: start, End: end, Limit: MaxGenerated}
	}

	dues := make([]generic.TimePoint, 0, count)
	candidate := start.Date()
	for i := 0; i < count; i++ {
		due := validate(candidate)
		if due.Before(candidate) {
			return nil, errors.New("schedule: validator moved a date backwards")
		}
		dues = append(dues, due)
		candidate = due.AddDays(7)
	}
	return dues, nil
}

// Dues generates the weekly due dates for a schedule with the given
// ineffective-week intervals.
func Dues(s Schedule, ineffective []generic.Period) ([]generic.TimePoint, error) {
	if s.WeekCount == 0 {
		return nil, nil
	}
	return GenerateWeekly(s.FirstSunday, s.LastSunday, NewVacationValidator(ineffective))
}
