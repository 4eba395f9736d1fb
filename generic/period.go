package generic

import (
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// PERIOD - Inclusive date interval (leave, ineffective weeks)
// =============================================================================

// Period is an inclusive [Start, End] range of calendar days.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start.Date(), End: end.Date()}, nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Length is the number of days in the period, both ends included.
func (p Period) Length() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// INTERVAL ENGINE
// =============================================================================

// SortPeriods orders a copy of the periods by start, then end.
func SortPeriods(periods []Period) []Period {
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := CompareDay(sorted[i].Start, sorted[j].Start); c != 0 {
			return c < 0
		}
		return sorted[i].End.Before(sorted[j].End)
	})
	return sorted
}

// MergeOverlapping sorts by start and folds every period whose start is on
// or before the previous end into it. The result is ordered and pairwise
// disjoint; the input is left untouched.
func MergeOverlapping(periods []Period) []Period {
	if len(periods) == 0 {
		return nil
	}
	sorted := SortPeriods(periods)

	merged := []Period{{Start: sorted[0].Start.Date(), End: sorted[0].End.Date()}}
	for _, p := range sorted[1:] {
		last := &merged[len(merged)-1]
		if p.Start.BeforeOrEqual(last.End) {
			last.End = MaxTime(last.End, p.End.Date())
			continue
		}
		merged = append(merged, Period{Start: p.Start.Date(), End: p.End.Date()})
	}
	return merged
}

// DefaultWeekThreshold is the number of days a week may lose (or a
// participant may miss) before the week stops counting.
const DefaultWeekThreshold = 3

// ToEffectiveWeeks converts leave periods into whole Sunday-to-Saturday
// weeks that are lost to leave.
//
// A week is lost once the leave covers more than threshold of its days.
// Leave no longer than threshold days never loses a week. The first and
// last partial weeks of a longer leave are kept or dropped by the same
// rule, and the surviving weeks are re-merged.
func ToEffectiveWeeks(periods []Period, threshold int) []Period {
	var weeks []Period
	for _, p := range MergeOverlapping(periods) {
		if p.Length() <= threshold {
			continue
		}

		start := p.Start.PastSunday()
		if int(p.Start.Weekday()) > threshold {
			start = p.Start.NextSunday()
		}

		end := p.End.NextSunday().AddDays(-1)
		if int(p.End.Weekday()) < threshold {
			end = p.End.PastSunday().AddDays(-1)
		}

		if end.Before(start) {
			continue
		}
		weeks = append(weeks, Period{Start: start, End: end})
	}
	return MergeOverlapping(weeks)
}

// =============================================================================
// PADDING - How a leave's user-facing dates widen into effective dates
// =============================================================================

// Padding is either the whole-week rule or a fixed number of trailing days.
type Padding struct {
	Week bool
	Days int
}

// PaddingWeek snaps a leave outward to its surrounding Sundays.
var PaddingWeek = Padding{Week: true}

// ParsePadding accepts "week" or a non-negative day count. Empty means no
// padding.
func ParsePadding(s string) (Padding, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Padding{}, nil
	case strings.EqualFold(s, "week"):
		return PaddingWeek, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Padding{}, &InvalidValueError{Field: "padding", Value: s}
	}
	return Padding{Days: n}, nil
}

// Apply returns the effective period for a user-facing leave.
func (pd Padding) Apply(p Period) Period {
	if pd.Week {
		return Period{Start: p.Start.PastSunday(), End: p.End.NextSunday()}
	}
	return Period{Start: p.Start.Date(), End: p.End.AddDays(pd.Days)}
}

func (pd Padding) String() string {
	if pd.Week {
		return "week"
	}
	return strconv.Itoa(pd.Days)
}
