package generic

import (
	"time"
)

// =============================================================================
// TIME POINT - Day-granular calendar date
// =============================================================================

// TimePoint is a calendar date. All comparisons and arithmetic are
// day-granular: the time of day is ignored and the date is read in the
// location the underlying time.Time carries.
type TimePoint struct {
	Time time.Time
}

// DateLayout is the canonical text form of a TimePoint.
const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime keeps the calendar date of t as seen in t's own location.
func FromTime(t time.Time) TimePoint {
	return TimePoint{Time: t}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return TimePoint{Time: t}, nil
}

func Today() TimePoint {
	now := time.Now()
	return NewTimePoint(now.Year(), now.Month(), now.Day())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return CompareDay(tp, other) < 0 }
func (tp TimePoint) Equal(other TimePoint) bool         { return CompareDay(tp, other) == 0 }
func (tp TimePoint) After(other TimePoint) bool         { return CompareDay(tp, other) > 0 }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return CompareDay(tp, other) <= 0 }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return CompareDay(tp, other) >= 0 }

// normalize maps the date onto UTC midnight so that subtraction never sees
// a DST or zone offset.
func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Date returns the normalized UTC-midnight form of the date.
func (tp TimePoint) Date() TimePoint { return TimePoint{Time: tp.normalize()} }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsSunday() bool        { return tp.Weekday() == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.normalize().Format(DateLayout)
}

// =============================================================================
// SUNDAY RULES - Weeks run Sunday to Saturday; obligations fall on Sundays
// =============================================================================

// PastSunday returns the Sunday on or before the date.
func (tp TimePoint) PastSunday() TimePoint {
	return tp.AddDays(-int(tp.Weekday()))
}

// NextSunday returns the first Sunday strictly after the date.
func (tp TimePoint) NextSunday() TimePoint {
	return tp.PastSunday().AddDays(7)
}

// NearestSunday returns whichever Sunday is closer. Wednesday sits exactly
// between the two; tieToPast decides it.
func (tp TimePoint) NearestSunday(tieToPast bool) TimePoint {
	wd := tp.Weekday()
	switch {
	case wd == time.Sunday:
		return tp.Date()
	case wd < time.Wednesday:
		return tp.PastSunday()
	case wd == time.Wednesday && tieToPast:
		return tp.PastSunday()
	default:
		return tp.NextSunday()
	}
}

// NextEffectiveSunday returns the Sunday closing the first week that counts
// for someone starting on this date. A week counts when more than
// threshold of its days remain, so a start later than the threshold
// weekday pushes the first Sunday out by a week.
func (tp TimePoint) NextEffectiveSunday(threshold int) TimePoint {
	next := tp.NextSunday()
	if int(tp.Weekday()) > threshold {
		return next.AddDays(7)
	}
	return next
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// CompareDay compares two dates ignoring time of day: -1, 0 or +1.
func CompareDay(a, b TimePoint) int {
	an, bn := a.normalize(), b.normalize()
	switch {
	case an.Before(bn):
		return -1
	case an.After(bn):
		return 1
	default:
		return 0
	}
}

// DaysBetween returns the signed number of calendar days from one date to
// another.
func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }

// OffsetDays is the free-function form of AddDays.
func OffsetDays(tp TimePoint, n int) TimePoint { return tp.AddDays(n) }

// MaxTime picks the later calendar day; ties keep the first argument.
func MaxTime(a, b TimePoint) TimePoint {
	if b.After(a) {
		return b
	}
	return a
}

// LatestZone is the furthest-behind time zone on Earth (UTC-12). Judging a
// due date in this zone gives every submitter the most generous reading of
// "on time".
var LatestZone = time.FixedZone("UTC-12", -12*60*60)

// InZone returns the calendar date of t as seen in loc.
func InZone(t time.Time, loc *time.Location) TimePoint {
	if loc == nil {
		loc = time.UTC
	}
	return TimePoint{Time: t.In(loc)}
}

// ParseTimestamp accepts RFC3339 or a bare YYYY-MM-DD date (UTC midnight).
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(DateLayout, s)
}
