package accounting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/accounting"
	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/resolve"
)

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func instant(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newEngine() *accounting.Engine {
	return accounting.NewEngine(0, nil, nil)
}

// =============================================================================
// SINGLE OBLIGATION
// =============================================================================

func TestEvaluate_SlipGrace(t *testing.T) {
	e := newEngine()
	due := date("2024-01-07")
	today := date("2024-02-01")

	tests := []struct {
		name      string
		submitted string
		slips     int
	}{
		{"early", "2024-01-05T09:00:00Z", 0},
		{"on the due date", "2024-01-07T09:00:00Z", 0},
		// 11:00 UTC on the 8th is still the 7th in UTC-12
		{"next morning UTC, still due date in UTC-12", "2024-01-08T11:00:00Z", 0},
		{"one day late", "2024-01-08T13:00:00Z", 1},
		{"three days late", "2024-01-10T20:00:00Z", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &audit.Submission{ID: "s", Submitted: instant(tt.submitted)}
			state := e.Evaluate(due, base, today)
			assert.Equal(t, audit.StatusSatisfied, state.Status)
			assert.Equal(t, tt.slips, state.Slips)
			assert.Equal(t, audit.SubmissionID("s"), state.Submission)
		})
	}
}

func TestEvaluate_PendingAndMissing(t *testing.T) {
	e := newEngine()
	due := date("2024-01-07")

	// GIVEN: Today is before the due date
	state := e.Evaluate(due, nil, date("2024-01-06"))
	assert.Equal(t, audit.StatusPending, state.Status)
	assert.Equal(t, 0, state.Slips)

	// GIVEN: Today is the due date and nothing was submitted
	state = e.Evaluate(due, nil, date("2024-01-07"))
	assert.Equal(t, audit.StatusMissing, state.Status)
	assert.Equal(t, 0, state.Slips)

	// GIVEN: Four days past due
	state = e.Evaluate(due, nil, date("2024-01-11"))
	assert.Equal(t, audit.StatusMissing, state.Status)
	assert.Equal(t, 4, state.Slips)
}

func TestSlips_NeverNegative(t *testing.T) {
	assert.Equal(t, 0, accounting.Slips(date("2024-01-07"), date("2023-12-01")))
}

// =============================================================================
// PARTICIPANT AGGREGATES
// =============================================================================

func TestAccount(t *testing.T) {
	// GIVEN: A three-week participant with one on-time, one late and one
	// forced obligation
	db := audit.NewDatabase(audit.Options{})
	_, err := db.InsertParticipant("p1", "Pat", nil, date("2024-01-01"), date("2024-01-20"))
	require.NoError(t, err)
	require.NoError(t, db.GenerateObligations())

	onTime, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "a", Obligation: "week[1]", Submitted: instant("2024-01-06T12:00:00Z")})
	require.NoError(t, err)
	late, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "b", Obligation: "week[2]", Submitted: instant("2024-01-16T12:00:00Z")})
	require.NoError(t, err)
	week3 := audit.ObligationKey{Participant: "p1", Obligation: "week[3]"}
	require.NoError(t, db.Force(week3, audit.StatusSatisfied, 1))

	res := resolve.NewResult()
	res.Bases[audit.ObligationKey{Participant: "p1", Obligation: "week[1]"}] = onTime.ID
	res.Bases[audit.ObligationKey{Participant: "p1", Obligation: "week[2]"}] = late.ID

	// WHEN: Accounted well after the schedule ends
	summaries := newEngine().Account(db, res, instant("2024-03-01T00:00:00Z"))

	// THEN: Slips are 0 + 2 + 1 (forced, untouched)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "3", s.Used.String())
	assert.Equal(t, "9", s.Max.String())
	assert.Equal(t, "6", s.Remaining.String())
	assert.Equal(t, "1", s.Mean.String())
	assert.Equal(t, 3, s.Satisfied)
	assert.Equal(t, 0, s.Missing)

	forced, _ := db.Obligation(week3)
	assert.True(t, forced.State.Forced)
	assert.Equal(t, 1, forced.State.Slips)
}
