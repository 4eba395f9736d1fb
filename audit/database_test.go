package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// newCohort returns a database with one three-week participant "p1" who
// also posts as "alias-1".
func newCohort(t *testing.T) *audit.Database {
	t.Helper()
	db := audit.NewDatabase(audit.Options{Intro: true})
	_, err := db.InsertParticipant("p1", "Pat", []audit.OwnerKey{"alias-1"}, date("2024-01-01"), date("2024-01-20"))
	require.NoError(t, err)
	return db
}

// =============================================================================
// INSERTS
// =============================================================================

func TestInsertParticipant_OwnerKeys(t *testing.T) {
	db := newCohort(t)

	p, ok := db.ParticipantByOwner("alias-1")
	require.True(t, ok)
	assert.Equal(t, audit.ParticipantID("p1"), p.ID)
	assert.Equal(t, []audit.OwnerKey{"p1", "alias-1"}, p.OwnerKeys)
	assert.Equal(t, 3, p.Schedule.WeekCount)
}

func TestInsert_RejectsDuplicates(t *testing.T) {
	db := newCohort(t)

	// WHEN: The same participant id is inserted again
	_, err := db.InsertParticipant("p1", "Other", nil, date("2024-01-01"), date("2024-01-20"))
	assert.ErrorIs(t, err, generic.ErrDuplicateID)

	// WHEN: Someone else claims an existing owner key
	_, err = db.InsertParticipant("p2", "Sam", []audit.OwnerKey{"alias-1"}, date("2024-01-01"), date("2024-01-20"))
	assert.ErrorIs(t, err, generic.ErrDuplicateID)
	_, ok := db.Participant("p2")
	assert.False(t, ok, "rejected insert must leave no trace")

	// WHEN: The same submission is loaded twice
	sub := audit.Submission{OwnerKey: "p1", PostID: "42", Submitted: at("2024-01-06T10:00:00Z")}
	_, err = db.InsertSubmission(sub)
	require.NoError(t, err)
	_, err = db.InsertSubmission(sub)
	assert.ErrorIs(t, err, generic.ErrDuplicateID)
	assert.Len(t, db.Submissions(), 1)
}

func TestInsertSubmission_Defaults(t *testing.T) {
	db := newCohort(t)

	s, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "1", Submitted: at("2024-01-06T10:00:00Z")})
	require.NoError(t, err)

	assert.Equal(t, audit.Unassigned, s.Obligation)
	assert.Equal(t, audit.NewSubmissionID("p1", "1", at("2024-01-06T10:00:00Z")), s.ID)
	assert.Len(t, string(s.ID), 12)
}

// =============================================================================
// GROUPING
// =============================================================================

func TestSubmissionsFor_MergesAliasesInTimeOrder(t *testing.T) {
	db := newCohort(t)
	for _, s := range []audit.Submission{
		{OwnerKey: "alias-1", PostID: "b", Obligation: "week[1]", Submitted: at("2024-01-06T12:00:00Z")},
		{OwnerKey: "p1", PostID: "a", Obligation: "week[1]", Submitted: at("2024-01-05T12:00:00Z")},
		{OwnerKey: "p1", PostID: "c", Submitted: at("2024-01-04T12:00:00Z")},
	} {
		_, err := db.InsertSubmission(s)
		require.NoError(t, err)
	}

	got := db.SubmissionsFor(audit.ObligationKey{Participant: "p1", Obligation: "week[1]"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PostID)
	assert.Equal(t, "b", got[1].PostID)

	unassigned := db.SubmissionsByOwner("p1", audit.Unassigned)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "c", unassigned[0].PostID)
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_RestoresRawRecords(t *testing.T) {
	db := newCohort(t)
	s, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "1", Submitted: at("2024-01-06T10:00:00Z")})
	require.NoError(t, err)

	// GIVEN: Working mutations and derived state
	require.NoError(t, db.AddOwnerKey("p1", "late-alias"))
	require.NoError(t, db.Rebind(s.ID, "week[1]"))
	require.NoError(t, db.RemoveSubmission(s.ID))
	require.NoError(t, db.GenerateObligations())
	db.Errors.Record(audit.TagResolve, "k", "boom", nil)

	// WHEN: Reset
	db.Reset()

	// THEN: Raw records are back, derived state is gone
	restored, ok := db.Submission(s.ID)
	require.True(t, ok)
	assert.Equal(t, audit.Unassigned, restored.Obligation)
	_, ok = db.ParticipantByOwner("late-alias")
	assert.False(t, ok)
	assert.Empty(t, db.Obligations("p1"))
	assert.Equal(t, 0, db.Errors.Len())
}

func TestAddOwnerKey(t *testing.T) {
	db := newCohort(t)
	_, err := db.InsertParticipant("p2", "Sam", nil, date("2024-01-01"), date("2024-01-20"))
	require.NoError(t, err)

	assert.NoError(t, db.AddOwnerKey("p1", "alias-1"), "re-adding own key is a no-op")
	assert.ErrorIs(t, db.AddOwnerKey("p2", "alias-1"), generic.ErrDuplicateID)
	assert.True(t, generic.IsNotFound(db.AddOwnerKey("nobody", "x")))
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

func TestGenerateObligations_LeaveShiftsWeekTwo(t *testing.T) {
	// GIVEN: Leave covering the week-two due date
	db := newCohort(t)
	_, err := db.InsertVacation(audit.Vacation{OwnerKey: "alias-1", Start: date("2024-01-14"), End: date("2024-01-20")})
	require.NoError(t, err)

	// WHEN: Obligations are generated
	require.NoError(t, db.GenerateObligations())

	// THEN: intro + three weeks, week two pushed past the leave
	dues := map[audit.ObligationID]string{}
	for _, o := range db.Obligations("p1") {
		dues[o.ID] = o.Due.String()
		assert.Equal(t, audit.StatusPending, o.State.Status)
		assert.False(t, o.Due.AfterOrEqual(date("2024-01-14")) && o.Due.BeforeOrEqual(date("2024-01-20")),
			"%s is due inside the leave", o.ID)
	}
	assert.Equal(t, map[audit.ObligationID]string{
		"intro":   "2024-01-07",
		"week[1]": "2024-01-07",
		"week[2]": "2024-01-21",
		"week[3]": "2024-01-28",
	}, dues)
}

func TestGenerateObligations_UnknownLeaveOwner(t *testing.T) {
	db := newCohort(t)
	_, err := db.InsertVacation(audit.Vacation{OwnerKey: "stranger", Start: date("2024-01-14"), End: date("2024-01-20")})
	require.NoError(t, err)

	require.NoError(t, db.GenerateObligations())

	open := db.Errors.Open()
	require.Len(t, open, 1)
	assert.Equal(t, audit.TagSchedule, open[0].Tag)
	assert.Contains(t, open[0].Options, "add-owner-alias")
}

func TestForce(t *testing.T) {
	db := newCohort(t)
	require.NoError(t, db.GenerateObligations())
	key := audit.ObligationKey{Participant: "p1", Obligation: "week[2]"}

	require.NoError(t, db.Force(key, audit.StatusSatisfied, 1))

	o, ok := db.Obligation(key)
	require.True(t, ok)
	assert.True(t, o.State.Forced)
	assert.Equal(t, 1, o.State.Slips)
	assert.True(t, generic.IsNotFound(db.Force(audit.ObligationKey{Participant: "p1", Obligation: "week[9]"}, audit.StatusMissing, 0)))
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshot_CanonicalIsStable(t *testing.T) {
	build := func(order []string) []byte {
		db := newCohort(t)
		for _, post := range order {
			_, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: post, Submitted: at("2024-01-06T10:00:00Z")})
			require.NoError(t, err)
		}
		require.NoError(t, db.GenerateObligations())
		b, err := db.Snapshot().Canonical()
		require.NoError(t, err)
		return b
	}

	// THEN: Load order does not change the canonical bytes
	assert.Equal(t, string(build([]string{"1", "2"})), string(build([]string{"2", "1"})))
}
