package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/review"
	"github.com/andykuo1/progress-auditor-sub001/session"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func noon(day string) time.Time {
	return date(day).Time.Add(12 * time.Hour)
}

// newScenario is participant "p1", active 2024-01-01..2024-01-20, with
// leave over the week-two due date (2024-01-14).
func newScenario(t *testing.T) *audit.Database {
	t.Helper()
	db := audit.NewDatabase(audit.Options{})
	_, err := db.InsertParticipant("p1", "Pat", nil, date("2024-01-01"), date("2024-01-20"))
	require.NoError(t, err)
	_, err = db.InsertVacation(audit.Vacation{OwnerKey: "p1", Start: date("2024-01-14"), End: date("2024-01-20")})
	require.NoError(t, err)
	return db
}

func insert(t *testing.T, db *audit.Database, owner audit.OwnerKey, post string, obligation audit.ObligationID, day string) *audit.Submission {
	t.Helper()
	s, err := db.InsertSubmission(audit.Submission{OwnerKey: owner, PostID: post, Obligation: obligation, Submitted: noon(day)})
	require.NoError(t, err)
	return s
}

func state(t *testing.T, s *session.Session, id audit.ObligationID) audit.ObligationState {
	t.Helper()
	o, ok := s.DB().Obligation(audit.ObligationKey{Participant: "p1", Obligation: id})
	require.True(t, ok, id)
	return o.State
}

// =============================================================================
// END TO END
// =============================================================================

func TestSession_LeaveShiftsWeekTwo(t *testing.T) {
	// GIVEN: Three weekly posts, week two posted after the leave
	db := newScenario(t)
	insert(t, db, "p1", "1", "week[1]", "2024-01-06")
	insert(t, db, "p1", "2", "week[2]", "2024-01-21")
	insert(t, db, "p1", "3", "week[3]", "2024-01-29")

	// WHEN: The loop runs without an operator
	s := session.New(db, session.Config{Now: now})
	final, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	// THEN: Clean; week two is due the Sunday after the leave and on time
	assert.Equal(t, session.StateClean, final)
	o, _ := db.Obligation(audit.ObligationKey{Participant: "p1", Obligation: "week[2]"})
	assert.Equal(t, "2024-01-21", o.Due.String())
	for _, ob := range db.Obligations("p1") {
		assert.False(t, ob.Due.AfterOrEqual(date("2024-01-14")) && ob.Due.BeforeOrEqual(date("2024-01-20")))
	}

	assert.Equal(t, 0, state(t, s, "week[1]").Slips)
	assert.Equal(t, 0, state(t, s, "week[2]").Slips)
	assert.Equal(t, 1, state(t, s, "week[3]").Slips)

	require.Len(t, s.Summaries(), 1)
	assert.Equal(t, "1", s.Summaries()[0].Used.String())
	assert.Equal(t, 3, s.Summaries()[0].Satisfied)
}

// =============================================================================
// REAPPLY
// =============================================================================

func TestSession_ReapplyIsIdempotent(t *testing.T) {
	db := newScenario(t)
	sub := insert(t, db, "p1", "1", audit.Unassigned, "2024-01-06")
	insert(t, db, "stranger", "2", "week[1]", "2024-01-06")

	s := session.New(db, session.Config{Now: now})
	require.NoError(t, s.AddReviews(
		review.Review{ID: "r1", Type: review.TypeReassignSubmission, Params: []string{string(sub.ID), "week[1]"}},
		review.Review{ID: "r2", Type: review.TypeForceObligationStatus, Params: []string{"p1", "week[3]", "satisfied", "0"}},
		review.Review{ID: "r3", Type: review.TypeAddLeavePeriod, Params: []string{"p1", "2024-01-02", "2024-01-03"}},
	))

	// WHEN: Reapplied twice from the same raw data
	require.NoError(t, s.Reapply())
	first, err := db.Snapshot().Canonical()
	require.NoError(t, err)
	require.NoError(t, s.Reapply())
	second, err := db.Snapshot().Canonical()
	require.NoError(t, err)

	// THEN: Byte-identical state
	assert.Equal(t, string(first), string(second))
	assert.True(t, state(t, s, "week[3]").Forced)
	assert.Equal(t, audit.StatusSatisfied, state(t, s, "week[1]").Status)
}

func TestSession_IgnoreThenUnignore(t *testing.T) {
	db := newScenario(t)
	sub := insert(t, db, "p1", "1", "week[1]", "2024-01-06")
	s := session.New(db, session.Config{Now: now})

	// GIVEN: The submission is ignored
	require.NoError(t, s.AddReviews(review.Review{ID: "ignore", Type: review.TypeIgnoreOneSubmission, Params: []string{string(sub.ID)}}))
	require.NoError(t, s.Reapply())
	_, ok := db.Submission(sub.ID)
	assert.False(t, ok)
	assert.Equal(t, audit.StatusMissing, state(t, s, "week[1]").Status)

	// WHEN: A meta review nullifies the ignore
	require.NoError(t, s.AddReviews(review.Review{ID: "undo", Type: review.TypeIgnoreAnotherCorrection, Params: []string{"ignore"}}))
	require.NoError(t, s.Reapply())

	// THEN: The submission is visible and counted again
	_, ok = db.Submission(sub.ID)
	assert.True(t, ok)
	assert.Equal(t, audit.StatusSatisfied, state(t, s, "week[1]").Status)
}

func TestSession_MetaChainSettlesBeforeApplying(t *testing.T) {
	db := newScenario(t)
	sub := insert(t, db, "p1", "1", "week[1]", "2024-01-06")
	s := session.New(db, session.Config{Now: now})

	// GIVEN: B cancels C, A cancels B, C ignores the submission, listed B A C
	require.NoError(t, s.AddReviews(
		review.Review{ID: "B", Type: review.TypeIgnoreAnotherCorrection, Params: []string{"C"}},
		review.Review{ID: "A", Type: review.TypeIgnoreAnotherCorrection, Params: []string{"B"}},
		review.Review{ID: "C", Type: review.TypeIgnoreOneSubmission, Params: []string{string(sub.ID)}},
	))

	// WHEN: Reviews are reapplied
	require.NoError(t, s.Reapply())

	// THEN: A voids B, so C stands and the submission is hidden
	_, ok := db.Submission(sub.ID)
	assert.False(t, ok)
	assert.Equal(t, audit.StatusMissing, state(t, s, "week[1]").Status)
	for _, e := range db.Errors.Open() {
		assert.NotEqual(t, audit.TagReview, e.Tag, e.Message)
	}
}

func TestSession_RejectsDuplicateReviewIDs(t *testing.T) {
	s := session.New(newScenario(t), session.Config{Now: now})
	require.NoError(t, s.AddReviews(review.Review{ID: "a", Type: review.TypeSkipOneError, Params: []string{"x"}}))

	err := s.AddReviews(
		review.Review{ID: "a", Type: review.TypeSkipOneError, Params: []string{"y"}},
		review.Review{ID: "b", Type: review.TypeSkipOneError, Params: []string{"z"}},
	)

	assert.ErrorIs(t, err, generic.ErrDuplicateID)
	assert.Len(t, s.Reviews(), 2)
}

// =============================================================================
// LOOP
// =============================================================================

func TestSession_OperatorFixesAlias(t *testing.T) {
	// GIVEN: Week one posted under an unknown owner key
	db := newScenario(t)
	insert(t, db, "pat-alt", "1", "week[1]", "2024-01-06")

	calls := 0
	op := session.OperatorFunc(func(_ context.Context, open []audit.Error) ([]review.Review, bool, error) {
		calls++
		require.Len(t, open, 1)
		assert.Contains(t, open[0].Options, string(review.TypeAddOwnerAlias))
		return []review.Review{{ID: "alias", Type: review.TypeAddOwnerAlias, Params: []string{"p1", "pat-alt"}}}, true, nil
	})

	// WHEN: The loop runs
	s := session.New(db, session.Config{Now: now})
	final, err := s.Run(context.Background(), op)
	require.NoError(t, err)

	// THEN: One correction round, then clean
	assert.Equal(t, session.StateClean, final)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []session.State{
		session.StateResolving,
		session.StateErrorsFound,
		session.StateAwaitingCorrections,
		session.StateReapplying,
		session.StateResolving,
		session.StateClean,
	}, s.History())
	assert.Equal(t, audit.StatusSatisfied, state(t, s, "week[1]").Status)
}

func TestSession_OperatorDeclines(t *testing.T) {
	db := newScenario(t)
	insert(t, db, "pat-alt", "1", "week[1]", "2024-01-06")

	op := session.OperatorFunc(func(context.Context, []audit.Error) ([]review.Review, bool, error) {
		return nil, false, nil
	})
	final, err := session.New(db, session.Config{Now: now}).Run(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, session.StateAborted, final)
	assert.True(t, final.Terminal())
}

func TestSession_SkipErrorMakesRunClean(t *testing.T) {
	db := newScenario(t)
	insert(t, db, "pat-alt", "1", "week[1]", "2024-01-06")

	op := session.OperatorFunc(func(_ context.Context, open []audit.Error) ([]review.Review, bool, error) {
		return []review.Review{{ID: "skip", Type: review.TypeSkipOneError, Params: []string{open[0].ID}}}, false, nil
	})
	final, err := session.New(db, session.Config{Now: now}).Run(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, session.StateClean, final)
	assert.Len(t, db.Errors.All(), 1)
}

func TestSession_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := session.New(newScenario(t), session.Config{Now: now}).Run(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StateAborted, final)
}
