package review_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTarget(t *testing.T) (*review.Target, *audit.Submission) {
	t.Helper()
	db := audit.NewDatabase(audit.Options{})
	start, _ := generic.ParseDate("2024-01-01")
	end, _ := generic.ParseDate("2024-01-20")
	_, err := db.InsertParticipant("p1", "Pat", nil, start, end)
	require.NoError(t, err)
	s, err := db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "1", Submitted: time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, db.GenerateObligations())
	return review.NewTarget(db), s
}

func rv(id string, typ review.Type, params ...string) review.Review {
	return review.Review{ID: id, Type: typ, Params: params}
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestDefaultRegistry_HasVocabulary(t *testing.T) {
	r := review.DefaultRegistry()
	for _, typ := range []review.Type{
		review.TypeAddOwnerAlias,
		review.TypeIgnoreSubmissionsBy,
		review.TypeIgnoreOneSubmission,
		review.TypeChangeSubmissionDate,
		review.TypeAddLeavePeriod,
		review.TypeReassignSubmission,
		review.TypeForceObligationStatus,
		review.TypeSkipOneError,
		review.TypeIgnoreAnotherCorrection,
	} {
		assert.True(t, r.Known(typ), typ)
	}
	assert.Len(t, r.Types(), 9)
}

func TestRegistries_AreIndependent(t *testing.T) {
	a := review.NewRegistry()
	b := review.DefaultRegistry()
	a.Register(review.SkipOneError{})

	assert.Equal(t, []review.Type{review.TypeSkipOneError}, a.Types())
	assert.Len(t, b.Types(), 9)
}

func TestLookup_UnknownFallsBack(t *testing.T) {
	target, _ := newTarget(t)
	h := review.DefaultRegistry().Lookup("rename-cohort")

	err := review.Apply(h, target, rv("r1", "rename-cohort"))

	var unknown *review.UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, review.Type("rename-cohort"), unknown.Type)
	assert.ErrorIs(t, err, generic.ErrUnknownReviewType)
}

// =============================================================================
// ARITY
// =============================================================================

func TestApply_TooFewParamsMutatesNothing(t *testing.T) {
	target, _ := newTarget(t)
	before, err := target.DB.Snapshot().Canonical()
	require.NoError(t, err)

	err = review.Apply(review.AddOwnerAlias{}, target, rv("r1", review.TypeAddOwnerAlias, "p1"))

	var arity *review.ArityError
	require.True(t, errors.As(err, &arity))
	assert.Equal(t, 2, arity.Want)
	assert.Equal(t, 1, arity.Got)
	assert.ErrorIs(t, err, generic.ErrTooFewParams)

	after, err := target.DB.Snapshot().Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

// =============================================================================
// HANDLERS
// =============================================================================

func TestHandlers(t *testing.T) {
	t.Run("add-owner-alias", func(t *testing.T) {
		target, _ := newTarget(t)
		require.NoError(t, review.Apply(review.AddOwnerAlias{}, target, rv("r", review.TypeAddOwnerAlias, "p1", "pat@new")))
		_, ok := target.DB.ParticipantByOwner("pat@new")
		assert.True(t, ok)
	})

	t.Run("ignore-one-submission", func(t *testing.T) {
		target, s := newTarget(t)
		require.NoError(t, review.Apply(review.IgnoreOneSubmission{}, target, rv("r", review.TypeIgnoreOneSubmission, string(s.ID))))
		assert.Empty(t, target.DB.Submissions())
	})

	t.Run("ignore-submissions-by-owner unknown key", func(t *testing.T) {
		target, _ := newTarget(t)
		err := review.Apply(review.IgnoreSubmissionsByOwner{}, target, rv("r", review.TypeIgnoreSubmissionsBy, "nobody"))
		assert.True(t, generic.IsNotFound(err))
	})

	t.Run("change-submission-date", func(t *testing.T) {
		target, s := newTarget(t)
		require.NoError(t, review.Apply(review.ChangeSubmissionDate{}, target, rv("r", review.TypeChangeSubmissionDate, string(s.ID), "2024-01-03")))
		got, _ := target.DB.Submission(s.ID)
		assert.Equal(t, 3, got.Submitted.Day())
	})

	t.Run("add-leave-period with padding", func(t *testing.T) {
		target, _ := newTarget(t)
		require.NoError(t, review.Apply(review.AddLeavePeriod{}, target, rv("r", review.TypeAddLeavePeriod, "p1", "2024-01-10", "2024-01-11", "week")))
		leave := target.DB.VacationsFor("p1")
		require.Len(t, leave, 1)
		assert.True(t, leave[0].Padding.Week)
	})

	t.Run("add-leave-period bad date", func(t *testing.T) {
		target, _ := newTarget(t)
		err := review.Apply(review.AddLeavePeriod{}, target, rv("r", review.TypeAddLeavePeriod, "p1", "soon", "2024-01-11"))
		assert.ErrorIs(t, err, generic.ErrInvalidValue)
	})

	t.Run("reassign-submission-to-obligation", func(t *testing.T) {
		target, s := newTarget(t)
		require.NoError(t, review.Apply(review.ReassignSubmission{}, target, rv("r", review.TypeReassignSubmission, string(s.ID), "week[2]")))
		got, _ := target.DB.Submission(s.ID)
		assert.Equal(t, audit.ObligationID("week[2]"), got.Obligation)

		err := review.Apply(review.ReassignSubmission{}, target, rv("r", review.TypeReassignSubmission, string(s.ID), "week[7]"))
		assert.True(t, generic.IsNotFound(err))
	})

	t.Run("force-obligation-status", func(t *testing.T) {
		target, _ := newTarget(t)
		require.NoError(t, review.Apply(review.ForceObligationStatus{}, target, rv("r", review.TypeForceObligationStatus, "p1", "week[1]", "missing", "2")))
		o, _ := target.DB.Obligation(audit.ObligationKey{Participant: "p1", Obligation: "week[1]"})
		assert.Equal(t, audit.StatusMissing, o.State.Status)
		assert.Equal(t, 2, o.State.Slips)
		assert.True(t, o.State.Forced)

		err := review.Apply(review.ForceObligationStatus{}, target, rv("r", review.TypeForceObligationStatus, "p1", "week[1]", "done"))
		assert.ErrorIs(t, err, generic.ErrInvalidValue)
	})

	t.Run("skip-one-error unknown id is a no-op", func(t *testing.T) {
		target, _ := newTarget(t)
		assert.NoError(t, review.Apply(review.SkipOneError{}, target, rv("r", review.TypeSkipOneError, "feedfacecafe")))
	})

	t.Run("ignore-another-correction cannot target itself", func(t *testing.T) {
		target, _ := newTarget(t)
		target.Known["r"] = true
		err := review.Apply(review.IgnoreAnotherCorrection{}, target, rv("r", review.TypeIgnoreAnotherCorrection, "r"))
		assert.ErrorIs(t, err, generic.ErrInvalidValue)
	})

	t.Run("ignore-another-correction unknown target is not found", func(t *testing.T) {
		target, _ := newTarget(t)
		err := review.Apply(review.IgnoreAnotherCorrection{}, target, rv("r", review.TypeIgnoreAnotherCorrection, "ghost"))
		assert.True(t, generic.IsNotFound(err))
		assert.Contains(t, err.Error(), "ghost")
		assert.Empty(t, target.Ignored)
	})

	t.Run("ignore-another-correction known target", func(t *testing.T) {
		target, _ := newTarget(t)
		target.Known["other"] = true
		require.NoError(t, review.Apply(review.IgnoreAnotherCorrection{}, target, rv("r", review.TypeIgnoreAnotherCorrection, "other")))
		assert.True(t, target.Ignored["other"])
	})
}

// =============================================================================
// PHASES
// =============================================================================

func TestApplyPhase_MetaIgnoresAndFailuresAreRecorded(t *testing.T) {
	target, s := newTarget(t)
	applier := review.NewApplier(nil, nil)
	reviews := []review.Review{
		rv("drop", review.TypeIgnoreOneSubmission, string(s.ID)),
		rv("undo", review.TypeIgnoreAnotherCorrection, "drop"),
		rv("bad", "rename-cohort"),
	}

	// WHEN: Meta then records phases run
	assert.Equal(t, 1, applier.ApplyPhase(target, reviews, review.PhaseMeta))
	assert.Equal(t, 0, applier.ApplyPhase(target, reviews, review.PhaseRecords))

	// THEN: The ignored review did nothing; the unknown one is in the ledger
	assert.Len(t, target.DB.Submissions(), 1)
	open := target.DB.Errors.Open()
	require.Len(t, open, 1)
	assert.Equal(t, audit.TagReview, open[0].Tag)
	assert.Contains(t, open[0].Message, "rename-cohort")
}

func TestApplyPhase_MetaUnknownTargetIsRecorded(t *testing.T) {
	// GIVEN: A meta review pointing at an id nobody wrote
	target, _ := newTarget(t)
	applier := review.NewApplier(nil, nil)
	reviews := []review.Review{rv("undo", review.TypeIgnoreAnotherCorrection, "ghost")}

	// WHEN: The meta phase runs
	applied := applier.ApplyPhase(target, reviews, review.PhaseMeta)

	// THEN: Nothing applied and the ledger names the missing review
	assert.Equal(t, 0, applied)
	open := target.DB.Errors.Open()
	require.Len(t, open, 1)
	assert.Equal(t, audit.TagReview, open[0].Tag)
	assert.Contains(t, open[0].Message, `review "ghost" not found`)
}

func TestApplyPhase_MetaChainIgnoresListOrder(t *testing.T) {
	// GIVEN: a cancels b, b cancels c, c drops the submission
	chain := map[string]review.Review{
		"a": rv("a", review.TypeIgnoreAnotherCorrection, "b"),
		"b": rv("b", review.TypeIgnoreAnotherCorrection, "c"),
	}
	orders := [][]string{
		{"b", "a", "c"},
		{"a", "b", "c"},
		{"c", "b", "a"},
		{"c", "a", "b"},
	}
	for _, order := range orders {
		target, s := newTarget(t)
		var reviews []review.Review
		for _, id := range order {
			if id == "c" {
				reviews = append(reviews, rv("c", review.TypeIgnoreOneSubmission, string(s.ID)))
				continue
			}
			reviews = append(reviews, chain[id])
		}
		applier := review.NewApplier(nil, nil)

		// WHEN: Meta then records phases run
		assert.Equal(t, 1, applier.ApplyPhase(target, reviews, review.PhaseMeta), order)
		assert.Equal(t, 1, applier.ApplyPhase(target, reviews, review.PhaseRecords), order)

		// THEN: a stands, b falls, so c drops the submission whatever the order
		assert.True(t, target.Ignored["b"], order)
		assert.False(t, target.Ignored["c"], order)
		assert.Empty(t, target.DB.Submissions(), order)
		assert.Empty(t, target.DB.Errors.Open(), order)
	}
}

func TestApplyPhase_MetaCycleIsRecorded(t *testing.T) {
	// GIVEN: Two meta reviews cancelling each other and one they both skip
	target, s := newTarget(t)
	applier := review.NewApplier(nil, nil)
	reviews := []review.Review{
		rv("x", review.TypeIgnoreAnotherCorrection, "y"),
		rv("y", review.TypeIgnoreAnotherCorrection, "x"),
		rv("drop", review.TypeIgnoreOneSubmission, string(s.ID)),
	}

	// WHEN: Meta then records phases run
	assert.Equal(t, 0, applier.ApplyPhase(target, reviews, review.PhaseMeta))
	assert.Equal(t, 1, applier.ApplyPhase(target, reviews, review.PhaseRecords))

	// THEN: Neither cycle member took effect and both are reported
	assert.Empty(t, target.Ignored)
	assert.Empty(t, target.DB.Submissions())
	open := target.DB.Errors.Open()
	require.Len(t, open, 2)
	for _, e := range open {
		assert.Equal(t, audit.TagReview, e.Tag)
		assert.Contains(t, e.Message, "cancellation cycle")
	}
}

func TestValidate_DuplicateIDs(t *testing.T) {
	err := review.Validate([]review.Review{rv("a", review.TypeSkipOneError, "x"), rv("a", review.TypeSkipOneError, "y")})
	assert.ErrorIs(t, err, generic.ErrDuplicateID)
}
