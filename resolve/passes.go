package resolve

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// =============================================================================
// 1. CONTENT ID - Re-ingested posts follow the original binding
// =============================================================================

// ContentIDPass binds an unassigned submission to the obligation of an
// already-bound submission from the same owner key with the same post id.
// Exports often re-ingest the same post under a new synthetic id.
type ContentIDPass struct {
	Logger *slog.Logger
}

func (ContentIDPass) Name() string { return "content-id" }

func (c ContentIDPass) Run(db *audit.Database, _ *Result) {
	type postKey struct {
		owner audit.OwnerKey
		post  string
	}
	bound := make(map[postKey]audit.ObligationID)
	for _, s := range db.Submissions() {
		if s.PostID == "" {
			continue
		}
		if _, ok := knownObligation(db, s); !ok {
			continue
		}
		k := postKey{owner: s.OwnerKey, post: s.PostID}
		if _, seen := bound[k]; !seen {
			bound[k] = s.Obligation
		}
	}

	for _, s := range db.Submissions() {
		if s.IsBound() || s.PostID == "" {
			continue
		}
		if obligation, ok := bound[postKey{owner: s.OwnerKey, post: s.PostID}]; ok {
			rebind(c.Logger, db, s.ID, obligation, c.Name())
		}
	}
}

// =============================================================================
// 2. HEADER LITERAL - Intro posts are titled with the participant's name
// =============================================================================

// HeaderLiteralPass binds an unassigned submission whose header is exactly
// the participant's display name to Obligation. It is a convention, so it
// only fills gaps and never overrides a binding.
type HeaderLiteralPass struct {
	Obligation audit.ObligationID
	Logger     *slog.Logger
}

func (HeaderLiteralPass) Name() string { return "header-literal" }

func (h HeaderLiteralPass) Run(db *audit.Database, _ *Result) {
	for _, s := range db.Submissions() {
		if s.IsBound() {
			continue
		}
		p, ok := db.ParticipantByOwner(s.OwnerKey)
		if !ok || p.Name == "" {
			continue
		}
		if _, ok := db.Obligation(audit.ObligationKey{Participant: p.ID, Obligation: h.Obligation}); !ok {
			continue
		}
		if strings.TrimSpace(s.Header) == p.Name {
			rebind(h.Logger, db, s.ID, h.Obligation, h.Name())
		}
	}
}

// rebind moves a submission for a binding pass. A failure leaves the
// submission where it was and ErrorPass reports it later.
func rebind(logger *slog.Logger, db *audit.Database, id audit.SubmissionID, obligation audit.ObligationID, pass string) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.Rebind(id, obligation); err != nil {
		logger.Debug("rebind failed", "pass", pass, "submission", id, "obligation", obligation, "error", err)
		return
	}
	logger.Debug("rebound", "pass", pass, "submission", id, "obligation", obligation)
}

// =============================================================================
// 3. NEAREST - Choose the base submission per obligation
// =============================================================================

// NearestPass picks the base submission for every obligation with at least
// one bound submission.
type NearestPass struct {
	Zone *time.Location
}

func (NearestPass) Name() string { return "nearest" }

func (n NearestPass) Run(db *audit.Database, res *Result) {
	for _, p := range db.Participants() {
		for _, o := range db.Obligations(p.ID) {
			key := o.Key()
			if base := ChooseBase(db.SubmissionsFor(key), o.Due, n.Zone); base != nil {
				res.Bases[key] = base.ID
			}
		}
	}
}

// ChooseBase applies the base-submission rule to time-ordered submissions:
// the latest one on or before the due date wins; with none on time, the
// earliest late one wins. A late resubmission never replaces an on-time one
// on its own.
func ChooseBase(subs []*audit.Submission, due generic.TimePoint, zone *time.Location) *audit.Submission {
	var onTime, late *audit.Submission
	for _, s := range subs {
		if dayOf(s.Submitted, zone).BeforeOrEqual(due) {
			onTime = s
			continue
		}
		if late == nil {
			late = s
		}
	}
	if onTime != nil {
		return onTime
	}
	return late
}

// =============================================================================
// 4. EDITS - Informational classification
// =============================================================================

// EditPass compares each base submission with the most recent submission
// for the same obligation.
//
// TODO: send major edits to review instead of always trusting the base.
type EditPass struct{}

func (EditPass) Name() string { return "edits" }

func (EditPass) Run(db *audit.Database, res *Result) {
	for key, baseID := range res.Bases {
		subs := db.SubmissionsFor(key)
		if len(subs) == 0 {
			continue
		}
		base, ok := db.Submission(baseID)
		if !ok {
			continue
		}
		res.Edits[key] = Classify(base, subs[len(subs)-1])
	}
}

// Classify compares a base submission with a later one.
func Classify(base, latest *audit.Submission) Edit {
	switch {
	case base.ID == latest.ID:
		return EditNone
	case base.Fingerprint() == latest.Fingerprint():
		return EditMinor
	default:
		return EditMajor
	}
}

// =============================================================================
// 5. ERRORS - Whatever is still unresolved goes to the ledger
// =============================================================================

// Remediation options offered for binding errors.
var (
	unknownOwnerOptions      = []string{"add-owner-alias", "ignore-submissions-by-owner"}
	unassignedOptions        = []string{"reassign-submission-to-obligation", "ignore-one-submission"}
	unknownObligationOptions = []string{"reassign-submission-to-obligation", "ignore-one-submission"}
)

// ErrorPass records unknown owner keys, unassigned submissions, and
// submissions bound to an obligation their participant does not have.
type ErrorPass struct{}

func (ErrorPass) Name() string { return "errors" }

func (ErrorPass) Run(db *audit.Database, _ *Result) {
	for _, owner := range db.OwnerKeys() {
		if _, ok := db.ParticipantByOwner(owner); ok {
			continue
		}
		var ids []string
		for _, s := range db.Submissions() {
			if s.OwnerKey == owner {
				ids = append(ids, string(s.ID))
			}
		}
		db.Errors.Record(audit.TagResolve, "owner:"+string(owner),
			fmt.Sprintf("%d submission(s) from unknown owner key %q", len(ids), owner),
			unknownOwnerOptions,
			"submissions="+strings.Join(ids, ","),
		)
	}

	for _, s := range db.Submissions() {
		p, ok := db.ParticipantByOwner(s.OwnerKey)
		if !ok {
			continue
		}
		detail := []string{
			"participant=" + string(p.ID),
			"header=" + s.Header,
			"submitted=" + s.Submitted.UTC().Format(time.RFC3339),
		}
		if !s.IsBound() {
			db.Errors.Record(audit.TagResolve, "unassigned:"+string(s.ID),
				fmt.Sprintf("submission %s from %s is not assigned to any obligation", s.ID, s.OwnerKey),
				unassignedOptions, detail...)
			continue
		}
		if _, ok := knownObligation(db, s); !ok {
			db.Errors.Record(audit.TagResolve, "unknown-obligation:"+string(s.ID),
				fmt.Sprintf("submission %s is bound to %s, which %s does not have", s.ID, s.Obligation, p.ID),
				unknownObligationOptions, detail...)
		}
	}
}
