package audit

import (
	"fmt"

	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/schedule"
)

// IneffectiveWeeks returns the merged weeks a participant loses to leave.
func (db *Database) IneffectiveWeeks(id ParticipantID) []generic.Period {
	var leave []generic.Period
	for _, v := range db.VacationsFor(id) {
		leave = append(leave, v.Effective())
	}
	return generic.ToEffectiveWeeks(leave, db.opts.Threshold)
}

// GenerateObligations (re)creates every participant's obligations from
// their schedule and working leave. Leave under an owner key that belongs
// to nobody is recorded in the ledger.
//
// A schedule overflow is fatal and returned; nothing after the failing
// participant is generated.
func (db *Database) GenerateObligations() error {
	for _, v := range db.Vacations() {
		if _, ok := db.cur.owners[v.OwnerKey]; !ok {
			db.Errors.Record(TagSchedule, "vacation-owner:"+string(v.ID),
				fmt.Sprintf("leave %s for unknown owner key %q", generic.Period{Start: v.Start, End: v.End}, v.OwnerKey),
				[]string{"add-owner-alias"},
				"vacation="+string(v.ID))
		}
	}

	for _, p := range db.Participants() {
		obligations, err := db.obligationsFor(p)
		if err != nil {
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
		db.SetObligations(p.ID, obligations)
	}
	return nil
}

func (db *Database) obligationsFor(p *Participant) ([]Obligation, error) {
	weeks := db.IneffectiveWeeks(p.ID)
	dues, err := schedule.Dues(p.Schedule, weeks)
	if err != nil {
		return nil, err
	}

	obligations := make([]Obligation, 0, len(dues)+1)
	if db.opts.Intro && p.Schedule.WeekCount > 0 {
		validate := schedule.NewVacationValidator(weeks)
		obligations = append(obligations, Obligation{
			ID:    IntroObligation,
			Due:   validate(p.Schedule.Start.NextSunday()),
			State: ObligationState{Status: StatusPending},
		})
	}
	for i, due := range dues {
		obligations = append(obligations, Obligation{
			ID:    WeekObligation(i + 1),
			Due:   due,
			State: ObligationState{Status: StatusPending},
		})
	}
	return obligations, nil
}
