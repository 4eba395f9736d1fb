/*
database.go - In-memory record set for one audit run

PURPOSE:
  Holds everything the engine reconciles. The data is split in three:

  RAW:     participants, submissions and leave exactly as loaded
  WORKING: a copy of RAW that reviews mutate (aliases, ignores, rebinds)
  DERIVED: obligations, their resolution state, and the error ledger

  Reset() throws WORKING and DERIVED away and copies RAW again. The
  correction loop relies on this: reviews are reapplied from scratch on
  every iteration, so applying a review is a pure function of (RAW,
  reviews) and never accumulates.

INDEXES:
  Submissions are kept by id and grouped by owner key, then obligation id,
  in submission-time order. Unbound submissions are grouped under the
  Unassigned sentinel. The grouping is rebuilt lazily after any mutation.

DUPLICATES:
  Every Insert/Add rejects an id that already exists with a
  generic.DuplicateIDError and leaves the database unchanged.

CONCURRENCY:
  None. A Database is owned by one caller and used from one goroutine.

SEE ALSO:
  - obligations.go: obligation generation from schedules and leave
  - snapshot.go: canonical encoding for comparison and persistence
  - ledger.go: the error ledger
*/
package audit

import (
	"sort"
	"strings"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/schedule"
)

// Options fixes how schedules and obligations are derived.
type Options struct {
	// Threshold is the effective-week threshold used for schedules and
	// leave. Zero means generic.DefaultWeekThreshold.
	Threshold int

	// Intro adds the introductory obligation to every participant.
	Intro bool
}

// =============================================================================
// DATASET - One copy of the mutable records
// =============================================================================

type dataset struct {
	participants     map[ParticipantID]*Participant
	participantOrder []ParticipantID
	owners           map[OwnerKey]ParticipantID

	submissions     map[SubmissionID]*Submission
	submissionOrder []SubmissionID

	vacations     map[VacationID]*Vacation
	vacationOrder []VacationID
}

func newDataset() *dataset {
	return &dataset{
		participants: make(map[ParticipantID]*Participant),
		owners:       make(map[OwnerKey]ParticipantID),
		submissions:  make(map[SubmissionID]*Submission),
		vacations:    make(map[VacationID]*Vacation),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for _, id := range d.participantOrder {
		p := d.participants[id].clone()
		c.participants[id] = &p
		c.participantOrder = append(c.participantOrder, id)
	}
	for k, v := range d.owners {
		c.owners[k] = v
	}
	for _, id := range d.submissionOrder {
		if s, ok := d.submissions[id]; ok {
			cp := *s
			c.submissions[id] = &cp
			c.submissionOrder = append(c.submissionOrder, id)
		}
	}
	for _, id := range d.vacationOrder {
		if v, ok := d.vacations[id]; ok {
			cp := *v
			c.vacations[id] = &cp
			c.vacationOrder = append(c.vacationOrder, id)
		}
	}
	return c
}

// =============================================================================
// DATABASE
// =============================================================================

type Database struct {
	opts Options
	raw  *dataset
	cur  *dataset

	// grouped submissions: owner key -> obligation -> time-ordered
	grouped map[OwnerKey]map[ObligationID][]*Submission
	dirty   bool

	obligations     map[ParticipantID][]*Obligation
	obligationIndex map[ObligationKey]*Obligation

	Errors *ErrorLedger
}

func NewDatabase(opts Options) *Database {
	if opts.Threshold == 0 {
		opts.Threshold = generic.DefaultWeekThreshold
	}
	return &Database{
		opts:            opts,
		raw:             newDataset(),
		cur:             newDataset(),
		dirty:           true,
		obligations:     make(map[ParticipantID][]*Obligation),
		obligationIndex: make(map[ObligationKey]*Obligation),
		Errors:          NewErrorLedger(),
	}
}

func (db *Database) Options() Options { return db.opts }

// Reset restores the working records from the raw ones and clears every
// derived value: obligations, bindings changed by passes, and the ledger.
func (db *Database) Reset() {
	db.cur = db.raw.clone()
	db.dirty = true
	db.obligations = make(map[ParticipantID][]*Obligation)
	db.obligationIndex = make(map[ObligationKey]*Obligation)
	db.Errors.Clear()
}

// =============================================================================
// RAW INSERTS - Loaders call these; records land in RAW and WORKING
// =============================================================================

// InsertParticipant registers a roster entry. The participant id is always
// one of its owner keys.
func (db *Database) InsertParticipant(id ParticipantID, name string, keys []OwnerKey, start, end generic.TimePoint) (*Participant, error) {
	if _, ok := db.raw.participants[id]; ok {
		return nil, &generic.DuplicateIDError{Kind: "participant", ID: string(id)}
	}
	sched, err := schedule.Generate(start, end, db.opts.Threshold)
	if err != nil {
		return nil, err
	}

	owners := []OwnerKey{OwnerKey(id)}
	for _, k := range keys {
		k = OwnerKey(strings.TrimSpace(string(k)))
		if k == "" || containsKey(owners, k) {
			continue
		}
		owners = append(owners, k)
	}
	for _, k := range owners {
		if other, ok := db.raw.owners[k]; ok {
			return nil, &generic.DuplicateIDError{Kind: "owner key", ID: string(k) + " (held by " + string(other) + ")"}
		}
	}

	p := Participant{ID: id, Name: strings.TrimSpace(name), OwnerKeys: owners, Schedule: sched}
	for _, d := range []*dataset{db.raw, db.cur} {
		cp := p.clone()
		d.participants[id] = &cp
		d.participantOrder = append(d.participantOrder, id)
		for _, k := range owners {
			d.owners[k] = id
		}
	}
	return db.cur.participants[id], nil
}

// InsertSubmission registers a raw submission. An empty id is derived from
// the record; an empty obligation becomes Unassigned.
func (db *Database) InsertSubmission(s Submission) (*Submission, error) {
	if s.ID == "" {
		s.ID = NewSubmissionID(s.OwnerKey, s.PostID, s.Submitted)
	}
	if s.Obligation == "" {
		s.Obligation = Unassigned
	}
	if _, ok := db.raw.submissions[s.ID]; ok {
		return nil, &generic.DuplicateIDError{Kind: "submission", ID: string(s.ID)}
	}
	for _, d := range []*dataset{db.raw, db.cur} {
		cp := s
		d.submissions[s.ID] = &cp
		d.submissionOrder = append(d.submissionOrder, s.ID)
	}
	db.dirty = true
	return db.cur.submissions[s.ID], nil
}

// InsertVacation registers a raw leave period.
func (db *Database) InsertVacation(v Vacation) (*Vacation, error) {
	v, err := prepareVacation(v)
	if err != nil {
		return nil, err
	}
	if _, ok := db.raw.vacations[v.ID]; ok {
		return nil, &generic.DuplicateIDError{Kind: "vacation", ID: string(v.ID)}
	}
	for _, d := range []*dataset{db.raw, db.cur} {
		cp := v
		d.vacations[v.ID] = &cp
		d.vacationOrder = append(d.vacationOrder, v.ID)
	}
	return db.cur.vacations[v.ID], nil
}

func prepareVacation(v Vacation) (Vacation, error) {
	if v.End.Before(v.Start) {
		return v, generic.ErrInvalidPeriod
	}
	v.Start, v.End = v.Start.Date(), v.End.Date()
	if v.ID == "" {
		v.ID = NewVacationID(v.OwnerKey, v.Start.String(), v.End.String())
	}
	return v, nil
}

// =============================================================================
// WORKING MUTATIONS - Reviews call these; Reset undoes them
// =============================================================================

// AddOwnerKey gives a participant another alias. Adding a key the
// participant already has is a no-op; a key held by someone else is a
// duplicate.
func (db *Database) AddOwnerKey(id ParticipantID, key OwnerKey) error {
	p, ok := db.cur.participants[id]
	if !ok {
		return &generic.NotFoundError{Kind: "participant", ID: string(id)}
	}
	if holder, ok := db.cur.owners[key]; ok {
		if holder == id {
			return nil
		}
		return &generic.DuplicateIDError{Kind: "owner key", ID: string(key) + " (held by " + string(holder) + ")"}
	}
	p.OwnerKeys = append(p.OwnerKeys, key)
	db.cur.owners[key] = id
	return nil
}

// AddVacation adds leave to the working records only.
func (db *Database) AddVacation(v Vacation) (*Vacation, error) {
	v, err := prepareVacation(v)
	if err != nil {
		return nil, err
	}
	if _, ok := db.cur.vacations[v.ID]; ok {
		return nil, &generic.DuplicateIDError{Kind: "vacation", ID: string(v.ID)}
	}
	cp := v
	db.cur.vacations[v.ID] = &cp
	db.cur.vacationOrder = append(db.cur.vacationOrder, v.ID)
	return &cp, nil
}

// RemoveSubmission drops a submission from the working records.
func (db *Database) RemoveSubmission(id SubmissionID) error {
	if _, ok := db.cur.submissions[id]; !ok {
		return &generic.NotFoundError{Kind: "submission", ID: string(id)}
	}
	delete(db.cur.submissions, id)
	db.dirty = true
	return nil
}

// RemoveSubmissionsByOwner drops every submission received under key and
// returns how many were dropped.
func (db *Database) RemoveSubmissionsByOwner(key OwnerKey) int {
	n := 0
	for _, id := range db.cur.submissionOrder {
		if s, ok := db.cur.submissions[id]; ok && s.OwnerKey == key {
			delete(db.cur.submissions, id)
			n++
		}
	}
	if n > 0 {
		db.dirty = true
	}
	return n
}

// Rebind points a submission at another obligation id.
func (db *Database) Rebind(id SubmissionID, obligation ObligationID) error {
	s, ok := db.cur.submissions[id]
	if !ok {
		return &generic.NotFoundError{Kind: "submission", ID: string(id)}
	}
	if obligation == "" {
		obligation = Unassigned
	}
	if s.Obligation != obligation {
		s.Obligation = obligation
		db.dirty = true
	}
	return nil
}

// SetSubmitted changes a submission's timestamp.
func (db *Database) SetSubmitted(id SubmissionID, at time.Time) error {
	s, ok := db.cur.submissions[id]
	if !ok {
		return &generic.NotFoundError{Kind: "submission", ID: string(id)}
	}
	s.Submitted = at
	db.dirty = true
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Participants returns participants in roster order.
func (db *Database) Participants() []*Participant {
	out := make([]*Participant, 0, len(db.cur.participantOrder))
	for _, id := range db.cur.participantOrder {
		out = append(out, db.cur.participants[id])
	}
	return out
}

func (db *Database) Participant(id ParticipantID) (*Participant, bool) {
	p, ok := db.cur.participants[id]
	return p, ok
}

// ParticipantByOwner resolves an owner key to its participant.
func (db *Database) ParticipantByOwner(key OwnerKey) (*Participant, bool) {
	id, ok := db.cur.owners[key]
	if !ok {
		return nil, false
	}
	return db.cur.participants[id], true
}

// Submissions returns live submissions in load order.
func (db *Database) Submissions() []*Submission {
	out := make([]*Submission, 0, len(db.cur.submissions))
	for _, id := range db.cur.submissionOrder {
		if s, ok := db.cur.submissions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (db *Database) Submission(id SubmissionID) (*Submission, bool) {
	s, ok := db.cur.submissions[id]
	return s, ok
}

// OwnerKeys returns every owner key that has live submissions, sorted.
func (db *Database) OwnerKeys() []OwnerKey {
	groups := db.groups()
	keys := make([]OwnerKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// SubmissionsByOwner returns the time-ordered submissions of one owner key
// bound to the given obligation id (Unassigned included).
func (db *Database) SubmissionsByOwner(key OwnerKey, obligation ObligationID) []*Submission {
	return append([]*Submission(nil), db.groups()[key][obligation]...)
}

// SubmissionsFor returns every submission bound to an obligation across
// all of the participant's owner keys, in submission-time order.
func (db *Database) SubmissionsFor(key ObligationKey) []*Submission {
	p, ok := db.cur.participants[key.Participant]
	if !ok {
		return nil
	}
	groups := db.groups()
	var out []*Submission
	for _, k := range p.OwnerKeys {
		out = append(out, groups[k][key.Obligation]...)
	}
	sortSubmissions(out)
	return out
}

// Vacations returns working leave in load order.
func (db *Database) Vacations() []*Vacation {
	out := make([]*Vacation, 0, len(db.cur.vacations))
	for _, id := range db.cur.vacationOrder {
		if v, ok := db.cur.vacations[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// VacationsFor returns the participant's leave across all owner keys.
func (db *Database) VacationsFor(id ParticipantID) []*Vacation {
	var out []*Vacation
	for _, v := range db.Vacations() {
		if db.cur.owners[v.OwnerKey] == id {
			out = append(out, v)
		}
	}
	return out
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

// SetObligations replaces a participant's obligations, ordered by due date.
func (db *Database) SetObligations(id ParticipantID, obligations []Obligation) {
	for _, old := range db.obligations[id] {
		delete(db.obligationIndex, old.Key())
	}
	list := make([]*Obligation, 0, len(obligations))
	for i := range obligations {
		o := obligations[i]
		o.Participant = id
		list = append(list, &o)
		db.obligationIndex[o.Key()] = &o
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Due.Before(list[j].Due) })
	db.obligations[id] = list
}

// Obligations returns a participant's obligations in due order.
func (db *Database) Obligations(id ParticipantID) []*Obligation {
	return db.obligations[id]
}

func (db *Database) Obligation(key ObligationKey) (*Obligation, bool) {
	o, ok := db.obligationIndex[key]
	return o, ok
}

// Force pins an obligation's state so accounting leaves it alone.
func (db *Database) Force(key ObligationKey, status Status, slips int) error {
	o, ok := db.obligationIndex[key]
	if !ok {
		return &generic.NotFoundError{Kind: "obligation", ID: key.String()}
	}
	o.State = ObligationState{Submission: o.State.Submission, Status: status, Slips: slips, Forced: true}
	return nil
}

// =============================================================================
// INDEX
// =============================================================================

func (db *Database) groups() map[OwnerKey]map[ObligationID][]*Submission {
	if !db.dirty && db.grouped != nil {
		return db.grouped
	}
	grouped := make(map[OwnerKey]map[ObligationID][]*Submission)
	for _, s := range db.Submissions() {
		byObligation, ok := grouped[s.OwnerKey]
		if !ok {
			byObligation = make(map[ObligationID][]*Submission)
			grouped[s.OwnerKey] = byObligation
		}
		byObligation[s.Obligation] = append(byObligation[s.Obligation], s)
	}
	for _, byObligation := range grouped {
		for _, list := range byObligation {
			sortSubmissions(list)
		}
	}
	db.grouped = grouped
	db.dirty = false
	return grouped
}

func sortSubmissions(list []*Submission) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Submitted.Equal(list[j].Submitted) {
			return list[i].Submitted.Before(list[j].Submitted)
		}
		return list[i].ID < list[j].ID
	})
}

func containsKey(keys []OwnerKey, k OwnerKey) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}
	return false
}
