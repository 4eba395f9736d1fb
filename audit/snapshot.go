package audit

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/gowebpki/jcs"
)

// Snapshot is a plain, ordered copy of the working and derived records.
// Two databases in the same state produce byte-identical Canonical output.
type Snapshot struct {
	Participants []ParticipantSnapshot `json:"participants"`
	Submissions  []SubmissionSnapshot  `json:"submissions"`
	Vacations    []VacationSnapshot    `json:"vacations"`
	Errors       []ErrorSnapshot       `json:"errors"`
}

type ParticipantSnapshot struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	OwnerKeys   []string             `json:"owner_keys"`
	Start       string               `json:"start"`
	End         string               `json:"end"`
	WeekCount   int                  `json:"week_count"`
	Obligations []ObligationSnapshot `json:"obligations"`
}

type ObligationSnapshot struct {
	ID         string `json:"id"`
	Due        string `json:"due"`
	Submission string `json:"submission,omitempty"`
	Status     Status `json:"status"`
	Slips      int    `json:"slips"`
	Forced     bool   `json:"forced,omitempty"`
}

type SubmissionSnapshot struct {
	ID         string `json:"id"`
	OwnerKey   string `json:"owner_key"`
	Obligation string `json:"obligation"`
	PostID     string `json:"post_id"`
	Submitted  string `json:"submitted"`
	HeaderHash string `json:"header_hash"`
	BodyHash   string `json:"body_hash"`
}

type VacationSnapshot struct {
	ID       string `json:"id"`
	OwnerKey string `json:"owner_key"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Padding  string `json:"padding"`
}

type ErrorSnapshot struct {
	ID      string   `json:"id"`
	Tag     string   `json:"tag"`
	Message string   `json:"message"`
	Options []string `json:"options,omitempty"`
	Detail  []string `json:"detail,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

// Snapshot copies the database into a Snapshot. Submissions and vacations
// are sorted by id so load order does not leak into comparisons.
func (db *Database) Snapshot() Snapshot {
	var snap Snapshot
	for _, p := range db.Participants() {
		ps := ParticipantSnapshot{
			ID:          string(p.ID),
			Name:        p.Name,
			Start:       p.Schedule.Start.String(),
			End:         p.Schedule.End.String(),
			WeekCount:   p.Schedule.WeekCount,
			Obligations: []ObligationSnapshot{},
		}
		for _, k := range p.OwnerKeys {
			ps.OwnerKeys = append(ps.OwnerKeys, string(k))
		}
		for _, o := range db.Obligations(p.ID) {
			ps.Obligations = append(ps.Obligations, ObligationSnapshot{
				ID:         string(o.ID),
				Due:        o.Due.String(),
				Submission: string(o.State.Submission),
				Status:     o.State.Status,
				Slips:      o.State.Slips,
				Forced:     o.State.Forced,
			})
		}
		snap.Participants = append(snap.Participants, ps)
	}

	for _, s := range db.Submissions() {
		snap.Submissions = append(snap.Submissions, SubmissionSnapshot{
			ID:         string(s.ID),
			OwnerKey:   string(s.OwnerKey),
			Obligation: string(s.Obligation),
			PostID:     s.PostID,
			Submitted:  s.Submitted.UTC().Format(time.RFC3339),
			HeaderHash: s.HeaderHash,
			BodyHash:   s.BodyHash,
		})
	}
	sort.Slice(snap.Submissions, func(i, j int) bool { return snap.Submissions[i].ID < snap.Submissions[j].ID })

	for _, v := range db.Vacations() {
		snap.Vacations = append(snap.Vacations, VacationSnapshot{
			ID:       string(v.ID),
			OwnerKey: string(v.OwnerKey),
			Start:    v.Start.String(),
			End:      v.End.String(),
			Padding:  v.Padding.String(),
		})
	}
	sort.Slice(snap.Vacations, func(i, j int) bool { return snap.Vacations[i].ID < snap.Vacations[j].ID })

	for _, e := range db.Errors.All() {
		snap.Errors = append(snap.Errors, ErrorSnapshot{
			ID:      e.ID,
			Tag:     string(e.Tag),
			Message: e.Message,
			Options: e.Options,
			Detail:  e.Detail,
			Skipped: db.Errors.IsSkipped(e.ID),
		})
	}
	return snap
}

// Canonical encodes the snapshot as RFC 8785 canonical JSON.
func (s Snapshot) Canonical() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
