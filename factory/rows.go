package factory

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

// =============================================================================
// ROW TYPES
// =============================================================================

// RosterRow is one participant entry.
type RosterRow struct {
	ID        audit.ParticipantID
	Name      string
	OwnerKeys []audit.OwnerKey
	Start     generic.TimePoint
	End       generic.TimePoint
}

// =============================================================================
// PARSERS
// =============================================================================

// ParseRoster reads roster.csv. The returned error is for the file as a
// whole (unreadable, missing columns); row problems are in the results.
func (f *Factory) ParseRoster(r io.Reader) ([]Result[RosterRow], error) {
	t, err := readTable(r, "id", "start", "end")
	if err != nil {
		return nil, err
	}
	out := make([]Result[RosterRow], 0, len(t.rows))
	for i, row := range t.rows {
		res := Result[RosterRow]{Line: t.lines[i]}
		res.Value, res.Err = t.rosterRow(row)
		out = append(out, res)
	}
	return out, nil
}

func (t *table) rosterRow(row []string) (RosterRow, error) {
	if row == nil {
		return RosterRow{}, errBadQuoting
	}
	id := t.get(row, "id")
	if err := required("id", id); err != nil {
		return RosterRow{}, err
	}
	start, err := parseDateField("start", t.get(row, "start"))
	if err != nil {
		return RosterRow{}, err
	}
	end, err := parseDateField("end", t.get(row, "end"))
	if err != nil {
		return RosterRow{}, err
	}
	if end.Before(start) {
		return RosterRow{}, generic.ErrInvalidPeriod
	}
	rr := RosterRow{ID: audit.ParticipantID(id), Name: t.get(row, "name"), Start: start, End: end}
	if rr.Name == "" {
		rr.Name = id
	}
	for _, k := range strings.Split(t.get(row, "owner_keys"), ";") {
		if k = strings.TrimSpace(k); k != "" {
			rr.OwnerKeys = append(rr.OwnerKeys, audit.OwnerKey(k))
		}
	}
	return rr, nil
}

// ParseVacations reads vacations.csv.
func (f *Factory) ParseVacations(r io.Reader) ([]Result[audit.Vacation], error) {
	t, err := readTable(r, "owner_key", "start", "end")
	if err != nil {
		return nil, err
	}
	out := make([]Result[audit.Vacation], 0, len(t.rows))
	for i, row := range t.rows {
		res := Result[audit.Vacation]{Line: t.lines[i]}
		res.Value, res.Err = t.vacationRow(row)
		out = append(out, res)
	}
	return out, nil
}

func (t *table) vacationRow(row []string) (audit.Vacation, error) {
	if row == nil {
		return audit.Vacation{}, errBadQuoting
	}
	owner := t.get(row, "owner_key")
	if err := required("owner_key", owner); err != nil {
		return audit.Vacation{}, err
	}
	start, err := parseDateField("start", t.get(row, "start"))
	if err != nil {
		return audit.Vacation{}, err
	}
	end, err := parseDateField("end", t.get(row, "end"))
	if err != nil {
		return audit.Vacation{}, err
	}
	padding, err := generic.ParsePadding(t.get(row, "padding"))
	if err != nil {
		return audit.Vacation{}, err
	}
	if end.Before(start) {
		return audit.Vacation{}, generic.ErrInvalidPeriod
	}
	return audit.Vacation{OwnerKey: audit.OwnerKey(owner), Start: start, End: end, Padding: padding}, nil
}

// ParseSubmissions reads submissions.csv. Header and body are hashed, never
// kept whole; only the trimmed header text survives for literal matching.
func (f *Factory) ParseSubmissions(r io.Reader) ([]Result[audit.Submission], error) {
	t, err := readTable(r, "owner_key", "post_id", "timestamp")
	if err != nil {
		return nil, err
	}
	out := make([]Result[audit.Submission], 0, len(t.rows))
	for i, row := range t.rows {
		res := Result[audit.Submission]{Line: t.lines[i]}
		res.Value, res.Err = f.submissionRow(t, row)
		out = append(out, res)
	}
	return out, nil
}

func (f *Factory) submissionRow(t *table, row []string) (audit.Submission, error) {
	if row == nil {
		return audit.Submission{}, errBadQuoting
	}
	owner := t.get(row, "owner_key")
	if err := required("owner_key", owner); err != nil {
		return audit.Submission{}, err
	}
	post := t.get(row, "post_id")
	if err := required("post_id", post); err != nil {
		return audit.Submission{}, err
	}
	raw := t.get(row, "timestamp")
	at, err := generic.ParseTimestamp(raw)
	if err != nil {
		return audit.Submission{}, &generic.InvalidValueError{Field: "timestamp", Value: raw, Err: err}
	}
	header := t.get(row, "header")
	body := t.get(row, "body")
	return audit.Submission{
		OwnerKey:   audit.OwnerKey(owner),
		PostID:     post,
		Obligation: f.ObligationFor(header),
		Submitted:  at.UTC().Truncate(time.Second),
		Header:     header,
		HeaderHash: audit.Hash(header),
		BodyHash:   audit.Hash(body),
	}, nil
}

// ParseReviews reads reviews.csv. Columns after "type" are positional
// params, whatever the header calls them.
func (f *Factory) ParseReviews(r io.Reader) ([]Result[review.Review], error) {
	t, err := readTable(r, "id", "type")
	if err != nil {
		return nil, err
	}
	typeCol := t.columns["type"]
	out := make([]Result[review.Review], 0, len(t.rows))
	for i, row := range t.rows {
		res := Result[review.Review]{Line: t.lines[i]}
		res.Value, res.Err = t.reviewRow(row, typeCol)
		out = append(out, res)
	}
	return out, nil
}

func (t *table) reviewRow(row []string, typeCol int) (review.Review, error) {
	if row == nil {
		return review.Review{}, errBadQuoting
	}
	rv := review.Review{
		ID:      t.get(row, "id"),
		Comment: t.get(row, "comment"),
		Type:    review.Type(t.get(row, "type")),
	}
	if err := required("id", rv.ID); err != nil {
		return review.Review{}, err
	}
	if err := required("type", string(rv.Type)); err != nil {
		return review.Review{}, err
	}
	if d := t.get(row, "date"); d != "" {
		tp, err := parseDateField("date", d)
		if err != nil {
			return review.Review{}, err
		}
		rv.Date = tp
	}
	if typeCol+1 < len(row) {
		params := row[typeCol+1:]
		// trailing empty cells are padding from wider rows
		for len(params) > 0 && strings.TrimSpace(params[len(params)-1]) == "" {
			params = params[:len(params)-1]
		}
		for _, p := range params {
			rv.Params = append(rv.Params, strings.TrimSpace(p))
		}
	}
	return rv, nil
}

var errBadQuoting = errors.New("unparseable csv row")
