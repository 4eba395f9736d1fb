/*
Package report renders the outcome of an audit.

OUTPUTS:
  - slips.csv    one row per participant, one column per obligation
                 holding "status:slips"
  - errors.csv   every ledger entry, skipped ones flagged
  - reviews.csv  the reviews of the run, in the same shape the factory
                 reads them back
  - report.json  Document, for tooling and the HTTP API

  Terminal output uses go-pretty tables.

Column order for obligations follows the first participant that has each
obligation, so intro comes before week[1] and weeks stay numeric.
*/
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/andykuo1/progress-auditor-sub001/accounting"
	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the JSON form of a finished run.
type Document struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	State        string             `json:"state"`
	Participants []ParticipantEntry `json:"participants"`
	Errors       []ErrorEntry       `json:"errors"`
	Reviews      []ReviewEntry      `json:"reviews"`
}

type ParticipantEntry struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	WeekCount   int               `json:"week_count"`
	Used        string            `json:"used"`
	Remaining   string            `json:"remaining"`
	Max         string            `json:"max"`
	Mean        string            `json:"mean"`
	Satisfied   int               `json:"satisfied"`
	Missing     int               `json:"missing"`
	Pending     int               `json:"pending"`
	Obligations []ObligationEntry `json:"obligations"`
}

type ObligationEntry struct {
	ID         string `json:"id"`
	Due        string `json:"due"`
	Status     string `json:"status"`
	Slips      int    `json:"slips"`
	Submission string `json:"submission,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
}

type ErrorEntry struct {
	ID      string   `json:"id"`
	Tag     string   `json:"tag"`
	Message string   `json:"message"`
	Options []string `json:"options,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

type ReviewEntry struct {
	ID      string   `json:"id"`
	Date    string   `json:"date,omitempty"`
	Comment string   `json:"comment,omitempty"`
	Type    string   `json:"type"`
	Params  []string `json:"params"`
}

// Build assembles a Document from the database and the accounting output.
func Build(db *audit.Database, summaries []accounting.Summary, reviews []review.Review, state string, at time.Time) *Document {
	doc := &Document{
		GeneratedAt:  at.UTC(),
		State:        state,
		Participants: make([]ParticipantEntry, 0, len(summaries)),
		Errors:       ErrorEntries(db),
		Reviews:      ReviewEntries(reviews),
	}
	for _, s := range summaries {
		doc.Participants = append(doc.Participants, ParticipantEntryFor(db, s))
	}
	return doc
}

// ParticipantEntryFor flattens one summary with its obligations.
func ParticipantEntryFor(db *audit.Database, s accounting.Summary) ParticipantEntry {
	e := ParticipantEntry{
		ID:          string(s.Participant),
		Name:        s.Name,
		WeekCount:   s.WeekCount,
		Used:        s.Used.String(),
		Remaining:   s.Remaining.String(),
		Max:         s.Max.String(),
		Mean:        s.Mean.String(),
		Satisfied:   s.Satisfied,
		Missing:     s.Missing,
		Pending:     s.Pending,
		Obligations: []ObligationEntry{},
	}
	for _, o := range db.Obligations(s.Participant) {
		e.Obligations = append(e.Obligations, ObligationEntry{
			ID:         string(o.ID),
			Due:        o.Due.String(),
			Status:     o.State.Status.String(),
			Slips:      o.State.Slips,
			Submission: string(o.State.Submission),
			Forced:     o.State.Forced,
		})
	}
	return e
}

func ErrorEntries(db *audit.Database) []ErrorEntry {
	out := []ErrorEntry{}
	for _, e := range db.Errors.All() {
		out = append(out, ErrorEntry{
			ID:      e.ID,
			Tag:     string(e.Tag),
			Message: e.Message,
			Options: e.Options,
			Skipped: db.Errors.IsSkipped(e.ID),
		})
	}
	return out
}

func ReviewEntries(reviews []review.Review) []ReviewEntry {
	out := make([]ReviewEntry, 0, len(reviews))
	for _, r := range reviews {
		e := ReviewEntry{ID: r.ID, Comment: r.Comment, Type: string(r.Type), Params: r.Params}
		if !r.Date.IsZero() {
			e.Date = r.Date.String()
		}
		if e.Params == nil {
			e.Params = []string{}
		}
		out = append(out, e)
	}
	return out
}

// WriteJSON encodes doc with indentation.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// =============================================================================
// CSV
// =============================================================================

// ObligationColumns returns the obligation ids across all participants in
// first-seen order.
func ObligationColumns(db *audit.Database) []audit.ObligationID {
	var cols []audit.ObligationID
	seen := make(map[audit.ObligationID]bool)
	for _, p := range db.Participants() {
		for _, o := range db.Obligations(p.ID) {
			if !seen[o.ID] {
				seen[o.ID] = true
				cols = append(cols, o.ID)
			}
		}
	}
	return cols
}

// WriteSlips writes slips.csv. Cells for obligations a participant does
// not have are empty.
func WriteSlips(w io.Writer, db *audit.Database, summaries []accounting.Summary) error {
	cols := ObligationColumns(db)
	cw := csv.NewWriter(w)

	header := []string{"id", "name", "used", "remaining", "max", "mean", "satisfied", "missing", "pending"}
	for _, c := range cols {
		header = append(header, string(c))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range summaries {
		row := []string{
			string(s.Participant),
			s.Name,
			s.Used.String(),
			s.Remaining.String(),
			s.Max.String(),
			s.Mean.String(),
			strconv.Itoa(s.Satisfied),
			strconv.Itoa(s.Missing),
			strconv.Itoa(s.Pending),
		}
		for _, c := range cols {
			o, ok := db.Obligation(audit.ObligationKey{Participant: s.Participant, Obligation: c})
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprintf("%s:%d", o.State.Status, o.State.Slips))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteErrors writes errors.csv.
func WriteErrors(w io.Writer, db *audit.Database) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "tag", "message", "options", "skipped"}); err != nil {
		return err
	}
	for _, e := range db.Errors.All() {
		row := []string{e.ID, string(e.Tag), e.Message, strings.Join(e.Options, ";"), strconv.FormatBool(db.Errors.IsSkipped(e.ID))}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReviews writes reviews in the layout factory.ParseReviews reads.
func WriteReviews(w io.Writer, reviews []review.Review) error {
	width := 0
	for _, r := range reviews {
		if len(r.Params) > width {
			width = len(r.Params)
		}
	}
	if width == 0 {
		width = 1
	}
	header := []string{"id", "date", "comment", "type"}
	for i := 1; i <= width; i++ {
		header = append(header, fmt.Sprintf("param%d", i))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range reviews {
		date := ""
		if !r.Date.IsZero() {
			date = r.Date.String()
		}
		row := append([]string{r.ID, date, r.Comment, string(r.Type)}, r.Params...)
		for len(row) < len(header) {
			row = append(row, "")
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAll writes every output file into dir, creating it if needed.
func WriteAll(dir string, db *audit.Database, doc *Document, summaries []accounting.Summary, reviews []review.Review) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"slips.csv", func(w io.Writer) error { return WriteSlips(w, db, summaries) }},
		{"errors.csv", func(w io.Writer) error { return WriteErrors(w, db) }},
		{"reviews.csv", func(w io.Writer) error { return WriteReviews(w, reviews) }},
		{"report.json", func(w io.Writer) error { return WriteJSON(w, doc) }},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// =============================================================================
// TERMINAL
// =============================================================================

// SummaryTable prints one row per participant.
func SummaryTable(w io.Writer, participants []ParticipantEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Weeks", "Used", "Remaining", "Max", "Mean", "Satisfied", "Missing", "Pending"})
	for _, p := range participants {
		tw.AppendRow(table.Row{p.ID, p.Name, p.WeekCount, p.Used, p.Remaining, p.Max, p.Mean, p.Satisfied, p.Missing, p.Pending})
	}
	tw.Render()
}

// ErrorTable prints ledger entries. Skipped entries are included and marked.
func ErrorTable(w io.Writer, errs []ErrorEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Tag", "Message", "Options", "Skipped"})
	for _, e := range errs {
		tw.AppendRow(table.Row{e.ID, e.Tag, e.Message, strings.Join(e.Options, ", "), e.Skipped})
	}
	tw.Render()
}

// ReviewTable prints reviews with their params joined.
func ReviewTable(w io.Writer, reviews []ReviewEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Date", "Type", "Params", "Comment"})
	for _, r := range reviews {
		tw.AppendRow(table.Row{r.ID, r.Date, r.Type, strings.Join(r.Params, " "), r.Comment})
	}
	tw.Render()
}
