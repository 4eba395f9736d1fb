/*
Package factory turns input CSV files into audit records.

PURPOSE:
  Roster, leave, submission and review exports arrive as CSV. The factory
  parses them row by row into plain values and loads the good rows into an
  audit.Database. A bad row never aborts a file: each row yields a
  Result carrying either a value or an error.

FILE FORMATS (header row required, columns matched case-insensitively):
  roster.csv       id,name,owner_keys,start,end        owner_keys is ;-separated
  vacations.csv    owner_key,start,end,padding         padding is "week" or days
  submissions.csv  owner_key,post_id,timestamp,header,body
  reviews.csv      id,date,comment,type,params...      every column after type is a param

  Dates are YYYY-MM-DD. Timestamps are RFC3339 or a bare date.

SUBMISSION BINDING:
  A submission's initial obligation comes from its header. The week
  pattern's first capture group is the week number, so "Week 3 update"
  binds to week[3]. Headers that do not match stay unassigned and are
  left to the resolution pipeline.

SEE ALSO:
  - audit/database.go: where rows are inserted
  - report/csv.go: writes reviews back in the same shape
*/
package factory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// DefaultWeekPattern matches "week 3", "Week-3", "week[3]" and "wk3".
const DefaultWeekPattern = `(?i)\b(?:week|wk)\s*[-#\[]?\s*(\d+)`

// =============================================================================
// RESULTS
// =============================================================================

// Result is one parsed row. Line is the 1-based line in the file, header
// included.
type Result[T any] struct {
	Line  int
	Value T
	Err   error
}

// RowError reports a row that could not be parsed or loaded.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{generic.ErrMalformedRow, e.Err} }

// Errors collects the failed rows of a parse as RowErrors.
func Errors[T any](file string, results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, &RowError{File: file, Line: r.Line, Err: r.Err})
		}
	}
	return errs
}

// =============================================================================
// FACTORY
// =============================================================================

type Factory struct {
	weekPattern *regexp.Regexp
}

// New compiles the week pattern. Empty means DefaultWeekPattern.
func New(weekPattern string) (*Factory, error) {
	if weekPattern == "" {
		weekPattern = DefaultWeekPattern
	}
	re, err := regexp.Compile(weekPattern)
	if err != nil {
		return nil, &generic.InvalidValueError{Field: "week pattern", Value: weekPattern, Err: err}
	}
	if re.NumSubexp() < 1 {
		return nil, &generic.InvalidValueError{Field: "week pattern", Value: weekPattern, Err: errors.New("needs a capture group for the week number")}
	}
	return &Factory{weekPattern: re}, nil
}

// ObligationFor maps a submission header to its initial obligation id.
func (f *Factory) ObligationFor(header string) audit.ObligationID {
	m := f.weekPattern.FindStringSubmatch(header)
	if m == nil {
		return audit.Unassigned
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return audit.Unassigned
	}
	return audit.WeekObligation(n)
}

// =============================================================================
// CSV PLUMBING
// =============================================================================

// table is a CSV file with its header indexed by lower-cased column name.
type table struct {
	columns map[string]int
	rows    [][]string
	lines   []int
}

func readTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file: header row required")
		}
		return nil, err
	}
	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// keep going; the row becomes an error result
				t.rows = append(t.rows, nil)
				t.lines = append(t.lines, parseErr.StartLine)
				continue
			}
			return nil, err
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func (t *table) get(row []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDateField(field, value string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(value)
	if err != nil {
		return generic.TimePoint{}, &generic.InvalidValueError{Field: field, Value: value, Err: err}
	}
	return tp, nil
}

func required(field, value string) error {
	if value == "" {
		return &generic.InvalidValueError{Field: field, Value: value, Err: errors.New("required")}
	}
	return nil
}
