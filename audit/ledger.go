/*
ledger.go - Append-only error ledger

PURPOSE:
  Passes never abort a run on bad data. They record an Error here and
  keep going, so one broken record cannot block auditing the rest of the
  cohort. The correction loop reads the ledger to decide whether the run
  is clean and to offer remediation.

INVARIANTS:
  1. APPEND-ONLY: entries are never edited or removed during a pass
  2. DETERMINISTIC IDS: an entry's id comes from its tag and a stable key,
     never from row order, so a review can point at it across runs
  3. DEDUPLICATED: recording the same id twice keeps the first entry

SKIPPING:
  A skip-one-error review hides an entry from Open() without deleting it.
  All() still returns it for reports.

SEE ALSO:
  - generic/errors.go: Go error values
  - review/handlers.go: skip-one-error
*/
package audit

import (
	"fmt"
	"strings"
)

// Tag names the subsystem an error came from.
type Tag string

const (
	TagInput    Tag = "input"
	TagDatabase Tag = "database"
	TagSchedule Tag = "schedule"
	TagResolve  Tag = "resolve"
	TagReview   Tag = "review"
)

// Error is one ledger entry. Options lists the review types that could fix
// it; Detail is free-form diagnostic text.
type Error struct {
	ID      string
	Tag     Tag
	Message string
	Options []string
	Detail  []string
}

func (e Error) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.ID, e.Tag, e.Message)
}

// =============================================================================
// ERROR LEDGER
// =============================================================================

type ErrorLedger struct {
	entries []Error
	index   map[string]int
	skipped map[string]bool
}

func NewErrorLedger() *ErrorLedger {
	return &ErrorLedger{
		index:   make(map[string]int),
		skipped: make(map[string]bool),
	}
}

// Record appends an error keyed by (tag, key) and returns it. A second
// record with the same key returns the existing entry.
func (l *ErrorLedger) Record(tag Tag, key, message string, options []string, detail ...string) Error {
	id := NewErrorID(tag, key)
	if i, ok := l.index[id]; ok {
		return l.entries[i]
	}
	e := Error{
		ID:      id,
		Tag:     tag,
		Message: message,
		Options: append([]string(nil), options...),
		Detail:  append([]string(nil), detail...),
	}
	l.index[id] = len(l.entries)
	l.entries = append(l.entries, e)
	return e
}

// Skip hides an entry from Open. Unknown ids are ignored: the data that
// raised the error may simply be fixed by now.
func (l *ErrorLedger) Skip(id string) bool {
	if _, ok := l.index[id]; !ok {
		return false
	}
	l.skipped[id] = true
	return true
}

// Get returns the entry with the given id.
func (l *ErrorLedger) Get(id string) (Error, bool) {
	i, ok := l.index[id]
	if !ok {
		return Error{}, false
	}
	return l.entries[i], true
}

// All returns every entry, skipped or not, in record order.
func (l *ErrorLedger) All() []Error {
	return append([]Error(nil), l.entries...)
}

// Open returns the entries that still need attention.
func (l *ErrorLedger) Open() []Error {
	var open []Error
	for _, e := range l.entries {
		if !l.skipped[e.ID] {
			open = append(open, e)
		}
	}
	return open
}

// IsSkipped reports whether an entry was skipped by review.
func (l *ErrorLedger) IsSkipped(id string) bool { return l.skipped[id] }

func (l *ErrorLedger) Len() int { return len(l.entries) }

// Clear drops every entry. Only a database reset calls this.
func (l *ErrorLedger) Clear() {
	l.entries = nil
	l.index = make(map[string]int)
	l.skipped = make(map[string]bool)
}

func (l *ErrorLedger) String() string {
	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
