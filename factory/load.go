package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

// Inputs names the files of one run. Empty paths are skipped, except the
// roster which is required.
type Inputs struct {
	Roster      string
	Vacations   string
	Submissions string
	Reviews     string
}

// Loaded is what a load produced besides the database contents.
type Loaded struct {
	Reviews []review.Review
	// Problems are per-row failures, each a *RowError.
	Problems []error
}

// Loader fills an audit.Database from input files.
type Loader struct {
	factory *Factory
	logger  *slog.Logger
}

func NewLoader(f *Factory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{factory: f, logger: logger.With("component", "factory")}
}

// Load parses every input and inserts the good rows. A file that cannot be
// opened or lacks required columns is fatal; bad rows are not.
func (l *Loader) Load(db *audit.Database, in Inputs) (*Loaded, error) {
	if in.Roster == "" {
		return nil, errors.New("roster path is required")
	}
	out := &Loaded{}

	if err := withFile(in.Roster, func(f *os.File) error {
		rows, err := l.factory.ParseRoster(f)
		if err != nil {
			return err
		}
		out.Problems = append(out.Problems, LoadRoster(db, in.Roster, rows)...)
		return nil
	}); err != nil {
		return nil, err
	}

	if in.Vacations != "" {
		if err := withFile(in.Vacations, func(f *os.File) error {
			rows, err := l.factory.ParseVacations(f)
			if err != nil {
				return err
			}
			out.Problems = append(out.Problems, LoadVacations(db, in.Vacations, rows)...)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if in.Submissions != "" {
		if err := withFile(in.Submissions, func(f *os.File) error {
			rows, err := l.factory.ParseSubmissions(f)
			if err != nil {
				return err
			}
			out.Problems = append(out.Problems, LoadSubmissions(db, in.Submissions, rows)...)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if in.Reviews != "" {
		if err := withFile(in.Reviews, func(f *os.File) error {
			rows, err := l.factory.ParseReviews(f)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r.Err == nil {
					out.Reviews = append(out.Reviews, r.Value)
				}
			}
			out.Problems = append(out.Problems, Errors(in.Reviews, rows)...)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for _, p := range out.Problems {
		l.logger.Warn("skipped input row", "error", p)
	}
	l.logger.Info("inputs loaded",
		"participants", len(db.Participants()),
		"submissions", len(db.Submissions()),
		"vacations", len(db.Vacations()),
		"reviews", len(out.Reviews),
		"problems", len(out.Problems))
	return out, nil
}

func withFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// =============================================================================
// INSERTS
// =============================================================================

// LoadRoster inserts parsed roster rows. Parse failures and duplicate ids
// come back as RowErrors.
func LoadRoster(db *audit.Database, file string, rows []Result[RosterRow]) []error {
	errs := Errors(file, rows)
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		v := r.Value
		if _, err := db.InsertParticipant(v.ID, v.Name, v.OwnerKeys, v.Start, v.End); err != nil {
			errs = append(errs, &RowError{File: file, Line: r.Line, Err: err})
		}
	}
	return errs
}

func LoadVacations(db *audit.Database, file string, rows []Result[audit.Vacation]) []error {
	errs := Errors(file, rows)
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		if _, err := db.InsertVacation(r.Value); err != nil {
			errs = append(errs, &RowError{File: file, Line: r.Line, Err: err})
		}
	}
	return errs
}

func LoadSubmissions(db *audit.Database, file string, rows []Result[audit.Submission]) []error {
	errs := Errors(file, rows)
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		if _, err := db.InsertSubmission(r.Value); err != nil {
			errs = append(errs, &RowError{File: file, Line: r.Line, Err: err})
		}
	}
	return errs
}
