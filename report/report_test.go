package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andykuo1/progress-auditor-sub001/accounting"
	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/factory"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/report"
	"github.com/andykuo1/progress-auditor-sub001/resolve"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// audited is two participants of different lengths, resolved and accounted.
func audited(t *testing.T) (*audit.Database, []accounting.Summary) {
	t.Helper()
	date := func(s string) generic.TimePoint {
		tp, err := generic.ParseDate(s)
		require.NoError(t, err)
		return tp
	}
	db := audit.NewDatabase(audit.Options{})
	_, err := db.InsertParticipant("p1", "Pat", nil, date("2024-01-01"), date("2024-01-20"))
	require.NoError(t, err)
	_, err = db.InsertParticipant("p2", "Sam", nil, date("2024-01-01"), date("2024-01-13"))
	require.NoError(t, err)
	_, err = db.InsertSubmission(audit.Submission{OwnerKey: "p1", PostID: "a", Obligation: "week[1]", Submitted: time.Date(2024, 1, 9, 13, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = db.InsertSubmission(audit.Submission{OwnerKey: "ghost", PostID: "b", Obligation: "week[1]", Submitted: time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, db.GenerateObligations())

	res := resolve.DefaultPipeline(nil, generic.LatestZone).Run(db)
	return db, accounting.NewEngine(0, nil, nil).Account(db, res, now)
}

func TestWriteSlips(t *testing.T) {
	db, sums := audited(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteSlips(&buf, db, sums))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name", "used", "remaining", "max", "mean", "satisfied", "missing", "pending", "week[1]", "week[2]", "week[3]"}, rows[0])

	// p1: week one two days late, the rest missing
	assert.Equal(t, "p1", rows[1][0])
	assert.Equal(t, "satisfied:2", rows[1][9])
	assert.True(t, strings.HasPrefix(rows[1][10], "missing:"))

	// p2 has no week three
	assert.Equal(t, "p2", rows[2][0])
	assert.Equal(t, "", rows[2][11])
}

func TestWriteErrors(t *testing.T) {
	db, _ := audited(t)
	require.NotEmpty(t, db.Errors.All())
	db.Errors.Skip(db.Errors.All()[0].ID)

	var buf bytes.Buffer
	require.NoError(t, report.WriteErrors(&buf, db))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "add-owner-alias;ignore-submissions-by-owner", rows[1][3])
	assert.Equal(t, "true", rows[1][4])
}

func TestWriteReviews_RoundTrip(t *testing.T) {
	// GIVEN: Reviews of different widths
	d, _ := generic.ParseDate("2024-02-01")
	in := []review.Review{
		{ID: "r1", Date: d, Comment: "alias, with comma", Type: review.TypeAddOwnerAlias, Params: []string{"p1", "pat@c"}},
		{ID: "r2", Type: review.TypeForceObligationStatus, Params: []string{"p1", "week[2]", "satisfied", "0"}},
		{ID: "r3", Type: review.TypeSkipOneError, Params: []string{"abc"}},
	}

	// WHEN: Written then read back by the factory
	var buf bytes.Buffer
	require.NoError(t, report.WriteReviews(&buf, in))
	f, err := factory.New("")
	require.NoError(t, err)
	rows, err := f.ParseReviews(&buf)
	require.NoError(t, err)

	// THEN: Identical reviews
	require.Len(t, rows, 3)
	for i, r := range rows {
		require.NoError(t, r.Err)
		assert.Equal(t, in[i].ID, r.Value.ID)
		assert.Equal(t, in[i].Type, r.Value.Type)
		assert.Equal(t, in[i].Params, r.Value.Params)
		assert.Equal(t, in[i].Comment, r.Value.Comment)
	}
	assert.Equal(t, "2024-02-01", rows[0].Value.Date.String())
}

func TestWriteAll(t *testing.T) {
	db, sums := audited(t)
	dir := filepath.Join(t.TempDir(), "out")
	doc := report.Build(db, sums, nil, "aborted", now)

	require.NoError(t, report.WriteAll(dir, db, doc, sums, nil))

	for _, name := range []string{"slips.csv", "errors.csv", "reviews.csv", "report.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var back report.Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "aborted", back.State)
	require.Len(t, back.Participants, 2)
	assert.Len(t, back.Participants[0].Obligations, 3)
	assert.NotNil(t, back.Reviews)
}

func TestTables(t *testing.T) {
	db, sums := audited(t)
	var buf bytes.Buffer

	doc := report.Build(db, sums, nil, "aborted", time.Now())
	report.SummaryTable(&buf, doc.Participants)
	report.ErrorTable(&buf, doc.Errors)

	out := buf.String()
	assert.Contains(t, out, "Pat")
	assert.Contains(t, out, "REMAINING")
	assert.Contains(t, out, "ghost")
}
