/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for API communication. Participant,
  obligation, error and review bodies reuse report's entry types so the
  API and report.json agree field for field.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - report/report.go: entry types
*/
package api

import (
	"time"

	"github.com/andykuo1/progress-auditor-sub001/report"
	"github.com/andykuo1/progress-auditor-sub001/store/sqlite"
)

// RunDTO summarises one stored run.
type RunDTO struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	GeneratedAt      string `json:"generated_at"`
	ParticipantCount int    `json:"participant_count"`
	OpenErrors       int    `json:"open_errors"`
	CreatedAt        string `json:"created_at"`
}

// TotalsDTO is the cohort-wide slip total of a run.
type TotalsDTO struct {
	Used      string `json:"used"`
	Remaining string `json:"remaining"`
	Max       string `json:"max"`
}

// RunDetailResponse is a run with its full report document.
type RunDetailResponse struct {
	Run      RunDTO           `json:"run"`
	Totals   TotalsDTO        `json:"totals"`
	Document *report.Document `json:"document"`
}

// ParticipantsResponse lists participants of a run.
type ParticipantsResponse struct {
	RunID        string                    `json:"run_id"`
	Participants []report.ParticipantEntry `json:"participants"`
}

// ErrorsResponse lists the ledger of a run.
type ErrorsResponse struct {
	RunID  string              `json:"run_id"`
	Open   int                 `json:"open"`
	Errors []report.ErrorEntry `json:"errors"`
}

// ReviewsResponse lists the reviews of a run.
type ReviewsResponse struct {
	RunID   string               `json:"run_id"`
	Reviews []report.ReviewEntry `json:"reviews"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toRunDTO(r sqlite.RunRecord) RunDTO {
	return RunDTO{
		ID:               r.ID,
		State:            r.State,
		GeneratedAt:      r.GeneratedAt.Format(time.RFC3339),
		ParticipantCount: r.ParticipantCount,
		OpenErrors:       r.OpenErrors,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}
