/*
handlers.go - HTTP API handlers for audit results

PURPOSE:
  Exposes stored audit runs over REST. Handlers only read from the store;
  the one write is TriggerAudit, which delegates to an Auditor.

ENDPOINTS:
  GET    /healthz                    Liveness
  GET    /api/runs                   Runs, newest first (?limit=N)
  GET    /api/runs/latest            Latest run with its document
  GET    /api/runs/{id}              One run with its document
  GET    /api/participants           Participants of the latest run
  GET    /api/participants/{id}      One participant with obligations
  GET    /api/errors                 Ledger of the latest run (?open=true)
  GET    /api/reviews                Reviews of the latest run
  POST   /api/audit                  Re-audit now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid query parameter
  - 404: No such run or participant, or no run stored yet
  - 503: Re-audit requested but no auditor configured
  - 500: Internal errors

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andykuo1/progress-auditor-sub001/report"
	"github.com/andykuo1/progress-auditor-sub001/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Auditor runs a fresh audit and returns the stored run.
type Auditor interface {
	AuditRun(ctx context.Context) (*sqlite.RunRecord, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	// Auditor is optional; without it POST /api/audit answers 503.
	Auditor Auditor
	logger  *slog.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, auditor Auditor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Auditor: auditor, logger: logger.With("component", "api")}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRuns returns stored runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLatestRun returns the latest run with its document.
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	h.writeRunDetail(w, r, run)
}

// GetRun returns one run by id.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	h.writeRunDetail(w, r, run)
}

func (h *Handler) writeRunDetail(w http.ResponseWriter, r *http.Request, run *sqlite.RunRecord) {
	doc, err := h.Store.Document(r.Context(), run)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load run", err)
		return
	}
	totals, err := h.Store.RunTotals(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to total run", err)
		return
	}
	writeJSON(w, http.StatusOK, RunDetailResponse{
		Run: toRunDTO(*run),
		Totals: TotalsDTO{
			Used:      totals.Used.String(),
			Remaining: totals.Remaining.String(),
			Max:       totals.Max.String(),
		},
		Document: doc,
	})
}

// =============================================================================
// LATEST RUN CONTENTS
// =============================================================================

// ListParticipants returns every participant of the latest run.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	participants, err := h.Store.Participants(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list participants", err)
		return
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{RunID: run.ID, Participants: participants})
}

// GetParticipant returns one participant of the latest run.
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := h.latest(w, r)
	if !ok {
		return
	}

	p, err := h.Store.Participant(r.Context(), run.ID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get participant", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Participant not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListErrors returns the ledger of the latest run. ?open=true hides
// skipped entries.
func (h *Handler) ListErrors(w http.ResponseWriter, r *http.Request) {
	onlyOpen := false
	if v := r.URL.Query().Get("open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid open flag", err)
			return
		}
		onlyOpen = b
	}

	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	errs, err := h.Store.Errors(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list errors", err)
		return
	}

	resp := ErrorsResponse{RunID: run.ID, Errors: []report.ErrorEntry{}}
	for _, e := range errs {
		if !e.Skipped {
			resp.Open++
		}
		if onlyOpen && e.Skipped {
			continue
		}
		resp.Errors = append(resp.Errors, e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListReviews returns the reviews applied in the latest run.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	reviews, err := h.Store.Reviews(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reviews", err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewsResponse{RunID: run.ID, Reviews: reviews})
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerAudit re-audits synchronously and returns the new run.
func (h *Handler) TriggerAudit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "No auditor configured", nil)
		return
	}
	run, err := h.Auditor.AuditRun(r.Context())
	if err != nil {
		h.logger.Error("audit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(*run))
}

// =============================================================================
// HELPERS
// =============================================================================

// latest loads the latest run, writing a 404 when there is none.
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*sqlite.RunRecord, bool) {
	run, err := h.Store.LatestRun(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get latest run", err)
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "No audit run stored yet", nil)
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
