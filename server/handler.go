package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veilpost/veilpost/metrics"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/services"
)

// Handler exposes the intake and the report CRUD surface over HTTP.
type Handler struct {
	intake *Intake
	store  services.ReportStore
}

// NewHandler creates the HTTP handler for an intake.
func NewHandler(intake *Intake, store services.ReportStore) *Handler {
	return &Handler{intake: intake, store: store}
}

// RegisterRoutes registers the intake API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/reports", h.handleSubmit)
	r.Get("/api/v1/reports", h.handleList)
	r.Get("/api/v1/reports/{id}", h.handleGet)
	r.Patch("/api/v1/reports/{id}/status", h.handleUpdateStatus)
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ID     string          `json:"id"`
	Status protocol.Status `json:"status"`
}

// StatusUpdateRequest is the moderation collaborator's wire shape.
type StatusUpdateRequest struct {
	Status protocol.Status `json:"status"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, req *http.Request) {
	var sub protocol.Submission
	if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
		metrics.IncSubmissionRejected()
		http.Error(w, "submission failed", http.StatusBadRequest)
		return
	}

	stored, err := h.intake.Process(req.Context(), &sub)
	switch {
	case errors.Is(err, protocol.ErrDuplicateNullifier):
		metrics.IncSubmissionDuplicate()
		http.Error(w, "already submitted this epoch, wait for the next window", http.StatusConflict)
		return
	case err != nil:
		// Deliberately uniform: the submitter must not learn which
		// validation step failed.
		metrics.IncSubmissionRejected()
		http.Error(w, "submission failed", http.StatusBadRequest)
		return
	}

	metrics.IncSubmissionAccepted()
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(&SubmitResponse{ID: stored.ID, Status: stored.Status})
}

func (h *Handler) handleList(w http.ResponseWriter, req *http.Request) {
	reports, err := h.store.ListReports(req.Context())
	if err != nil {
		http.Error(w, "listing failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(reports)
}

func (h *Handler) handleGet(w http.ResponseWriter, req *http.Request) {
	report, err := h.store.GetReport(req.Context(), chi.URLParam(req, "id"))
	if errors.Is(err, services.ErrReportNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(report)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, req *http.Request) {
	var body StatusUpdateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || !body.Status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	err := h.intake.UpdateStatus(req.Context(), chi.URLParam(req, "id"), body.Status)
	if errors.Is(err, services.ErrReportNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
