/*
handlers.go - HTTP API handlers for the woodland officer review

PURPOSE:
  Exposes the reconciliation engine and review tracker via REST API. Handles
  HTTP request/response and JSON serialization, and delegates everything else
  to the review package.

ENDPOINTS:
  Confirmed felling and restocking (under /api/applications/{id}):
    GET    /confirmed                              Grouped, ordered confirmed details
    POST   /confirmed/import                       Import the proposed plan
    PUT    /confirmed                              Replace felling per compartment
    DELETE /confirmed                              Reset confirmed details and review state
    POST   /confirmed/compartments/{cid}/felling   Add a reviewer felling detail
    PUT    /confirmed/felling/{did}                Amend one felling detail
    DELETE /confirmed/felling/{did}                Delete one felling detail
    POST   /confirmed/felling/{did}/revert         Revert one detail to its proposal
    POST   /confirmed/proposed/{pid}/revert        Revert by proposed detail id
    PUT    /confirmed/felling/{did}/restocking     Save one restocking detail

  Review state (under /api/applications/{id}):
    GET    /review                                 Review state
    PUT    /review/felling-and-restocking          Section complete flag
    PUT    /review/priority-open-habitat           Priority open habitat answer
    PUT    /review/tree-health                     Tree health check
    PUT    /review/designations                    Designations section complete flag
    PUT    /review/designations/{cid}              Designations of one compartment
    PUT    /review/pw14                            PW14 checklist
    PUT    /review/conditional                     Conditional status
    POST   /review/complete                        Complete the review

  Audit:
    GET    /audit?limit=N&type=T                   Audit events for the application

IDENTITY:
  Mutations require the acting user's id in the X-User-ID header.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Application, compartment or detail not found
  - 409: Confirmed details already exist, or the review is complete
  - 500: Persistence and unexpected failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forestry/woodland-review/logger"
	"github.com/forestry/woodland-review/review"
)

// UserHeader carries the acting user's id.
const UserHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *review.Engine
	Tracker *review.Tracker
	Audit   review.AuditLog
	log     *slog.Logger
}

// NewHandler creates a handler. audit may be nil, which disables /audit.
func NewHandler(engine *review.Engine, tracker *review.Tracker, audit review.AuditLog) *Handler {
	return &Handler{
		Engine:  engine,
		Tracker: tracker,
		Audit:   audit,
		log:     logger.Component("api"),
	}
}

// =============================================================================
// CONFIRMED FELLING AND RESTOCKING
// =============================================================================

// GetConfirmed returns the confirmed details grouped by compartment.
// GET /api/applications/{id}/confirmed
func (h *Handler) GetConfirmed(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	groups, err := h.Engine.GetConfirmedFellingAndRestocking(r.Context(), appID)
	if err != nil {
		h.writeOperationError(w, "Failed to get confirmed felling and restocking", err)
		return
	}
	writeJSON(w, http.StatusOK, toCompartmentDetailsDTOs(groups))
}

// ImportProposed copies the proposed plan into the confirmed working copy.
// POST /api/applications/{id}/confirmed/import
func (h *Handler) ImportProposed(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ImportRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	err := h.Engine.ImportProposedToConfirmed(r.Context(), appID, userID, review.ImportOptions{Reimport: req.Reimport})
	if err != nil {
		h.writeOperationError(w, "Failed to import proposed felling and restocking", err)
		return
	}
	h.GetConfirmed(w, r)
}

// SaveChanges replaces the felling of each listed compartment.
// PUT /api/applications/{id}/confirmed
func (h *Handler) SaveChanges(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SaveChangesRequest
	if !decode(w, r, &req) {
		return
	}
	changes := make([]review.CompartmentChanges, len(req.Compartments))
	for i, c := range req.Compartments {
		changes[i].CompartmentID = c.CompartmentID
		for _, dto := range c.Felling {
			f, species := fromFellingDTO(dto)
			f.Species = species
			changes[i].Felling = append(changes[i].Felling, f)
		}
	}
	if err := h.Engine.SaveChangesToConfirmedFellingAndRestocking(r.Context(), appID, userID, changes); err != nil {
		h.writeOperationError(w, "Failed to save confirmed felling and restocking", err)
		return
	}
	h.GetConfirmed(w, r)
}

// ResetConfirmed discards the confirmed details and the review state.
// DELETE /api/applications/{id}/confirmed
func (h *Handler) ResetConfirmed(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.ResetConfirmedFellingAndRestocking(r.Context(), appID, userID); err != nil {
		h.writeOperationError(w, "Failed to reset confirmed felling and restocking", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddFelling adds a reviewer felling detail to a compartment.
// POST /api/applications/{id}/confirmed/compartments/{compartmentID}/felling
func (h *Handler) AddFelling(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	compartmentID, ok := pathID(w, r, "compartmentID")
	if !ok {
		return
	}
	var dto FellingDTO
	if !decode(w, r, &dto) {
		return
	}
	detail, species := fromFellingDTO(dto)
	id, err := h.Engine.AddNewConfirmedFellingDetails(r.Context(), appID, userID, compartmentID, detail, species)
	if err != nil {
		h.writeOperationError(w, "Failed to add confirmed felling details", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: id})
}

// SaveFelling amends one felling detail and its species.
// PUT /api/applications/{id}/confirmed/felling/{detailID}
func (h *Handler) SaveFelling(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	var dto FellingDTO
	if !decode(w, r, &dto) {
		return
	}
	detail, species := fromFellingDTO(dto)
	detail.ID = detailID
	if err := h.Engine.SaveChangesToConfirmedFellingDetails(r.Context(), appID, userID, detail, species); err != nil {
		h.writeOperationError(w, "Failed to save confirmed felling details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFelling deletes one felling detail.
// DELETE /api/applications/{id}/confirmed/felling/{detailID}
func (h *Handler) DeleteFelling(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	if err := h.Engine.DeleteConfirmedFellingDetail(r.Context(), appID, userID, detailID); err != nil {
		h.writeOperationError(w, "Failed to delete confirmed felling details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevertFelling restores one felling detail from its proposal.
// POST /api/applications/{id}/confirmed/felling/{detailID}/revert
func (h *Handler) RevertFelling(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	if err := h.Engine.RevertConfirmedFellingDetail(r.Context(), appID, userID, detailID); err != nil {
		h.writeOperationError(w, "Failed to revert confirmed felling details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevertProposed restores the confirmed detail imported from a proposed detail.
// POST /api/applications/{id}/confirmed/proposed/{proposedID}/revert
func (h *Handler) RevertProposed(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	proposedID, ok := pathID(w, r, "proposedID")
	if !ok {
		return
	}
	if err := h.Engine.RevertConfirmedFellingDetailAmendments(r.Context(), appID, userID, proposedID); err != nil {
		h.writeOperationError(w, "Failed to revert confirmed felling details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveRestocking saves one restocking detail of a felling detail.
// PUT /api/applications/{id}/confirmed/felling/{detailID}/restocking
func (h *Handler) SaveRestocking(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	var dto RestockingDTO
	if !decode(w, r, &dto) {
		return
	}
	restocking, species := fromRestockingDTO(dto)
	restocking.FellingDetailID = detailID
	if err := h.Engine.SaveChangesToConfirmedRestockingDetails(r.Context(), appID, userID, restocking, species); err != nil {
		h.writeOperationError(w, "Failed to save confirmed restocking details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REVIEW STATE
// =============================================================================

// GetReviewState returns the woodland officer review state.
// GET /api/applications/{id}/review
func (h *Handler) GetReviewState(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	state, err := h.Tracker.GetReviewState(r.Context(), appID)
	if err != nil {
		h.writeOperationError(w, "Failed to get review state", err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewStateDTO(state))
}

// SetFellingAndRestockingComplete sets the felling and restocking section flag.
// PUT /api/applications/{id}/review/felling-and-restocking
func (h *Handler) SetFellingAndRestockingComplete(w http.ResponseWriter, r *http.Request) {
	var req SectionRequest
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.HandleConfirmedFellingAndRestockingChanges(r.Context(), appID, userID, req.Complete)
	})
}

// SetPriorityOpenHabitat records the priority open habitat answer.
// PUT /api/applications/{id}/review/priority-open-habitat
func (h *Handler) SetPriorityOpenHabitat(w http.ResponseWriter, r *http.Request) {
	var req PriorityOpenHabitatRequest
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.CompletePriorityOpenHabitat(r.Context(), appID, userID, req.IsPriorityOpenHabitat, req.Complete)
	})
}

// SetTreeHealth records the tree health check.
// PUT /api/applications/{id}/review/tree-health
func (h *Handler) SetTreeHealth(w http.ResponseWriter, r *http.Request) {
	var req TreeHealthRequest
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.ConfirmTreeHealthCheck(r.Context(), appID, userID, req.Confirmed)
	})
}

// SetDesignationsComplete sets the designations section flag.
// PUT /api/applications/{id}/review/designations
func (h *Handler) SetDesignationsComplete(w http.ResponseWriter, r *http.Request) {
	var req SectionRequest
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.UpdateApplicationCompartmentDesignationsCompleted(r.Context(), appID, userID, req.Complete)
	})
}

// SetCompartmentDesignations records the designations of one compartment.
// PUT /api/applications/{id}/review/designations/{compartmentID}
func (h *Handler) SetCompartmentDesignations(w http.ResponseWriter, r *http.Request) {
	compartmentID, ok := pathID(w, r, "compartmentID")
	if !ok {
		return
	}
	var req DesignationsDTO
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		d := review.CompartmentDesignations(req)
		d.CompartmentID = compartmentID
		return h.Tracker.UpdateCompartmentDesignations(r.Context(), appID, userID, d)
	})
}

// SetPw14Checks records the PW14 checklist.
// PUT /api/applications/{id}/review/pw14
func (h *Handler) SetPw14Checks(w http.ResponseWriter, r *http.Request) {
	var req Pw14ChecksDTO
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.UpdatePw14Checks(r.Context(), appID, userID, review.Pw14Checks(req))
	})
}

// SetConditionalStatus records the conditional status.
// PUT /api/applications/{id}/review/conditional
func (h *Handler) SetConditionalStatus(w http.ResponseWriter, r *http.Request) {
	var req ConditionalStatusDTO
	h.updateState(w, r, &req, func(appID, userID uuid.UUID) error {
		return h.Tracker.UpdateConditionalStatus(r.Context(), appID, userID, review.ConditionalStatus(req))
	})
}

// CompleteReview completes the woodland officer review.
// POST /api/applications/{id}/review/complete
//
// A failed notification does not fail the request: the completion is
// committed and the failure is reported in notification_error.
func (h *Handler) CompleteReview(w http.ResponseWriter, r *http.Request) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CompleteReviewRequest
	if !decode(w, r, &req) {
		return
	}
	completion := review.CompletionRequest{
		RecommendedLicenceDuration:              review.RecommendedLicenceDuration(req.RecommendedLicenceDuration),
		RecommendationForDecisionPublicRegister: req.RecommendationForDecisionPublicRegister,
	}
	if req.CompletedAt != nil {
		completion.CompletedAt = *req.CompletedAt
	}
	outcome, err := h.Tracker.CompleteWoodlandOfficerReview(r.Context(), appID, userID, completion)
	if err != nil {
		h.writeOperationError(w, "Failed to complete woodland officer review", err)
		return
	}
	dto := CompletionDTO{CompletedAt: outcome.CompletedAt, NotificationsSent: outcome.NotificationsSent}
	if outcome.NotificationErr != nil {
		dto.NotificationError = outcome.NotificationErr.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAuditEvents returns the audit trail of an application.
// GET /api/applications/{id}/audit?limit=N&type=T
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotFound, "Audit log is not queryable", nil)
		return
	}
	appID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	filter := review.AuditFilter{EntityID: &appID}
	for _, t := range r.URL.Query()["type"] {
		filter.Types = append(filter.Types, review.AuditEventType(t))
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}
	events, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit events", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEventDTOs(events))
}

// =============================================================================
// HELPERS
// =============================================================================

// updateState decodes req and runs a review state mutation.
func (h *Handler) updateState(w http.ResponseWriter, r *http.Request, req any, fn func(appID, userID uuid.UUID) error) {
	appID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !decode(w, r, req) {
		return
	}
	if err := fn(appID, userID); err != nil {
		h.writeOperationError(w, "Failed to update woodland officer review", err)
		return
	}
	h.GetReviewState(w, r)
}

// actor returns the application id from the path and the user id from the header.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	appID, ok := pathID(w, r, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing "+UserHeader+" header", nil)
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+UserHeader+" header", err)
		return uuid.Nil, uuid.Nil, false
	}
	return appID, userID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps an operation error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, review.ErrConfirmedDetailsExist), errors.Is(err, review.ErrReviewComplete):
		return http.StatusConflict
	case review.IsNotFound(err):
		return http.StatusNotFound
	case review.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeOperationError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(message, "error", err)
	}
	writeError(w, status, message, err)
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
