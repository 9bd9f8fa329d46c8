package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	router     *service.ApprovalRouter
	escalation *service.EscalationService
	override   *service.OverrideService
	health     Pinger
	metrics    http.Handler
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. health and metrics may be nil.
func NewHTTPHandler(router *service.ApprovalRouter, escalation *service.EscalationService, override *service.OverrideService, health Pinger, metrics http.Handler, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		router:     router,
		escalation: escalation,
		override:   override,
		health:     health,
		metrics:    metrics,
		log:        log,
	}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	mux.HandleFunc("POST /api/v1/requisitions/{id}/process", h.ProcessRequisition)
	mux.HandleFunc("POST /api/v1/requisitions/{id}/override", h.ProcessOverride)
	mux.HandleFunc("GET /api/v1/requisitions/{id}/budget", h.ValidateBudget)
	mux.HandleFunc("GET /api/v1/requisitions/{id}/history", h.GetApprovalHistory)
	mux.HandleFunc("POST /api/v1/approvals/{id}/decide", h.DecideApproval)
	mux.HandleFunc("POST /api/v1/approvals/{id}/delegate", h.DelegateApproval)
	mux.HandleFunc("GET /api/v1/approvals/pending", h.GetPendingApprovals)
	mux.HandleFunc("POST /api/v1/escalations/run", h.ProcessEscalations)
	return mux
}

// Health reports liveness and, when configured, store reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// ProcessRequisition handles routing requests
func (h *HTTPHandler) ProcessRequisition(w http.ResponseWriter, r *http.Request) {
	res, err := h.router.ProcessRequisition(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routingToMap(res))
}

type decideBody struct {
	ActorID  string `json:"actor_id"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// DecideApproval handles approve/reject requests
func (h *HTTPHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	var body decideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.ActorID == "" {
		body.ActorID = r.Header.Get("X-User-ID")
	}

	res, err := h.router.DecideApproval(r.Context(), service.DecideRequest{
		ApprovalID: r.PathValue("id"),
		ActorID:    body.ActorID,
		Approved:   body.Approved,
		Notes:      body.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionToMap(res))
}

type delegateBody struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Reason     string `json:"reason"`
}

// DelegateApproval handles delegation requests
func (h *HTTPHandler) DelegateApproval(w http.ResponseWriter, r *http.Request) {
	var body delegateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.FromUserID == "" {
		body.FromUserID = r.Header.Get("X-User-ID")
	}

	rec, err := h.router.DelegateApproval(r.Context(), service.DelegateRequest{
		ApprovalID: r.PathValue("id"),
		FromUserID: body.FromUserID,
		ToUserID:   body.ToUserID,
		Reason:     body.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToMap(rec))
}

type overrideBody struct {
	CaptainID string `json:"captain_id"`
	Reason    string `json:"reason"`
}

// ProcessOverride handles emergency override requests
func (h *HTTPHandler) ProcessOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.CaptainID == "" {
		body.CaptainID = r.Header.Get("X-User-ID")
	}

	res, err := h.override.ProcessOverride(r.Context(), r.PathValue("id"), service.OverrideRequest{
		CaptainID: body.CaptainID,
		Reason:    body.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overrideToMap(res))
}

// ValidateBudget handles budget check requests
func (h *HTTPHandler) ValidateBudget(w http.ResponseWriter, r *http.Request) {
	check, err := h.router.CheckBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetToMap(check))
}

// GetApprovalHistory handles audit trail requests
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.router.GetApprovalHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditToMap(entries))
}

// GetPendingApprovals handles the approver inbox
func (h *HTTPHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = r.Header.Get("X-User-ID")
	}
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	records, err := h.router.GetPendingApprovals(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalsToMap(records))
}

// ProcessEscalations runs one escalation pass
func (h *HTTPHandler) ProcessEscalations(w http.ResponseWriter, r *http.Request) {
	report, err := h.escalation.ProcessEscalations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escalationToMap(report))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, code, map[string]interface{}{
		"code":    string(errors.CodeOf(err)),
		"message": err.Error(),
	})
}

func httpStatus(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeClassification:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeBudgetExceeded, errors.ErrCodeConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
