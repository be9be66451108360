package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/warmleadnetwork/voice-call-service/internal/carrier"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/internal/services/call"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// CallHandler serves the JSON call-control API.
type CallHandler struct {
	service *call.Service
	repos   repository.RepositoryManager
}

// NewCallHandler creates a new call handler
func NewCallHandler(service *call.Service, repos repository.RepositoryManager) *CallHandler {
	return &CallHandler{service: service, repos: repos}
}

type errorResponse struct {
	Error *domain.CallError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Base().Warn("failed to write json response", zap.Error(err))
	}
}

// writeError maps tagged domain errors onto HTTP statuses. Untagged errors
// are internal.
func writeError(w http.ResponseWriter, err error) {
	var ce *domain.CallError
	if !errors.As(err, &ce) {
		logger.Base().Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: domain.NewCallError("internal", "internal server error"),
		})
		return
	}

	status := http.StatusInternalServerError
	switch ce.Code {
	case domain.ErrCodeInvalidPhoneNumber, domain.ErrCodeSelfCallNotAllowed, domain.ErrCodeNoCallerNumber:
		status = http.StatusBadRequest
	case domain.ErrCodeAgentNotFound, domain.ErrCodeNotFound, domain.ErrCodeNotAvailable:
		status = http.StatusNotFound
	case domain.ErrCodeNoCredentials:
		status = http.StatusServiceUnavailable
	case domain.ErrCodeAuthFailed, domain.ErrCodeCarrierError:
		status = http.StatusBadGateway
	case domain.ErrCodeAlreadyOwned:
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: ce})
}

// InitiateCallRequest is the POST /api/calls body.
type InitiateCallRequest struct {
	PhoneNumber  string              `json:"phone_number"`
	AgentID      string              `json:"agent_id"`
	CallerNumber string              `json:"caller_number,omitempty"`
	AccountSID   string              `json:"account_sid,omitempty"`
	AuthToken    string              `json:"auth_token,omitempty"`
	Options      *domain.CallOptions `json:"options,omitempty"`
}

// InitiateCall places an outbound call.
func (h *CallHandler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewCallError(domain.ErrCodeInvalidPhoneNumber, "invalid request body"))
		return
	}
	if req.PhoneNumber == "" {
		writeError(w, domain.NewCallError(domain.ErrCodeInvalidPhoneNumber, "phone_number is required"))
		return
	}
	if req.AgentID == "" {
		writeError(w, domain.NewCallError(domain.ErrCodeAgentNotFound, "agent_id is required"))
		return
	}

	record, err := h.service.Initiate(r.Context(), call.InitiateParams{
		PhoneNumber:  req.PhoneNumber,
		AgentID:      req.AgentID,
		CallerNumber: req.CallerNumber,
		AccountSID:   req.AccountSID,
		AuthToken:    req.AuthToken,
		Options:      req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// EndCall hangs up an active call.
func (h *CallHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callId"]
	record, err := h.service.EndCall(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListNumbers lists owned numbers, or purchasable ones with ?available=true.
func (h *CallHandler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	numbers, err := h.service.ListNumbers(r.Context(), carrier.NumberFilter{
		AreaCode:  q.Get("area_code"),
		Contains:  q.Get("contains"),
		Available: q.Get("available") == "true",
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"numbers": numbers})
}

// PurchaseNumberRequest is the POST /api/numbers/purchase body.
type PurchaseNumberRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// PurchaseNumber buys one number.
func (h *CallHandler) PurchaseNumber(w http.ResponseWriter, r *http.Request) {
	var req PurchaseNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		writeError(w, domain.NewCallError(domain.ErrCodeInvalidPhoneNumber, "phone_number is required"))
		return
	}
	info, err := h.service.PurchaseNumber(r.Context(), req.PhoneNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// GetCallHistory lists recent calls for an agent.
func (h *CallHandler) GetCallHistory(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	calls, err := h.service.GetCallHistory(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calls": calls})
}

// GetTranscript returns the persisted conversation for a call.
func (h *CallHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["callId"]
	turns, err := h.service.GetTranscript(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transcript": turns})
}

// SendMessageRequest is the POST /api/messages body.
type SendMessageRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// SendMessage sends one text message.
func (h *CallHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" || req.Body == "" {
		writeError(w, domain.NewCallError(domain.ErrCodeInvalidPhoneNumber, "to and body are required"))
		return
	}
	receipt, err := h.service.SendMessage(r.Context(), req.To, req.From, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// Health reports service and storage liveness.
func (h *CallHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.repos.Ping(r.Context()); err != nil {
		logger.Base().Warn("health check: storage unreachable", zap.Error(err))
		status = "degraded"
	}
	writeJSON(w, code, map[string]string{"status": status})
}
