package handler

import (
	"net/http"

	"github.com/warmleadnetwork/voice-call-service/internal/services/call"
	"github.com/warmleadnetwork/voice-call-service/internal/twiml"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// WebhookHandler serves the carrier's form-encoded voice callbacks. Every
// endpoint answers 200 with a valid document; returning an error status would
// make the carrier play its own failure message to the caller.
type WebhookHandler struct {
	sm *call.StateMachine
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(sm *call.StateMachine) *WebhookHandler {
	return &WebhookHandler{sm: sm}
}

func writeDocument(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		logger.Base().Warn("failed to write webhook response", zap.Error(err))
	}
}

// parseForm tolerates malformed bodies; webhook fields just come back empty.
func parseForm(r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logger.Base().Warn("failed to parse webhook form",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// agentIDFrom recovers agentId from the query string or the posted body;
// some intermediaries strip webhook query parameters in transit.
func agentIDFrom(r *http.Request) string {
	if id := r.URL.Query().Get("agentId"); id != "" {
		return id
	}
	return r.PostFormValue("agentId")
}

// HandleVoice answers an inbound call to one of our numbers.
func (h *WebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	doc := h.sm.HandleInboundVoice(r.Context(), call.VoiceRequest{
		CallID:  r.FormValue("CallSid"),
		From:    r.FormValue("From"),
		To:      r.FormValue("To"),
		AgentID: agentIDFrom(r),
	})
	writeDocument(w, doc)
}

// HandleOutboundVoice runs when an outbound call we placed is answered.
func (h *WebhookHandler) HandleOutboundVoice(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	doc := h.sm.HandleOutboundVoice(r.Context(), call.VoiceRequest{
		CallID:  r.FormValue("CallSid"),
		From:    r.FormValue("From"),
		To:      r.FormValue("To"),
		AgentID: agentIDFrom(r),
	})
	writeDocument(w, doc)
}

// HandleGather receives one speech result and returns the agent's reply.
func (h *WebhookHandler) HandleGather(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	doc := h.sm.HandleGather(r.Context(), call.GatherRequest{
		CallID:       r.FormValue("CallSid"),
		AgentID:      agentIDFrom(r),
		SpeechResult: r.FormValue("SpeechResult"),
		Digits:       r.FormValue("Digits"),
	})
	writeDocument(w, doc)
}

// HandleOutboundStatus ingests call lifecycle status callbacks.
func (h *WebhookHandler) HandleOutboundStatus(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	callID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	if callID != "" && status != "" {
		h.sm.ApplyStatus(r.Context(), callID, status)
	}
	writeDocument(w, twiml.Ack())
}

// HandleRecording receives the recording action callback.
func (h *WebhookHandler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	h.attachRecording(r)
	writeDocument(w, twiml.Ack())
}

// HandleRecordingStatus receives asynchronous recording status callbacks.
func (h *WebhookHandler) HandleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	parseForm(r)
	h.attachRecording(r)
	writeDocument(w, twiml.Ack())
}

func (h *WebhookHandler) attachRecording(r *http.Request) {
	callID := r.FormValue("CallSid")
	if callID == "" {
		return
	}
	h.sm.AttachRecording(r.Context(),
		callID,
		r.FormValue("RecordingSid"),
		r.FormValue("RecordingUrl"))
}
