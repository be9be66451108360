package handler

import (
	"io"
	"net/http"

	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/tts"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// StreamHandler serves synthesized speech for Play verbs. The carrier fetches
// this URL mid-call, so failures return quickly and the document's Say
// fallback never fires; a slow 200 here is worse than a fast 404.
type StreamHandler struct {
	agents      *cache.AgentCache
	synthesizer tts.Synthesizer
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(agents *cache.AgentCache, synthesizer tts.Synthesizer) *StreamHandler {
	return &StreamHandler{agents: agents, synthesizer: synthesizer}
}

// StreamResponse synthesizes the text query parameter with the agent's voice.
func (h *StreamHandler) StreamResponse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID := q.Get("agentId")
	text := q.Get("text")
	if agentID == "" || text == "" {
		http.Error(w, "agentId and text are required", http.StatusBadRequest)
		return
	}
	if h.synthesizer == nil {
		http.Error(w, "speech synthesis not configured", http.StatusNotFound)
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !agent.HasVoiceIdentity() {
		http.Error(w, "agent has no voice identity", http.StatusNotFound)
		return
	}

	audio, contentType, err := h.synthesizer.Synthesize(r.Context(), text, tts.VoiceOptions{
		VoiceID: agent.VoiceID,
	})
	if err != nil {
		logger.Base().Error("speech synthesis failed",
			zap.String("agent_id", agentID), zap.Error(err))
		http.Error(w, "synthesis failed", http.StatusBadGateway)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, audio); err != nil {
		logger.Base().Warn("audio stream interrupted", zap.Error(err))
	}
}
