package call

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/warmleadnetwork/voice-call-service/internal/ai"
	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/internal/twiml"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Fixed utterances for paths where text generation is unavailable or the call
// is ending. Spoken with the carrier's built-in voice so they work even when
// synthesis is down.
const (
	apologyMessage = "I'm sorry, I'm having a little trouble right now. Could you say that again?"
	goodbyeMessage = "Thank you for the conversation. Goodbye."
	silentReprompt = "I didn't catch that. Could you repeat it?"
	genericWelcome = "Hello, how can I help you today?"
	noInputClosing = "We didn't receive any input. Goodbye."
)

// VoiceRequest carries the fields of an answer webhook.
type VoiceRequest struct {
	CallID  string
	From    string
	To      string
	AgentID string
}

// GatherRequest carries the fields of a speech-result webhook.
type GatherRequest struct {
	CallID       string
	AgentID      string
	SpeechResult string
	Digits       string
}

// StateMachine owns the webhook-driven call lifecycle. Every entry point
// returns a valid response document; internal failures degrade to an apology
// or an empty acknowledgement, never to a transport error.
type StateMachine struct {
	repos     repository.RepositoryManager
	agents    *cache.AgentCache
	responder ai.Responder
	hub       *broadcast.Hub

	locks *lockRegistry
	convs *conversationRegistry
}

// NewStateMachine wires the webhook state machine. responder may be nil; the
// gather flow then always answers with the apology document.
func NewStateMachine(repos repository.RepositoryManager, agents *cache.AgentCache, responder ai.Responder, hub *broadcast.Hub) *StateMachine {
	return &StateMachine{
		repos:     repos,
		agents:    agents,
		responder: responder,
		hub:       hub,
		locks:     newLockRegistry(),
		convs:     newConversationRegistry(),
	}
}

// StatusSink exposes the status entry point in the shape the simulated
// carrier expects.
func (sm *StateMachine) StatusSink() func(callID, rawStatus string) {
	return func(callID, rawStatus string) {
		sm.ApplyStatus(context.Background(), callID, rawStatus)
	}
}

// BeginConversation pre-registers the agent for a call placed by this
// service, so the answer webhook can resolve it without a query parameter.
func (sm *StateMachine) BeginConversation(callID, agentID string) {
	sm.convs.begin(callID, agentID)
}

// HandleInboundVoice answers a call placed to one of our numbers. With a
// resolvable agent the call is redirected to the outbound-voice entry point
// so both directions share one greeting path; without one the caller gets a
// generic record-and-gather prompt instead of a hangup.
func (sm *StateMachine) HandleInboundVoice(ctx context.Context, req VoiceRequest) string {
	unlock := sm.locks.lock(req.CallID)
	defer unlock()

	agent, err := sm.resolveAgent(ctx, req.CallID, req.AgentID, "")
	if err != nil {
		logger.Base().Warn("inbound call with no resolvable agent",
			zap.String("call_id", req.CallID), zap.Error(err))
		sm.persistInbound(ctx, req, "")
		return genericInboundDocument()
	}

	sm.convs.begin(req.CallID, agent.ID)
	sm.persistInbound(ctx, req, agent.ID)
	sm.hub.Publish(ctx, broadcast.CallUpdate("initiated", req.CallID, agent.ID, string(domain.CallStatusInProgress)))

	return twiml.NewBuilder().
		Redirect("/api/twilio/outbound-voice?agentId=" + url.QueryEscape(agent.ID)).
		Render()
}

func (sm *StateMachine) persistInbound(ctx context.Context, req VoiceRequest, agentID string) {
	record := &domain.Call{
		CallID:       req.CallID,
		PhoneNumber:  req.From,
		CallerNumber: req.To,
		AgentID:      agentID,
		Direction:    domain.DirectionInbound,
		Status:       domain.CallStatusInProgress,
	}
	if err := sm.repos.Call().Create(ctx, record); err != nil {
		// The call is already live; losing the row must not drop it.
		logger.Base().Error("failed to persist inbound call",
			zap.String("call_id", req.CallID), zap.Error(err))
	}
}

// genericInboundDocument keeps an unattributed caller on the line with a
// recorded gather prompt, closing politely on silence.
func genericInboundDocument() string {
	b := twiml.NewBuilder()
	b.Record("/api/twilio/recording", "/api/twilio/recording-status")
	b.Gather("/api/twilio/gather", genericWelcome, "")
	b.Say(noInputClosing)
	return b.Render()
}

// HandleOutboundVoice runs when an outbound call is answered.
func (sm *StateMachine) HandleOutboundVoice(ctx context.Context, req VoiceRequest) string {
	unlock := sm.locks.lock(req.CallID)
	defer unlock()

	agent, err := sm.resolveAgent(ctx, req.CallID, req.AgentID, "")
	if err != nil {
		logger.Base().Warn("outbound answer with no resolvable agent",
			zap.String("call_id", req.CallID), zap.Error(err))
		return twiml.NewBuilder().Say(apologyMessage).Hangup().Render()
	}

	sm.convs.begin(req.CallID, agent.ID)
	return sm.greetingDocument(req.CallID, agent)
}

// greetingDocument speaks the agent's opening line, records the turn, and
// opens the first gather.
func (sm *StateMachine) greetingDocument(callID string, agent *domain.Agent) string {
	greeting := agent.Greeting()
	sm.recordTurn(callID, "assistant", greeting)

	b := twiml.NewBuilder()
	b.Speak(greeting, sm.streamURL(agent, greeting))
	b.Gather(gatherAction(agent.ID), silentReprompt, "")
	return b.Render()
}

// HandleGather processes one speech result and produces the agent's reply.
func (sm *StateMachine) HandleGather(ctx context.Context, req GatherRequest) string {
	unlock := sm.locks.lock(req.CallID)
	defer unlock()

	agent, err := sm.resolveAgent(ctx, req.CallID, req.AgentID, req.Digits)
	if err != nil {
		logger.Base().Warn("gather with no resolvable agent",
			zap.String("call_id", req.CallID), zap.Error(err))
		return twiml.NewBuilder().Say(apologyMessage).Hangup().Render()
	}

	speech := strings.TrimSpace(req.SpeechResult)
	if speech == "" {
		b := twiml.NewBuilder()
		b.Gather(gatherAction(agent.ID), silentReprompt, "")
		return b.Render()
	}

	sm.recordTurn(req.CallID, "user", speech)
	sm.hub.Publish(ctx, broadcast.TranscriptEvent(req.CallID, agent.ID, "user", speech))

	reply, err := sm.generateReply(ctx, agent, req.CallID)
	if err != nil {
		logger.Base().Error("text generation failed",
			zap.String("call_id", req.CallID), zap.Error(err))
		b := twiml.NewBuilder()
		b.Say(apologyMessage)
		b.Gather(gatherAction(agent.ID), "", "")
		return b.Render()
	}

	sm.recordTurn(req.CallID, "assistant", reply)
	sm.hub.Publish(ctx, broadcast.TranscriptEvent(req.CallID, agent.ID, "assistant", reply))

	b := twiml.NewBuilder()
	b.Speak(reply, sm.streamURL(agent, reply))
	b.Gather(gatherAction(agent.ID), "", "")
	return b.Render()
}

func (sm *StateMachine) generateReply(ctx context.Context, agent *domain.Agent, callID string) (string, error) {
	if sm.responder == nil {
		return "", domain.NewCallError(domain.ErrCodeCarrierError, "no responder configured")
	}
	return sm.responder.Respond(ctx, agent.Persona, sm.convs.history(callID))
}

// ApplyStatus applies one lifecycle transition. Terminal states are absorbing:
// once a call has ended, later status reports are ignored.
func (sm *StateMachine) ApplyStatus(ctx context.Context, callID, rawStatus string) {
	unlock := sm.locks.lock(callID)
	defer unlock()

	status := domain.ParseCallStatus(rawStatus)
	logger.Base().Info("call status update",
		zap.String("call_id", callID),
		zap.String("raw_status", rawStatus),
		zap.String("status", string(status)))

	record, err := sm.repos.Call().GetByCallID(ctx, callID)
	if err != nil {
		logger.Base().Warn("status update for unknown call",
			zap.String("call_id", callID), zap.Error(err))
		sm.hub.Publish(ctx, broadcast.CallUpdate("status", callID, sm.convs.agentFor(callID), string(status)))
		return
	}

	if record.Status.IsTerminal() {
		return
	}

	now := time.Now()
	updates := map[string]interface{}{"status": status}
	if status == domain.CallStatusInProgress && record.StartedAt == nil {
		updates["started_at"] = &now
	}
	if status.IsTerminal() {
		updates["ended_at"] = &now
	}
	if err := sm.repos.Call().UpdateFields(ctx, callID, updates); err != nil {
		logger.Base().Error("failed to persist status update",
			zap.String("call_id", callID), zap.Error(err))
	}

	sm.hub.Publish(ctx, broadcast.CallUpdate("status", callID, record.AgentID, string(status)))

	if status.IsTerminal() {
		sm.convs.end(callID)
		sm.locks.release(callID)
	}
}

// AttachRecording stores recording metadata without touching call status, so
// a recording callback arriving after completion still lands.
func (sm *StateMachine) AttachRecording(ctx context.Context, callID, recordingID, recordingURL string) {
	unlock := sm.locks.lock(callID)
	defer unlock()

	updates := map[string]interface{}{}
	if recordingID != "" {
		updates["recording_id"] = recordingID
	}
	if recordingURL != "" {
		updates["recording_url"] = recordingURL
	}
	if len(updates) == 0 {
		return
	}
	if err := sm.repos.Call().UpdateFields(ctx, callID, updates); err != nil {
		logger.Base().Warn("failed to attach recording",
			zap.String("call_id", callID),
			zap.String("recording_id", recordingID),
			zap.Error(err))
	}
}

// resolveAgent recovers the agent for a webhook: explicit parameter first,
// then the conversation registry, then the DTMF side channel.
func (sm *StateMachine) resolveAgent(ctx context.Context, callID, agentID, digits string) (*domain.Agent, error) {
	if agentID == "" {
		agentID = sm.convs.agentFor(callID)
	}
	if agentID == "" {
		agentID = AgentIDFromDigits(digits)
	}
	if agentID == "" {
		return nil, domain.NewCallError(domain.ErrCodeAgentNotFound, "no agent associated with call")
	}
	return sm.agents.GetAgent(ctx, agentID)
}

// AgentIDFromDigits recovers the agent ID sent as DTMF when the call was
// placed: wait padding, the ID, then a terminating pound.
func AgentIDFromDigits(digits string) string {
	d := strings.TrimSpace(digits)
	d = strings.TrimLeft(d, "wW")
	d = strings.TrimSuffix(d, "#")
	for _, r := range d {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return d
}

// recordTurn appends to the in-memory conversation and persists the
// transcript row. Persistence failure is logged, never surfaced to the call.
func (sm *StateMachine) recordTurn(callID, role, content string) {
	seq := sm.convs.append(callID, role, content)
	turn := &domain.TranscriptTurn{
		CallID:  callID,
		Seq:     seq,
		Role:    role,
		Content: content,
	}
	if err := sm.repos.Call().AppendTranscriptTurn(context.Background(), turn); err != nil {
		logger.Base().Warn("failed to persist transcript turn",
			zap.String("call_id", callID), zap.Error(err))
	}
}

func gatherAction(agentID string) string {
	return "/api/twilio/gather?agentId=" + url.QueryEscape(agentID)
}

// streamURL returns the synthesized-audio URL for agents with a voice
// identity, or empty to use the carrier's built-in voice.
func (sm *StateMachine) streamURL(agent *domain.Agent, text string) string {
	if !agent.HasVoiceIdentity() {
		return ""
	}
	q := url.Values{}
	q.Set("agentId", agent.ID)
	q.Set("text", text)
	return "/api/twilio/stream-response?" + q.Encode()
}
