package call

import (
	"context"
	"net/url"
	"strings"

	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/carrier"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Config carries service-level settings.
type Config struct {
	// Production disables every simulated fallback.
	Production bool
	// PublicBaseURL is the externally reachable base for webhook URLs.
	PublicBaseURL string
}

// InitiateParams is one outbound call request.
type InitiateParams struct {
	PhoneNumber  string
	AgentID      string
	CallerNumber string
	// Optional per-request credential override.
	AccountSID string
	AuthToken  string
	Options    *domain.CallOptions
}

// Service orchestrates outbound calls and number management on top of the
// carrier clients, the credential resolver, and the webhook state machine.
type Service struct {
	repos    repository.RepositoryManager
	agents   *cache.AgentCache
	resolver *carrier.Resolver
	sm       *StateMachine
	hub      *broadcast.Hub
	cfg      Config

	simulated   *carrier.SimulatedClient
	liveFactory func(accountSID, authToken string) carrier.Client
}

// NewService wires the call service. The simulated carrier shares the state
// machine's status entry point so its transitions flow through the same path
// as live webhook callbacks.
func NewService(repos repository.RepositoryManager, agents *cache.AgentCache, resolver *carrier.Resolver, sm *StateMachine, hub *broadcast.Hub, clock carrier.Clock, cfg Config) *Service {
	simulated := carrier.NewSimulatedClient(clock)
	simulated.SetStatusSink(sm.StatusSink())
	return &Service{
		repos:     repos,
		agents:    agents,
		resolver:  resolver,
		sm:        sm,
		hub:       hub,
		cfg:       cfg,
		simulated: simulated,
		liveFactory: func(accountSID, authToken string) carrier.Client {
			return carrier.NewLiveClient(accountSID, authToken)
		},
	}
}

// SetLiveFactory replaces the live client constructor.
func (s *Service) SetLiveFactory(factory func(accountSID, authToken string) carrier.Client) {
	s.liveFactory = factory
}

// Initiate places one outbound call. On success the returned record is
// already persisted with status queued and an initiated event has been
// broadcast.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*domain.Call, error) {
	to, err := NormalizePhoneNumber(params.PhoneNumber)
	if err != nil {
		return nil, err
	}

	agent, err := s.agents.GetAgent(ctx, params.AgentID)
	if err != nil {
		return nil, err
	}

	creds, err := s.resolveCredentials(ctx, params)
	if err != nil {
		return nil, err
	}
	client := s.clientFor(creds)

	from, err := s.resolveCallerNumber(ctx, params, creds, client)
	if err != nil {
		return nil, err
	}

	if from == to {
		return nil, domain.NewCallErrorWithHint(domain.ErrCodeSelfCallNotAllowed,
			"destination matches the caller number",
			"choose a different destination or caller number")
	}

	opts := domain.DefaultCallOptions()
	if params.Options != nil {
		opts = *params.Options
	}

	createParams := s.buildCreateParams(to, from, agent.ID, opts)
	snap, err := client.CreateCall(ctx, createParams)
	simulated := creds.Simulated()
	if err != nil {
		if s.cfg.Production || domain.IsCode(err, domain.ErrCodeInvalidPhoneNumber) {
			return nil, err
		}
		// Outside production a carrier failure degrades to the simulated
		// carrier so development flows keep moving.
		logger.Base().Warn("live call creation failed, degrading to simulated carrier",
			zap.String("to", to), zap.Error(err))
		if from == "" {
			from = carrier.SimulatedCallerNumber
			createParams.From = from
		}
		snap, err = s.simulated.CreateCall(ctx, createParams)
		if err != nil {
			return nil, err
		}
		simulated = true
	}

	s.sm.BeginConversation(snap.CallID, agent.ID)

	record := &domain.Call{
		CallID:       snap.CallID,
		PhoneNumber:  to,
		CallerNumber: from,
		AgentID:      agent.ID,
		Direction:    domain.DirectionOutbound,
		Status:       domain.CallStatusQueued,
		Simulated:    simulated,
	}
	if err := s.repos.Call().Create(ctx, record); err != nil {
		// The carrier already accepted the call; the record loss is logged
		// but the initiation succeeds.
		logger.Base().Error("failed to persist outbound call",
			zap.String("call_id", snap.CallID), zap.Error(err))
	}

	s.hub.Publish(ctx, broadcast.CallUpdate("initiated", snap.CallID, agent.ID, string(record.Status)))

	logger.Base().Info("outbound call initiated",
		zap.String("call_id", snap.CallID),
		zap.String("agent_id", agent.ID),
		zap.String("to", to),
		zap.String("from", from),
		zap.Bool("simulated", simulated))
	return record, nil
}

func (s *Service) resolveCredentials(ctx context.Context, params InitiateParams) (domain.CredentialSet, error) {
	var override *carrier.Override
	if params.AccountSID != "" && params.AuthToken != "" {
		override = &carrier.Override{AccountSID: params.AccountSID, AuthToken: params.AuthToken}
	}
	return s.resolver.Resolve(ctx, override)
}

// resolveCallerNumber walks the caller-ID chain: request value, the
// environment default, the credential source's number, the fixed simulation
// number, then the first owned number.
func (s *Service) resolveCallerNumber(ctx context.Context, params InitiateParams, creds domain.CredentialSet, client carrier.Client) (string, error) {
	if params.CallerNumber != "" {
		return NormalizePhoneNumber(params.CallerNumber)
	}
	// The env default holds even when override or persisted-config
	// credentials won resolution.
	if env := s.resolver.EnvCallerNumber(); env != "" {
		return NormalizePhoneNumber(env)
	}
	if creds.CallerNumber != "" {
		return NormalizePhoneNumber(creds.CallerNumber)
	}
	if creds.Simulated() {
		return carrier.SimulatedCallerNumber, nil
	}
	numbers, err := client.ListNumbers(ctx, carrier.NumberFilter{Limit: 1})
	if err == nil && len(numbers) > 0 {
		return numbers[0].PhoneNumber, nil
	}
	if err != nil {
		logger.Base().Warn("failed to list owned numbers for caller ID", zap.Error(err))
	}
	return "", domain.NewCallErrorWithHint(domain.ErrCodeNoCallerNumber,
		"no caller number available",
		"pass a caller number, set TWILIO_CALLER_NUMBER, or purchase a number")
}

func (s *Service) buildCreateParams(to, from, agentID string, opts domain.CallOptions) carrier.CreateCallParams {
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	agentQuery := "agentId=" + url.QueryEscape(agentID)

	params := carrier.CreateCallParams{
		To:                to,
		From:              from,
		VoiceURL:          base + "/api/twilio/outbound-voice?" + agentQuery,
		StatusCallbackURL: base + "/api/twilio/outbound-status",
		SendDigits:        "wwww" + agentID + "#",
		Record:            opts.Record,
		TimeoutSeconds:    opts.TimeoutSeconds,
		MachineDetection:  opts.MachineDetection,
	}
	if opts.UseFallbackDocument {
		params.FallbackURL = base + "/api/twilio/voice"
	}
	return params
}

func (s *Service) clientFor(creds domain.CredentialSet) carrier.Client {
	if creds.Simulated() {
		return s.simulated
	}
	return s.liveFactory(creds.AccountID, creds.Secret)
}

// EndCall hangs up an active call. The local record is marked completed even
// when the carrier-side hangup fails, so the dashboard never shows a call the
// operator already ended.
func (s *Service) EndCall(ctx context.Context, callID string) (*domain.Call, error) {
	record, err := s.repos.Call().GetByCallID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if record.Status.IsTerminal() {
		return record, nil
	}

	if record.Simulated {
		if _, err := s.simulated.UpdateCall(ctx, callID, domain.CallStatusCompleted); err != nil {
			logger.Base().Warn("simulated hangup failed", zap.String("call_id", callID), zap.Error(err))
		}
	} else {
		creds, err := s.resolver.Resolve(ctx, nil)
		if err == nil && !creds.Simulated() {
			client := s.liveFactory(creds.AccountID, creds.Secret)
			if _, err := client.UpdateCall(ctx, callID, domain.CallStatusCompleted); err != nil {
				logger.Base().Warn("carrier hangup failed", zap.String("call_id", callID), zap.Error(err))
			}
		} else if err != nil {
			logger.Base().Warn("credential resolution failed during hangup",
				zap.String("call_id", callID), zap.Error(err))
		}
	}

	// Optimistic local completion; a later carrier webhook for the same
	// terminal state is absorbed by the state machine.
	s.sm.ApplyStatus(ctx, callID, string(domain.CallStatusCompleted))

	return s.repos.Call().GetByCallID(ctx, callID)
}

// ListNumbers lists owned or purchasable numbers through whichever carrier
// the current credentials select.
func (s *Service) ListNumbers(ctx context.Context, filter carrier.NumberFilter) ([]domain.NumberInfo, error) {
	creds, err := s.resolver.Resolve(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.clientFor(creds).ListNumbers(ctx, filter)
}

// PurchaseNumber buys a number and points its webhooks at this service.
func (s *Service) PurchaseNumber(ctx context.Context, number string) (*domain.NumberInfo, error) {
	normalized, err := NormalizePhoneNumber(number)
	if err != nil {
		return nil, err
	}
	creds, err := s.resolver.Resolve(ctx, nil)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	return s.clientFor(creds).PurchaseNumber(ctx, normalized, carrier.WebhookURLs{
		VoiceURL: base + "/api/twilio/voice",
	})
}

// GetCallHistory returns recent calls for an agent, newest first.
func (s *Service) GetCallHistory(ctx context.Context, agentID string, limit int) ([]*domain.Call, error) {
	if _, err := s.agents.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.repos.Call().GetByAgentID(ctx, agentID, limit)
}

// GetTranscript returns the persisted conversation for a call.
func (s *Service) GetTranscript(ctx context.Context, callID string) ([]*domain.TranscriptTurn, error) {
	if _, err := s.repos.Call().GetByCallID(ctx, callID); err != nil {
		return nil, err
	}
	return s.repos.Call().GetTranscript(ctx, callID)
}

// SendMessage sends one text message through the current carrier.
func (s *Service) SendMessage(ctx context.Context, to, from, body string) (*domain.MessageReceipt, error) {
	normalizedTo, err := NormalizePhoneNumber(to)
	if err != nil {
		return nil, err
	}
	creds, err := s.resolver.Resolve(ctx, nil)
	if err != nil {
		return nil, err
	}
	if from == "" {
		from = creds.CallerNumber
	}
	if from == "" && creds.Simulated() {
		from = carrier.SimulatedCallerNumber
	}
	if from == "" {
		return nil, domain.NewCallError(domain.ErrCodeNoCallerNumber, "no sending number available")
	}
	normalizedFrom, err := NormalizePhoneNumber(from)
	if err != nil {
		return nil, err
	}
	return s.clientFor(creds).SendMessage(ctx, normalizedTo, normalizedFrom, body)
}

// Simulated exposes the shared simulated carrier, used by tests to drive the
// manual clock.
func (s *Service) Simulated() *carrier.SimulatedClient {
	return s.simulated
}
