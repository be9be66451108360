package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/carrier"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
)

func newTestService(t *testing.T) (*Service, *carrier.ManualClock, *repository.MemoryRepositoryManager) {
	t.Helper()
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_CALLER_NUMBER", "")

	repos := repository.NewMemoryRepositoryManager()
	repos.SeedAgent(&domain.Agent{
		ID:             "7",
		Name:           "Ava",
		Persona:        "You are Ava.",
		InitialMessage: "Hi, this is Ava.",
		Active:         true,
	})

	agents := cache.NewAgentCache(repos.Agent(), 0)
	resolver := carrier.NewResolver(repos.CarrierConfig(), false)
	resolver.SetProbe(func(context.Context, string, string) error {
		return errors.New("no live carrier in tests")
	})

	hub := broadcast.NewHub()
	sm := NewStateMachine(repos, agents, &fakeResponder{reply: "ok"}, hub)
	clock := carrier.NewManualClock(time.Time{})
	svc := NewService(repos, agents, resolver, sm, hub, clock, Config{
		Production:    false,
		PublicBaseURL: "http://calls.example.test",
	})
	return svc, clock, repos
}

// fakeLiveClient stands in for the carrier API when a test needs the live
// code path without the network.
type fakeLiveClient struct {
	ownedNumber string
	lastCreate  carrier.CreateCallParams
}

func (f *fakeLiveClient) CreateCall(_ context.Context, params carrier.CreateCallParams) (*domain.CallSnapshot, error) {
	f.lastCreate = params
	return &domain.CallSnapshot{CallID: "CAlive1", To: params.To, From: params.From, Status: domain.CallStatusQueued}, nil
}

func (f *fakeLiveClient) GetCall(_ context.Context, callID string) (*domain.CallSnapshot, error) {
	return &domain.CallSnapshot{CallID: callID, Status: domain.CallStatusQueued}, nil
}

func (f *fakeLiveClient) UpdateCall(_ context.Context, callID string, status domain.CallStatus) (*domain.CallSnapshot, error) {
	return &domain.CallSnapshot{CallID: callID, Status: status}, nil
}

func (f *fakeLiveClient) ListNumbers(_ context.Context, _ carrier.NumberFilter) ([]domain.NumberInfo, error) {
	return []domain.NumberInfo{{PhoneNumber: f.ownedNumber, VoiceEnabled: true}}, nil
}

func (f *fakeLiveClient) PurchaseNumber(_ context.Context, number string, _ carrier.WebhookURLs) (*domain.NumberInfo, error) {
	return &domain.NumberInfo{PhoneNumber: number}, nil
}

func (f *fakeLiveClient) SendMessage(_ context.Context, to, from, _ string) (*domain.MessageReceipt, error) {
	return &domain.MessageReceipt{MessageID: "SMlive1", To: to, From: from, Status: "queued"}, nil
}

func TestInitiateSimulatedCallLifecycle(t *testing.T) {
	svc, clock, repos := newTestService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, InitiateParams{
		PhoneNumber: "(415) 555-0100",
		AgentID:     "7",
	})
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", record.PhoneNumber)
	assert.Equal(t, carrier.SimulatedCallerNumber, record.CallerNumber)
	assert.Equal(t, domain.CallStatusQueued, record.Status)
	assert.Equal(t, domain.DirectionOutbound, record.Direction)
	assert.True(t, record.Simulated)
	require.NotEmpty(t, record.CallID)

	// The simulated carrier drives the same status path the live webhooks
	// use; advancing the clock walks the call to completion.
	clock.Advance(carrier.SimulatedAnswerDelay)
	stored, err := repos.Call().GetByCallID(ctx, record.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInProgress, stored.Status)
	require.NotNil(t, stored.StartedAt)

	clock.Advance(carrier.SimulatedCompleteDelay)
	stored, err = repos.Call().GetByCallID(ctx, record.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, stored.Status)
	require.NotNil(t, stored.EndedAt)
}

func TestInitiateBroadcastsInitiatedEvent(t *testing.T) {
	svc, _, _ := newTestService(t)

	hub := broadcast.NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()
	// Re-wire a fresh hub so the subscription exists before initiating.
	svc.hub = hub
	svc.sm.hub = hub

	_, err := svc.Initiate(context.Background(), InitiateParams{
		PhoneNumber: "+14155550100",
		AgentID:     "7",
	})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, broadcast.EventCallUpdate, event.Type)
		assert.Equal(t, "initiated", event.Action)
		assert.Equal(t, "7", event.AgentID)
	default:
		t.Fatal("expected an initiated event on the hub")
	}
}

func TestInitiateEnvCallerDefaultWinsOverOwnedNumbers(t *testing.T) {
	svc, _, _ := newTestService(t)
	t.Setenv("TWILIO_CALLER_NUMBER", "+14155559999")

	// Request-override credentials win resolution, so the credential set
	// carries no caller number of its own; the env default must still be
	// used ahead of the account's first owned number.
	resolver := carrier.NewResolver(nil, false)
	resolver.SetProbe(func(_ context.Context, sid, _ string) error {
		if sid == "ACoverride" {
			return nil
		}
		return errors.New("probe refused")
	})
	svc.resolver = resolver

	live := &fakeLiveClient{ownedNumber: "+19995550000"}
	svc.SetLiveFactory(func(_, _ string) carrier.Client { return live })

	record, err := svc.Initiate(context.Background(), InitiateParams{
		PhoneNumber: "+14155550100",
		AgentID:     "7",
		AccountSID:  "ACoverride",
		AuthToken:   "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "+14155559999", record.CallerNumber)
	assert.Equal(t, "+14155559999", live.lastCreate.From)
	assert.False(t, record.Simulated)
}

func TestInitiateRejectsSelfCall(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Initiate(context.Background(), InitiateParams{
		PhoneNumber:  "+14155550100",
		AgentID:      "7",
		CallerNumber: "(415) 555-0100",
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeSelfCallNotAllowed))
}

func TestInitiateRejectsInvalidPhoneNumber(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Initiate(context.Background(), InitiateParams{
		PhoneNumber: "not-a-number!",
		AgentID:     "7",
	})
	assert.True(t, domain.IsCode(err, domain.ErrCodeInvalidPhoneNumber))
}

func TestInitiateRejectsUnknownAgent(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Initiate(context.Background(), InitiateParams{
		PhoneNumber: "+14155550100",
		AgentID:     "999",
	})
	assert.True(t, domain.IsCode(err, domain.ErrCodeAgentNotFound))
}

func TestEndCallIsOptimisticAndAbsorbsStaleTimers(t *testing.T) {
	svc, clock, repos := newTestService(t)
	ctx := context.Background()

	record, err := svc.Initiate(ctx, InitiateParams{PhoneNumber: "+14155550100", AgentID: "7"})
	require.NoError(t, err)

	clock.Advance(carrier.SimulatedAnswerDelay)

	ended, err := svc.EndCall(ctx, record.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, ended.Status)

	// The pending completion timer fires later and must change nothing.
	clock.Advance(carrier.SimulatedCompleteDelay)
	stored, err := repos.Call().GetByCallID(ctx, record.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, stored.Status)
}

func TestEndCallUnknownCall(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.EndCall(context.Background(), "CAmissing")
	assert.True(t, domain.IsCode(err, domain.ErrCodeNotFound))
}

func TestListNumbersThroughSimulatedCarrier(t *testing.T) {
	svc, _, _ := newTestService(t)

	numbers, err := svc.ListNumbers(context.Background(), carrier.NumberFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, numbers)
}

func TestPurchaseNumberConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PurchaseNumber(ctx, "+14155552672")
	require.NoError(t, err)

	_, err = svc.PurchaseNumber(ctx, "+14155552672")
	assert.True(t, domain.IsCode(err, domain.ErrCodeAlreadyOwned))
}

func TestGetCallHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, InitiateParams{PhoneNumber: "+14155550100", AgentID: "7"})
	require.NoError(t, err)
	_, err = svc.Initiate(ctx, InitiateParams{PhoneNumber: "+14155550101", AgentID: "7"})
	require.NoError(t, err)

	calls, err := svc.GetCallHistory(ctx, "7", 10)
	require.NoError(t, err)
	assert.Len(t, calls, 2)

	_, err = svc.GetCallHistory(ctx, "999", 10)
	assert.True(t, domain.IsCode(err, domain.ErrCodeAgentNotFound))
}

func TestSendMessageDefaultsSender(t *testing.T) {
	svc, _, _ := newTestService(t)

	receipt, err := svc.SendMessage(context.Background(), "415-555-0100", "", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", receipt.To)
	assert.Equal(t, carrier.SimulatedCallerNumber, receipt.From)
}
