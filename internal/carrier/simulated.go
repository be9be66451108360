package carrier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Progression delays for a simulated call. Matches the cadence of a short
// answered call: a couple seconds of ringing, then a brief conversation.
const (
	SimulatedAnswerDelay   = 2 * time.Second
	SimulatedCompleteDelay = 10 * time.Second
)

// SimulatedClient reproduces carrier-observable behavior in-process. Deferred
// transitions are clock tasks delivered through the injected StatusSink, the
// same entry point real status webhooks use, so callers cannot tell simulated
// progression from live progression except by timing.
type SimulatedClient struct {
	clock Clock
	sink  StatusSink

	mu        sync.Mutex
	calls     map[string]*simulatedCall
	purchased map[string]domain.NumberInfo
}

type simulatedCall struct {
	snapshot domain.CallSnapshot
}

// NewSimulatedClient builds the simulated carrier. The sink may be set later
// via SetStatusSink when the state machine is constructed after the client.
func NewSimulatedClient(clock Clock) *SimulatedClient {
	if clock == nil {
		clock = NewRealClock()
	}
	return &SimulatedClient{
		clock:     clock,
		calls:     make(map[string]*simulatedCall),
		purchased: make(map[string]domain.NumberInfo),
	}
}

// SetStatusSink wires the deferred-transition delivery path.
func (c *SimulatedClient) SetStatusSink(sink StatusSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// CreateCall synthesizes a call leg and schedules its progression:
// queued now, in-progress shortly after, completed a little later.
func (c *SimulatedClient) CreateCall(_ context.Context, params CreateCallParams) (*domain.CallSnapshot, error) {
	callID := "CA" + strings.ReplaceAll(uuid.New().String(), "-", "")

	c.mu.Lock()
	call := &simulatedCall{
		snapshot: domain.CallSnapshot{
			CallID: callID,
			To:     params.To,
			From:   params.From,
			Status: domain.CallStatusQueued,
		},
	}
	c.calls[callID] = call
	c.mu.Unlock()

	logger.Base().Info("simulated call created",
		zap.String("call_id", callID),
		zap.String("to", params.To),
		zap.String("from", params.From))

	c.clock.AfterFunc(SimulatedAnswerDelay, func() {
		c.transition(callID, domain.CallStatusInProgress)
	})
	c.clock.AfterFunc(SimulatedAnswerDelay+SimulatedCompleteDelay, func() {
		c.transition(callID, domain.CallStatusCompleted)
	})

	snap := call.snapshot
	return &snap, nil
}

// transition applies a deferred state change. The terminal check lives here,
// in the transition handler, so a stale timer firing after an early hangup is
// a no-op without any timer-handle bookkeeping.
func (c *SimulatedClient) transition(callID string, status domain.CallStatus) {
	c.mu.Lock()
	call, ok := c.calls[callID]
	if !ok || call.snapshot.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.applyLocked(call, status)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink(callID, string(status))
	}
}

func (c *SimulatedClient) applyLocked(call *simulatedCall, status domain.CallStatus) {
	now := c.clock.Now()
	call.snapshot.Status = status
	if status == domain.CallStatusInProgress && call.snapshot.StartedAt == nil {
		call.snapshot.StartedAt = &now
	}
	if status.IsTerminal() {
		call.snapshot.EndedAt = &now
		if call.snapshot.StartedAt != nil {
			call.snapshot.Duration = int(now.Sub(*call.snapshot.StartedAt) / time.Second)
		}
	}
}

func (c *SimulatedClient) GetCall(_ context.Context, callID string) (*domain.CallSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.calls[callID]
	if !ok {
		return nil, domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
	}
	snap := call.snapshot
	return &snap, nil
}

// UpdateCall ends a call early. The transition goes through the same sink as
// scheduled ones; pending timers become no-ops via the terminal check.
func (c *SimulatedClient) UpdateCall(_ context.Context, callID string, status domain.CallStatus) (*domain.CallSnapshot, error) {
	c.mu.Lock()
	call, ok := c.calls[callID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
	}
	alreadyTerminal := call.snapshot.Status.IsTerminal()
	if !alreadyTerminal {
		c.applyLocked(call, status)
	}
	snap := call.snapshot
	sink := c.sink
	c.mu.Unlock()

	if !alreadyTerminal && sink != nil {
		sink(callID, string(status))
	}
	return &snap, nil
}

// ListNumbers returns the fixed catalog so UI and tests have stable fixtures.
func (c *SimulatedClient) ListNumbers(_ context.Context, filter NumberFilter) ([]domain.NumberInfo, error) {
	numbers := make([]domain.NumberInfo, 0, len(simulatedCatalog))
	for _, n := range simulatedCatalog {
		if filter.AreaCode != "" && !strings.HasPrefix(n.PhoneNumber, "+1"+filter.AreaCode) {
			continue
		}
		if filter.Contains != "" && !strings.Contains(n.PhoneNumber, filter.Contains) {
			continue
		}
		numbers = append(numbers, n)
		if filter.Limit > 0 && len(numbers) >= filter.Limit {
			break
		}
	}
	return numbers, nil
}

// PurchaseNumber records the purchase in memory for the process lifetime.
func (c *SimulatedClient) PurchaseNumber(_ context.Context, number string, _ WebhookURLs) (*domain.NumberInfo, error) {
	var found *domain.NumberInfo
	for i := range simulatedCatalog {
		if simulatedCatalog[i].PhoneNumber == number {
			found = &simulatedCatalog[i]
			break
		}
	}
	if found == nil {
		return nil, domain.NewCallError(domain.ErrCodeNotAvailable, fmt.Sprintf("number %s is not available for purchase", number))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.purchased[number]; ok {
		return nil, domain.NewCallError(domain.ErrCodeAlreadyOwned, fmt.Sprintf("number %s is already owned", number))
	}
	owned := *found
	owned.SID = "PN" + strings.ReplaceAll(uuid.New().String(), "-", "")
	c.purchased[number] = owned
	return &owned, nil
}

func (c *SimulatedClient) SendMessage(_ context.Context, to, from, body string) (*domain.MessageReceipt, error) {
	receipt := &domain.MessageReceipt{
		MessageID: "SM" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		To:        to,
		From:      from,
		Status:    "delivered",
		SentAt:    c.clock.Now(),
	}
	logger.Base().Info("simulated message sent",
		zap.String("message_id", receipt.MessageID),
		zap.String("to", to),
		zap.Int("body_len", len(body)))
	return receipt, nil
}

// SimulatedCallerNumber is the fixed caller ID used outside production when no
// real number is configured.
const SimulatedCallerNumber = "+15005550006"

// simulatedCatalog is a deterministic set of numbers with realistic metadata.
var simulatedCatalog = []domain.NumberInfo{
	{SID: "PN00000000000000000000000000000001", PhoneNumber: "+15005550006", FriendlyName: "+1 (500) 555-0006", Locality: "Test Valley", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000002", PhoneNumber: "+14155552672", FriendlyName: "+1 (415) 555-2672", Locality: "San Francisco", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000003", PhoneNumber: "+14155552673", FriendlyName: "+1 (415) 555-2673", Locality: "San Francisco", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: false, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000004", PhoneNumber: "+14155552674", FriendlyName: "+1 (415) 555-2674", Locality: "San Francisco", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000005", PhoneNumber: "+12125551234", FriendlyName: "+1 (212) 555-1234", Locality: "New York", Region: "NY", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000006", PhoneNumber: "+12125551235", FriendlyName: "+1 (212) 555-1235", Locality: "New York", Region: "NY", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: false, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000007", PhoneNumber: "+13125551001", FriendlyName: "+1 (312) 555-1001", Locality: "Chicago", Region: "IL", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000008", PhoneNumber: "+13125551002", FriendlyName: "+1 (312) 555-1002", Locality: "Chicago", Region: "IL", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: false, MonthlyPrice: 1.00},
	{SID: "PN00000000000000000000000000000009", PhoneNumber: "+13235551111", FriendlyName: "+1 (323) 555-1111", Locality: "Los Angeles", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: true, MonthlyPrice: 1.00},
	{SID: "PN0000000000000000000000000000000a", PhoneNumber: "+13235551112", FriendlyName: "+1 (323) 555-1112", Locality: "Los Angeles", Region: "CA", ISOCountry: "US", VoiceEnabled: true, SMSEnabled: false, MonthlyPrice: 1.00},
}
