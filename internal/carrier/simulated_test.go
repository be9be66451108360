package carrier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *sinkRecorder) sink(callID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, status)
}

func (r *sinkRecorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func newTestClient(t *testing.T) (*SimulatedClient, *ManualClock, *sinkRecorder) {
	t.Helper()
	clock := NewManualClock(time.Time{})
	client := NewSimulatedClient(clock)
	rec := &sinkRecorder{}
	client.SetStatusSink(rec.sink)
	return client, clock, rec
}

func TestSimulatedCallProgression(t *testing.T) {
	client, clock, rec := newTestClient(t)

	snap, err := client.CreateCall(context.Background(), CreateCallParams{
		To:   "+14155550100",
		From: SimulatedCallerNumber,
	})
	require.NoError(t, err)
	assert.True(t, len(snap.CallID) > 2 && snap.CallID[:2] == "CA")
	assert.Equal(t, domain.CallStatusQueued, snap.Status)

	clock.Advance(SimulatedAnswerDelay)
	current, err := client.GetCall(context.Background(), snap.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusInProgress, current.Status)
	require.NotNil(t, current.StartedAt)

	clock.Advance(SimulatedCompleteDelay)
	current, err = client.GetCall(context.Background(), snap.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, current.Status)
	require.NotNil(t, current.EndedAt)
	assert.Equal(t, int(SimulatedCompleteDelay/time.Second), current.Duration)

	assert.Equal(t, []string{"in-progress", "completed"}, rec.statuses())
}

func TestSimulatedEarlyEndAbsorbsStaleTimers(t *testing.T) {
	client, clock, rec := newTestClient(t)

	snap, err := client.CreateCall(context.Background(), CreateCallParams{To: "+14155550100", From: SimulatedCallerNumber})
	require.NoError(t, err)

	_, err = client.UpdateCall(context.Background(), snap.CallID, domain.CallStatusCompleted)
	require.NoError(t, err)

	// Both scheduled transitions fire after the hangup and must be no-ops.
	clock.Advance(SimulatedAnswerDelay + SimulatedCompleteDelay)

	current, err := client.GetCall(context.Background(), snap.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, current.Status)
	assert.Equal(t, []string{"completed"}, rec.statuses())
}

func TestSimulatedUpdateOfTerminalCallIsNoOp(t *testing.T) {
	client, clock, rec := newTestClient(t)

	snap, err := client.CreateCall(context.Background(), CreateCallParams{To: "+14155550100", From: SimulatedCallerNumber})
	require.NoError(t, err)

	clock.Advance(SimulatedAnswerDelay + SimulatedCompleteDelay)
	require.Equal(t, []string{"in-progress", "completed"}, rec.statuses())

	_, err = client.UpdateCall(context.Background(), snap.CallID, domain.CallStatusCanceled)
	require.NoError(t, err)

	current, err := client.GetCall(context.Background(), snap.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusCompleted, current.Status)
	assert.Equal(t, []string{"in-progress", "completed"}, rec.statuses())
}

func TestSimulatedGetCallUnknownID(t *testing.T) {
	client, _, _ := newTestClient(t)
	_, err := client.GetCall(context.Background(), "CAmissing")
	assert.True(t, domain.IsCode(err, domain.ErrCodeNotFound))
}

func TestSimulatedCatalogFiltering(t *testing.T) {
	client, _, _ := newTestClient(t)

	all, err := client.ListNumbers(context.Background(), NumberFilter{})
	require.NoError(t, err)
	assert.Len(t, all, len(simulatedCatalog))

	sf, err := client.ListNumbers(context.Background(), NumberFilter{AreaCode: "415"})
	require.NoError(t, err)
	require.NotEmpty(t, sf)
	for _, n := range sf {
		assert.Equal(t, "San Francisco", n.Locality)
	}

	limited, err := client.ListNumbers(context.Background(), NumberFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestSimulatedPurchase(t *testing.T) {
	client, _, _ := newTestClient(t)

	owned, err := client.PurchaseNumber(context.Background(), "+14155552672", WebhookURLs{})
	require.NoError(t, err)
	assert.Equal(t, "+14155552672", owned.PhoneNumber)
	assert.NotEmpty(t, owned.SID)

	_, err = client.PurchaseNumber(context.Background(), "+14155552672", WebhookURLs{})
	assert.True(t, domain.IsCode(err, domain.ErrCodeAlreadyOwned))

	_, err = client.PurchaseNumber(context.Background(), "+19995550000", WebhookURLs{})
	assert.True(t, domain.IsCode(err, domain.ErrCodeNotAvailable))
}

func TestSimulatedSendMessage(t *testing.T) {
	client, _, _ := newTestClient(t)

	receipt, err := client.SendMessage(context.Background(), "+14155550100", SimulatedCallerNumber, "hello")
	require.NoError(t, err)
	assert.True(t, len(receipt.MessageID) > 2 && receipt.MessageID[:2] == "SM")
	assert.Equal(t, "delivered", receipt.Status)
}

func TestManualClockStoppedTimerDoesNotFire(t *testing.T) {
	clock := NewManualClock(time.Time{})
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })
	require.True(t, timer.Stop())
	clock.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManualClockFiresInScheduleOrder(t *testing.T) {
	clock := NewManualClock(time.Time{})
	var order []int
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	clock.AfterFunc(time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
