package carrier

import (
	"context"

	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

// CreateCallParams carries everything needed to place one outbound call leg.
type CreateCallParams struct {
	To                string
	From              string
	VoiceURL          string
	StatusCallbackURL string
	FallbackURL       string
	SendDigits        string
	Record            bool
	TimeoutSeconds    int
	MachineDetection  bool
}

// WebhookURLs configures where a purchased number delivers its callbacks.
type WebhookURLs struct {
	VoiceURL string
	SMSURL   string
}

// NumberFilter narrows a number listing.
type NumberFilter struct {
	AreaCode  string
	Contains  string
	Available bool // list purchasable numbers instead of owned ones
	Limit     int
}

// Client is the carrier control surface. Two implementations exist: the live
// HTTP client and the in-process simulated carrier used outside production.
type Client interface {
	CreateCall(ctx context.Context, params CreateCallParams) (*domain.CallSnapshot, error)
	GetCall(ctx context.Context, callID string) (*domain.CallSnapshot, error)
	UpdateCall(ctx context.Context, callID string, status domain.CallStatus) (*domain.CallSnapshot, error)
	ListNumbers(ctx context.Context, filter NumberFilter) ([]domain.NumberInfo, error)
	PurchaseNumber(ctx context.Context, number string, urls WebhookURLs) (*domain.NumberInfo, error)
	SendMessage(ctx context.Context, to, from, body string) (*domain.MessageReceipt, error)
}

// StatusSink receives asynchronous status transitions. The simulated carrier
// delivers its deferred transitions through the same sink the live carrier's
// status webhooks feed, so there is exactly one state-update path.
type StatusSink func(callID string, rawStatus string)
