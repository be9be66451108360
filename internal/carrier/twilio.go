package carrier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// LiveClient drives the real carrier's HTTP API through the official SDK.
type LiveClient struct {
	client     *twilio.RestClient
	accountSID string
}

// NewLiveClient builds a live carrier client for one credential pair.
func NewLiveClient(accountSID, authToken string) *LiveClient {
	return &LiveClient{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		accountSID: accountSID,
	}
}

// Twilio error codes that indicate a bad destination number.
// 21211: invalid To number, 21214: To not reachable, 13223: dial invalid.
func isInvalidDestinationCode(code int) bool {
	switch code {
	case 21211, 21214, 13223:
		return true
	}
	return false
}

// mapError converts SDK failures to the tagged taxonomy. Auth rejections and
// invalid destinations get their own codes; everything else is a carrier
// error wrapping the upstream status and code.
func mapError(err error, op string) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case isInvalidDestinationCode(restErr.Code):
			return domain.WrapCallError(domain.ErrCodeInvalidPhoneNumber,
				fmt.Sprintf("carrier rejected destination (code %d)", restErr.Code), err)
		case restErr.Code == 20003 || restErr.Status == 401:
			return domain.WrapCallError(domain.ErrCodeAuthFailed, "carrier rejected credentials", err)
		case restErr.Status == 404:
			return domain.WrapCallError(domain.ErrCodeNotFound, fmt.Sprintf("%s: resource not found", op), err)
		default:
			return domain.WrapCallError(domain.ErrCodeCarrierError,
				fmt.Sprintf("%s failed (status %d, code %d)", op, restErr.Status, restErr.Code), err)
		}
	}
	return domain.WrapCallError(domain.ErrCodeCarrierError, op+" failed", err)
}

func (c *LiveClient) CreateCall(_ context.Context, params CreateCallParams) (*domain.CallSnapshot, error) {
	p := &api.CreateCallParams{}
	p.SetTo(params.To)
	p.SetFrom(params.From)
	p.SetUrl(params.VoiceURL)
	p.SetMethod("POST")
	p.SetStatusCallback(params.StatusCallbackURL)
	p.SetStatusCallbackMethod("POST")
	p.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	p.SetRecord(params.Record)
	if params.TimeoutSeconds > 0 {
		p.SetTimeout(params.TimeoutSeconds)
	}
	if params.SendDigits != "" {
		p.SetSendDigits(params.SendDigits)
	}
	if params.MachineDetection {
		p.SetMachineDetection("DetectMessageEnd")
	}
	if params.FallbackURL != "" {
		p.SetFallbackUrl(params.FallbackURL)
		p.SetFallbackMethod("POST")
	}

	resp, err := c.client.Api.CreateCall(p)
	if err != nil {
		return nil, mapError(err, "create call")
	}

	snap := &domain.CallSnapshot{
		To:   params.To,
		From: params.From,
	}
	if resp.Sid != nil {
		snap.CallID = *resp.Sid
	}
	if resp.Status != nil {
		snap.Status = domain.ParseCallStatus(*resp.Status)
	}
	logger.Base().Info("carrier call created", zap.String("call_id", snap.CallID), zap.String("status", string(snap.Status)))
	return snap, nil
}

func (c *LiveClient) GetCall(_ context.Context, callID string) (*domain.CallSnapshot, error) {
	resp, err := c.client.Api.FetchCall(callID, &api.FetchCallParams{})
	if err != nil {
		return nil, mapError(err, "fetch call")
	}
	return snapshotFromCall(resp), nil
}

func (c *LiveClient) UpdateCall(_ context.Context, callID string, status domain.CallStatus) (*domain.CallSnapshot, error) {
	p := &api.UpdateCallParams{}
	p.SetStatus(string(status))
	resp, err := c.client.Api.UpdateCall(callID, p)
	if err != nil {
		return nil, mapError(err, "update call")
	}
	return snapshotFromCall(resp), nil
}

func snapshotFromCall(resp *api.ApiV2010Call) *domain.CallSnapshot {
	snap := &domain.CallSnapshot{}
	if resp.Sid != nil {
		snap.CallID = *resp.Sid
	}
	if resp.To != nil {
		snap.To = *resp.To
	}
	if resp.From != nil {
		snap.From = *resp.From
	}
	if resp.Status != nil {
		snap.Status = domain.ParseCallStatus(*resp.Status)
	}
	if resp.Duration != nil {
		if d, err := strconv.Atoi(*resp.Duration); err == nil {
			snap.Duration = d
		}
	}
	return snap
}

func (c *LiveClient) ListNumbers(_ context.Context, filter NumberFilter) ([]domain.NumberInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	if filter.Available {
		p := &api.ListAvailablePhoneNumberLocalParams{}
		p.SetLimit(limit)
		if filter.AreaCode != "" {
			if ac, err := strconv.Atoi(filter.AreaCode); err == nil {
				p.SetAreaCode(ac)
			}
		}
		if filter.Contains != "" {
			p.SetContains(filter.Contains)
		}
		resp, err := c.client.Api.ListAvailablePhoneNumberLocal("US", p)
		if err != nil {
			return nil, mapError(err, "list available numbers")
		}
		numbers := make([]domain.NumberInfo, 0, len(resp))
		for _, n := range resp {
			info := domain.NumberInfo{VoiceEnabled: true, SMSEnabled: true}
			if n.PhoneNumber != nil {
				info.PhoneNumber = *n.PhoneNumber
			}
			if n.FriendlyName != nil {
				info.FriendlyName = *n.FriendlyName
			}
			if n.Locality != nil {
				info.Locality = *n.Locality
			}
			if n.Region != nil {
				info.Region = *n.Region
			}
			if n.IsoCountry != nil {
				info.ISOCountry = *n.IsoCountry
			}
			numbers = append(numbers, info)
		}
		return numbers, nil
	}

	p := &api.ListIncomingPhoneNumberParams{}
	p.SetLimit(limit)
	resp, err := c.client.Api.ListIncomingPhoneNumber(p)
	if err != nil {
		return nil, mapError(err, "list numbers")
	}
	numbers := make([]domain.NumberInfo, 0, len(resp))
	for _, n := range resp {
		info := domain.NumberInfo{VoiceEnabled: true, SMSEnabled: true}
		if n.Sid != nil {
			info.SID = *n.Sid
		}
		if n.PhoneNumber != nil {
			info.PhoneNumber = *n.PhoneNumber
		}
		if n.FriendlyName != nil {
			info.FriendlyName = *n.FriendlyName
		}
		numbers = append(numbers, info)
	}
	return numbers, nil
}

func (c *LiveClient) PurchaseNumber(_ context.Context, number string, urls WebhookURLs) (*domain.NumberInfo, error) {
	p := &api.CreateIncomingPhoneNumberParams{}
	p.SetPhoneNumber(number)
	if urls.VoiceURL != "" {
		p.SetVoiceUrl(urls.VoiceURL)
		p.SetVoiceMethod("POST")
	}
	if urls.SMSURL != "" {
		p.SetSmsUrl(urls.SMSURL)
		p.SetSmsMethod("POST")
	}

	resp, err := c.client.Api.CreateIncomingPhoneNumber(p)
	if err != nil {
		var restErr *twclient.TwilioRestError
		// 21422: number not available for purchase.
		if errors.As(err, &restErr) && restErr.Code == 21422 {
			return nil, domain.WrapCallError(domain.ErrCodeNotAvailable,
				fmt.Sprintf("number %s is not available", number), err)
		}
		return nil, mapError(err, "purchase number")
	}

	info := &domain.NumberInfo{PhoneNumber: number, VoiceEnabled: true, SMSEnabled: true}
	if resp.Sid != nil {
		info.SID = *resp.Sid
	}
	if resp.FriendlyName != nil {
		info.FriendlyName = *resp.FriendlyName
	}
	return info, nil
}

func (c *LiveClient) SendMessage(_ context.Context, to, from, body string) (*domain.MessageReceipt, error) {
	p := &api.CreateMessageParams{}
	p.SetTo(to)
	p.SetFrom(from)
	p.SetBody(body)

	resp, err := c.client.Api.CreateMessage(p)
	if err != nil {
		return nil, mapError(err, "send message")
	}
	receipt := &domain.MessageReceipt{To: to, From: from}
	if resp.Sid != nil {
		receipt.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		receipt.Status = *resp.Status
	}
	return receipt, nil
}

// Probe performs the lightweight account check used to validate a credential
// pair before it is accepted by the resolver.
func Probe(ctx context.Context, accountSID, authToken string) error {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	p := &api.ListIncomingPhoneNumberParams{}
	p.SetPageSize(1)
	p.SetLimit(1)

	done := make(chan error, 1)
	go func() {
		_, err := client.Api.ListIncomingPhoneNumber(p)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return mapError(err, "credential probe")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
