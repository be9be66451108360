package carrier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

// fakeProbe accepts exactly one credential pair and records every attempt.
type fakeProbe struct {
	mu       sync.Mutex
	validSID string
	validTok string
	attempts []string
}

func (p *fakeProbe) probe(_ context.Context, accountSID, authToken string) error {
	p.mu.Lock()
	p.attempts = append(p.attempts, accountSID+"/"+authToken)
	p.mu.Unlock()
	if accountSID == p.validSID && authToken == p.validTok {
		return nil
	}
	return errors.New("probe rejected")
}

type staticConfigStore struct {
	cfg *domain.CarrierConfig
	err error
}

func (s *staticConfigStore) GetCarrierConfig(context.Context) (*domain.CarrierConfig, error) {
	return s.cfg, s.err
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_CALLER_NUMBER", "")
}

func TestResolveRequestOverrideWinsOverEnvironment(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")

	probe := &fakeProbe{validSID: "ACoverride", validTok: "overridetoken"}
	r := NewResolver(nil, false)
	r.SetProbe(probe.probe)

	set, err := r.Resolve(context.Background(), &Override{AccountSID: "ACoverride", AuthToken: "overridetoken"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRequestOverride, set.Source)
	assert.Equal(t, "ACoverride", set.AccountID)
	assert.Equal(t, "ACoverride/overridetoken", probe.attempts[0])
}

func TestResolveFallsThroughToEnvironment(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")
	t.Setenv("TWILIO_CALLER_NUMBER", "+14155550100")

	probe := &fakeProbe{validSID: "ACenv", validTok: "envtoken"}
	r := NewResolver(nil, false)
	r.SetProbe(probe.probe)

	// Override fails its probe, environment succeeds.
	set, err := r.Resolve(context.Background(), &Override{AccountSID: "ACbad", AuthToken: "badtoken"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceEnvironment, set.Source)
	assert.Equal(t, "+14155550100", set.CallerNumber)
	require.Len(t, probe.attempts, 2)
	assert.Equal(t, "ACbad/badtoken", probe.attempts[0])
}

func TestResolveEnvironmentDecodingVariants(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret%2Bvalue")

	probe := &fakeProbe{validSID: "ACenv", validTok: "secret+value"}
	r := NewResolver(nil, false)
	r.SetProbe(probe.probe)

	set, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceEnvironment, set.Source)
	assert.Equal(t, "secret+value", set.Secret)
}

func TestResolveEnvironmentQuotedToken(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", `"quoted-token"`)

	probe := &fakeProbe{validSID: "ACenv", validTok: "quoted-token"}
	r := NewResolver(nil, false)
	r.SetProbe(probe.probe)

	set, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "quoted-token", set.Secret)
}

func TestResolvePersistedConfigThird(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")

	store := &staticConfigStore{cfg: &domain.CarrierConfig{
		AccountSID:   "ACstored",
		AuthToken:    "storedtoken",
		CallerNumber: "+14155550199",
	}}
	probe := &fakeProbe{validSID: "ACstored", validTok: "storedtoken"}
	r := NewResolver(store, false)
	r.SetProbe(probe.probe)

	set, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourcePersistedConfig, set.Source)
	assert.Equal(t, "+14155550199", set.CallerNumber)
	// Environment was probed first and rejected.
	assert.Equal(t, "ACenv/envtoken", probe.attempts[0])
}

func TestResolveNonProductionDegradesToSimulated(t *testing.T) {
	clearCredentialEnv(t)

	r := NewResolver(nil, false)
	r.SetProbe(func(context.Context, string, string) error {
		return errors.New("unreachable")
	})

	set, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSimulated, set.Source)
	assert.True(t, set.Simulated())
	assert.Equal(t, SimulatedCallerNumber, set.CallerNumber)
}

func TestResolveProductionAllSourcesFail(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")

	store := &staticConfigStore{cfg: &domain.CarrierConfig{AccountSID: "ACstored", AuthToken: "storedtoken"}}
	r := NewResolver(store, true)
	r.SetProbe(func(context.Context, string, string) error {
		return errors.New("rejected")
	})

	_, err := r.Resolve(context.Background(), &Override{AccountSID: "ACbad", AuthToken: "bad"})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeNoCredentials))
}

func TestTokenVariants(t *testing.T) {
	assert.Equal(t, []string{"plain"}, tokenVariants("plain"))
	assert.Contains(t, tokenVariants(`"wrapped"`), "wrapped")
	assert.Contains(t, tokenVariants("a%2Fb"), "a/b")
}
