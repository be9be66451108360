package carrier

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// ProbeFunc validates one credential pair against the carrier. Injectable so
// resolver tests never touch the network.
type ProbeFunc func(ctx context.Context, accountSID, authToken string) error

// ConfigStore reads the persisted credential record. Only the narrow read is
// needed here; the full repository lives elsewhere.
type ConfigStore interface {
	GetCarrierConfig(ctx context.Context) (*domain.CarrierConfig, error)
}

// Resolver walks an ordered list of credential sources and returns the first
// pair that passes a live probe. Outside production a failed walk degrades to
// simulated credentials; in production it is an error.
type Resolver struct {
	store      ConfigStore
	probe      ProbeFunc
	production bool

	// env variable names, overridable for tests
	accountVar string
	tokenVar   string
	callerVar  string
}

const probeTimeout = 3 * time.Second

// NewResolver builds a resolver. store may be nil when no database is
// configured; that source is then skipped.
func NewResolver(store ConfigStore, production bool) *Resolver {
	return &Resolver{
		store:      store,
		probe:      Probe,
		production: production,
		accountVar: "TWILIO_ACCOUNT_SID",
		tokenVar:   "TWILIO_AUTH_TOKEN",
		callerVar:  "TWILIO_CALLER_NUMBER",
	}
}

// SetProbe replaces the live credential probe.
func (r *Resolver) SetProbe(probe ProbeFunc) {
	r.probe = probe
}

// EnvCallerNumber returns the environment-configured default caller number.
// It applies regardless of which credential source wins resolution.
func (r *Resolver) EnvCallerNumber() string {
	return strings.TrimSpace(os.Getenv(r.callerVar))
}

// Override carries per-request credentials taking precedence over every
// configured source.
type Override struct {
	AccountSID string
	AuthToken  string
}

// Resolve returns the first working credential pair in precedence order:
// request override, environment, persisted config, then simulated outside
// production. The winning source is logged; secrets never are.
func (r *Resolver) Resolve(ctx context.Context, override *Override) (domain.CredentialSet, error) {
	type candidate struct {
		source domain.CredentialSource
		sets   []domain.CredentialSet
	}

	var candidates []candidate
	if override != nil && override.AccountSID != "" && override.AuthToken != "" {
		candidates = append(candidates, candidate{domain.SourceRequestOverride, []domain.CredentialSet{{
			AccountID: strings.TrimSpace(override.AccountSID),
			Secret:    strings.TrimSpace(override.AuthToken),
			Source:    domain.SourceRequestOverride,
		}}})
	}
	if sets := r.environmentSets(); len(sets) > 0 {
		candidates = append(candidates, candidate{domain.SourceEnvironment, sets})
	}
	if set, ok := r.persistedSet(ctx); ok {
		candidates = append(candidates, candidate{domain.SourcePersistedConfig, []domain.CredentialSet{set}})
	}

	for _, cand := range candidates {
		for _, set := range cand.sets {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := r.probe(probeCtx, set.AccountID, set.Secret)
			cancel()
			if err == nil {
				logger.Base().Info("carrier credentials resolved",
					zap.String("source", string(set.Source)),
					zap.String("account_id", set.AccountID))
				return set, nil
			}
			logger.Base().Warn("credential source failed probe",
				zap.String("source", string(cand.source)),
				zap.Error(err))
		}
	}

	if !r.production {
		logger.Base().Info("no live carrier credentials, using simulated carrier")
		return domain.CredentialSet{
			CallerNumber: SimulatedCallerNumber,
			Source:       domain.SourceSimulated,
		}, nil
	}
	return domain.CredentialSet{}, domain.NewCallErrorWithHint(
		domain.ErrCodeNoCredentials,
		"no working carrier credentials found",
		"set TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN or store a carrier config record")
}

// environmentSets reads the env pair and expands it into decoding variants.
// Tokens pasted from dashboards or .env files sometimes arrive percent-encoded
// or wrapped in quotes; each plausible decoding is probed in turn.
func (r *Resolver) environmentSets() []domain.CredentialSet {
	sid := strings.TrimSpace(os.Getenv(r.accountVar))
	token := strings.TrimSpace(os.Getenv(r.tokenVar))
	if sid == "" || token == "" {
		return nil
	}
	caller := strings.TrimSpace(os.Getenv(r.callerVar))

	var sets []domain.CredentialSet
	seen := make(map[string]bool)
	for _, t := range tokenVariants(token) {
		if seen[t] {
			continue
		}
		seen[t] = true
		sets = append(sets, domain.CredentialSet{
			AccountID:    stripQuotes(sid),
			Secret:       t,
			CallerNumber: caller,
			Source:       domain.SourceEnvironment,
		})
	}
	return sets
}

func tokenVariants(token string) []string {
	variants := []string{token}
	if unquoted := stripQuotes(token); unquoted != token {
		variants = append(variants, unquoted)
	}
	if strings.Contains(token, "%") {
		if decoded, err := url.QueryUnescape(token); err == nil && decoded != token {
			variants = append(variants, stripQuotes(decoded))
		}
	}
	return variants
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (r *Resolver) persistedSet(ctx context.Context) (domain.CredentialSet, bool) {
	if r.store == nil {
		return domain.CredentialSet{}, false
	}
	cfg, err := r.store.GetCarrierConfig(ctx)
	if err != nil || cfg == nil || cfg.AccountSID == "" || cfg.AuthToken == "" {
		if err != nil {
			logger.Base().Warn("persisted carrier config unavailable", zap.Error(err))
		}
		return domain.CredentialSet{}, false
	}
	return domain.CredentialSet{
		AccountID:    cfg.AccountSID,
		Secret:       cfg.AuthToken,
		CallerNumber: cfg.CallerNumber,
		Source:       domain.SourcePersistedConfig,
	}, true
}
