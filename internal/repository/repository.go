package repository

import (
	"context"

	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

// CallRepository defines persistence for call records and their transcripts.
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByCallID(ctx context.Context, callID string) (*domain.Call, error)
	Update(ctx context.Context, call *domain.Call) error
	UpdateFields(ctx context.Context, callID string, updates map[string]interface{}) error
	GetByAgentID(ctx context.Context, agentID string, limit int) ([]*domain.Call, error)

	AppendTranscriptTurn(ctx context.Context, turn *domain.TranscriptTurn) error
	GetTranscript(ctx context.Context, callID string) ([]*domain.TranscriptTurn, error)
}

// AgentRepository defines read access to calling personas.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	GetAll(ctx context.Context, includeInactive bool) ([]*domain.Agent, error)
}

// CarrierConfigRepository reads the persisted carrier credential record.
// Writes happen through an external admin surface, not this service.
type CarrierConfigRepository interface {
	GetCarrierConfig(ctx context.Context) (*domain.CarrierConfig, error)
}

// RepositoryManager combines all repositories
type RepositoryManager interface {
	Call() CallRepository
	Agent() AgentRepository
	CarrierConfig() CarrierConfigRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}
