package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

// MemoryRepositoryManager keeps everything in process memory. Used when no
// database is configured and throughout the test suite.
type MemoryRepositoryManager struct {
	callRepo      *MemoryCallRepository
	agentRepo     *MemoryAgentRepository
	carrierConfig *MemoryCarrierConfigRepository
}

// NewMemoryRepositoryManager creates an empty in-memory repository manager.
func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		callRepo:      NewMemoryCallRepository(),
		agentRepo:     NewMemoryAgentRepository(),
		carrierConfig: &MemoryCarrierConfigRepository{},
	}
}

func (m *MemoryRepositoryManager) Call() CallRepository {
	return m.callRepo
}

func (m *MemoryRepositoryManager) Agent() AgentRepository {
	return m.agentRepo
}

func (m *MemoryRepositoryManager) CarrierConfig() CarrierConfigRepository {
	return m.carrierConfig
}

func (m *MemoryRepositoryManager) Ping(context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}

// SeedAgent inserts or replaces an agent record.
func (m *MemoryRepositoryManager) SeedAgent(agent *domain.Agent) {
	m.agentRepo.Put(agent)
}

// SetCarrierConfig sets the persisted credential record.
func (m *MemoryRepositoryManager) SetCarrierConfig(cfg *domain.CarrierConfig) {
	m.carrierConfig.Set(cfg)
}

// MemoryCallRepository is the in-memory CallRepository.
type MemoryCallRepository struct {
	mu          sync.RWMutex
	calls       map[string]*domain.Call // keyed by carrier call ID
	transcripts map[string][]*domain.TranscriptTurn
}

func NewMemoryCallRepository() *MemoryCallRepository {
	return &MemoryCallRepository{
		calls:       make(map[string]*domain.Call),
		transcripts: make(map[string][]*domain.TranscriptTurn),
	}
}

func (r *MemoryCallRepository) Create(_ context.Context, call *domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	now := time.Now()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	cp := *call
	r.calls[call.CallID] = &cp
	return nil
}

func (r *MemoryCallRepository) GetByCallID(_ context.Context, callID string) (*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[callID]
	if !ok {
		return nil, domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
	}
	cp := *call
	return &cp, nil
}

func (r *MemoryCallRepository) Update(_ context.Context, call *domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call.UpdatedAt = time.Now()
	cp := *call
	r.calls[call.CallID] = &cp
	return nil
}

func (r *MemoryCallRepository) UpdateFields(_ context.Context, callID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
	}
	for key, value := range updates {
		switch key {
		case "status":
			switch v := value.(type) {
			case domain.CallStatus:
				call.Status = v
			case string:
				call.Status = domain.CallStatus(v)
			}
		case "recording_id":
			if v, ok := value.(string); ok {
				call.RecordingID = v
			}
		case "recording_url":
			if v, ok := value.(string); ok {
				call.RecordingURL = v
			}
		case "started_at":
			if v, ok := value.(*time.Time); ok {
				call.StartedAt = v
			}
		case "ended_at":
			if v, ok := value.(*time.Time); ok {
				call.EndedAt = v
			}
		}
	}
	call.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryCallRepository) GetByAgentID(_ context.Context, agentID string, limit int) ([]*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var calls []*domain.Call
	for _, call := range r.calls {
		if call.AgentID == agentID {
			cp := *call
			calls = append(calls, &cp)
		}
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].CreatedAt.After(calls[j].CreatedAt)
	})
	if len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

func (r *MemoryCallRepository) AppendTranscriptTurn(_ context.Context, turn *domain.TranscriptTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	cp := *turn
	r.transcripts[turn.CallID] = append(r.transcripts[turn.CallID], &cp)
	return nil
}

func (r *MemoryCallRepository) GetTranscript(_ context.Context, callID string) ([]*domain.TranscriptTurn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	turns := make([]*domain.TranscriptTurn, 0, len(r.transcripts[callID]))
	for _, turn := range r.transcripts[callID] {
		cp := *turn
		turns = append(turns, &cp)
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Seq < turns[j].Seq })
	return turns, nil
}

// MemoryAgentRepository is the in-memory AgentRepository.
type MemoryAgentRepository struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

func NewMemoryAgentRepository() *MemoryAgentRepository {
	return &MemoryAgentRepository{agents: make(map[string]*domain.Agent)}
}

func (r *MemoryAgentRepository) Put(agent *domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *agent
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.agents[agent.ID] = &cp
}

func (r *MemoryAgentRepository) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, domain.NewCallError(domain.ErrCodeAgentNotFound, fmt.Sprintf("agent %s not found", id))
	}
	cp := *agent
	return &cp, nil
}

func (r *MemoryAgentRepository) GetAll(_ context.Context, includeInactive bool) ([]*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var agents []*domain.Agent
	for _, agent := range r.agents {
		if !includeInactive && !agent.Active {
			continue
		}
		cp := *agent
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.After(agents[j].CreatedAt)
	})
	return agents, nil
}

// MemoryCarrierConfigRepository is the in-memory CarrierConfigRepository.
type MemoryCarrierConfigRepository struct {
	mu  sync.RWMutex
	cfg *domain.CarrierConfig
}

func (r *MemoryCarrierConfigRepository) Set(cfg *domain.CarrierConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

func (r *MemoryCarrierConfigRepository) GetCarrierConfig(context.Context) (*domain.CarrierConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cfg == nil {
		return nil, nil
	}
	cp := *r.cfg
	return &cp, nil
}
