package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// DefaultAgentTTL bounds how stale a cached agent may get before the next
// lookup goes back to the repository.
const DefaultAgentTTL = 5 * time.Minute

// AgentCache provides thread-safe read-through caching of agent records.
// Webhooks hit agent lookups on every conversational turn, so these reads
// must not cost a database round trip each time.
type AgentCache struct {
	repo repository.AgentRepository
	ttl  time.Duration

	mutex  sync.RWMutex
	agents map[string]*cachedAgent
}

type cachedAgent struct {
	agent    *domain.Agent
	cachedAt time.Time
}

// NewAgentCache creates an agent cache over the given repository.
func NewAgentCache(repo repository.AgentRepository, ttl time.Duration) *AgentCache {
	if ttl <= 0 {
		ttl = DefaultAgentTTL
	}
	return &AgentCache{
		repo:   repo,
		ttl:    ttl,
		agents: make(map[string]*cachedAgent),
	}
}

// GetAgent retrieves an agent by ID, hitting the repository on miss or expiry.
// Returned values are copies; mutating them never corrupts the cache.
func (c *AgentCache) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	c.mutex.RLock()
	entry, ok := c.agents[id]
	c.mutex.RUnlock()

	if ok && time.Since(entry.cachedAt) < c.ttl {
		return c.copyAgent(entry.agent), nil
	}

	agent, err := c.repo.GetByID(ctx, id)
	if err != nil {
		// Serve the stale copy if the repository is briefly unreachable.
		if ok && !domain.IsCode(err, domain.ErrCodeAgentNotFound) {
			logger.Base().Warn("agent refresh failed, serving cached copy",
				zap.String("agent_id", id), zap.Error(err))
			return c.copyAgent(entry.agent), nil
		}
		return nil, err
	}

	c.mutex.Lock()
	c.agents[id] = &cachedAgent{agent: c.copyAgent(agent), cachedAt: time.Now()}
	c.mutex.Unlock()

	return agent, nil
}

// Invalidate drops one agent from the cache.
func (c *AgentCache) Invalidate(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.agents, id)
}

// InvalidateAll drops every cached agent.
func (c *AgentCache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.agents = make(map[string]*cachedAgent)
}

// copyAgent creates a deep copy to prevent external modifications
func (c *AgentCache) copyAgent(agent *domain.Agent) *domain.Agent {
	var cp domain.Agent
	if err := copier.Copy(&cp, agent); err != nil {
		logger.Base().Error("failed to copy agent", zap.Error(err))
		cp = *agent
	}
	return &cp
}
