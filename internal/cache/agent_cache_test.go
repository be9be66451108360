package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
)

func TestAgentCacheReadThrough(t *testing.T) {
	repos := repository.NewMemoryRepositoryManager()
	repos.SeedAgent(&domain.Agent{ID: "7", Name: "Ava", Active: true})

	c := NewAgentCache(repos.Agent(), time.Minute)

	agent, err := c.GetAgent(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Ava", agent.Name)

	// The returned value is a copy; mutating it must not poison the cache.
	agent.Name = "mutated"
	again, err := c.GetAgent(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Ava", again.Name)
}

func TestAgentCacheMiss(t *testing.T) {
	repos := repository.NewMemoryRepositoryManager()
	c := NewAgentCache(repos.Agent(), time.Minute)

	_, err := c.GetAgent(context.Background(), "999")
	assert.True(t, domain.IsCode(err, domain.ErrCodeAgentNotFound))
}

func TestAgentCacheServesCachedCopyWithinTTL(t *testing.T) {
	repos := repository.NewMemoryRepositoryManager()
	repos.SeedAgent(&domain.Agent{ID: "7", Name: "Ava", Active: true})

	c := NewAgentCache(repos.Agent(), time.Hour)
	_, err := c.GetAgent(context.Background(), "7")
	require.NoError(t, err)

	// Update behind the cache; within the TTL the old copy is served.
	repos.SeedAgent(&domain.Agent{ID: "7", Name: "Renamed", Active: true})
	agent, err := c.GetAgent(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Ava", agent.Name)

	c.Invalidate("7")
	agent, err = c.GetAgent(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", agent.Name)
}
