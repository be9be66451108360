package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"gorm.io/gorm"
)

// GormAgentRepository implements AgentRepository using GORM
type GormAgentRepository struct {
	db *gorm.DB
}

// NewGormAgentRepository creates a new GORM agent repository
func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// GetByID retrieves an agent by ID
func (r *GormAgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewCallError(domain.ErrCodeAgentNotFound, fmt.Sprintf("agent %s not found", id))
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

// GetAll retrieves all agents
func (r *GormAgentRepository) GetAll(ctx context.Context, includeInactive bool) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	query := r.db.WithContext(ctx)
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	if err := query.Order("created_at DESC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}
	return agents, nil
}

// GormCarrierConfigRepository implements CarrierConfigRepository using GORM
type GormCarrierConfigRepository struct {
	db *gorm.DB
}

// NewGormCarrierConfigRepository creates a new GORM carrier config repository
func NewGormCarrierConfigRepository(db *gorm.DB) *GormCarrierConfigRepository {
	return &GormCarrierConfigRepository{db: db}
}

// GetCarrierConfig returns the most recently updated credential record, or
// nil when none has been stored.
func (r *GormCarrierConfigRepository) GetCarrierConfig(ctx context.Context) (*domain.CarrierConfig, error) {
	var cfg domain.CarrierConfig
	if err := r.db.WithContext(ctx).Order("updated_at DESC").First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get carrier config: %w", err)
	}
	return &cfg, nil
}
