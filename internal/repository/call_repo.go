package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
	"gorm.io/gorm"
)

// GormCallRepository implements CallRepository using GORM
type GormCallRepository struct {
	db *gorm.DB
}

// NewGormCallRepository creates a new GORM call repository
func NewGormCallRepository(db *gorm.DB) *GormCallRepository {
	return &GormCallRepository{db: db}
}

// Create persists a new call record
func (r *GormCallRepository) Create(ctx context.Context, call *domain.Call) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(call).Error; err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

// GetByCallID retrieves a call by its carrier call ID
func (r *GormCallRepository) GetByCallID(ctx context.Context, callID string) (*domain.Call, error) {
	var call domain.Call
	if err := r.db.WithContext(ctx).First(&call, "call_id = ?", callID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return &call, nil
}

// Update saves the full call record
func (r *GormCallRepository) Update(ctx context.Context, call *domain.Call) error {
	if err := r.db.WithContext(ctx).Save(call).Error; err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update keyed by carrier call ID
func (r *GormCallRepository) UpdateFields(ctx context.Context, callID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&domain.Call{}).Where("call_id = ?", callID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update call fields: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewCallError(domain.ErrCodeNotFound, fmt.Sprintf("call %s not found", callID))
	}
	return nil
}

// GetByAgentID retrieves recent calls for an agent, newest first
func (r *GormCallRepository) GetByAgentID(ctx context.Context, agentID string, limit int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	var calls []*domain.Call
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("failed to get calls by agent ID: %w", err)
	}
	return calls, nil
}

// AppendTranscriptTurn stores one conversation turn
func (r *GormCallRepository) AppendTranscriptTurn(ctx context.Context, turn *domain.TranscriptTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(turn).Error; err != nil {
		return fmt.Errorf("failed to append transcript turn: %w", err)
	}
	return nil
}

// GetTranscript retrieves all turns for a call in order
func (r *GormCallRepository) GetTranscript(ctx context.Context, callID string) ([]*domain.TranscriptTurn, error) {
	var turns []*domain.TranscriptTurn
	if err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("seq ASC").
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return turns, nil
}
