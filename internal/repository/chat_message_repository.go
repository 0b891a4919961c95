package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rolechat/internal/model"
)

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create chat message failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's whole history, oldest first.
func (r *ChatMessageRepository) ListByUserID(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	messages := make([]model.ChatMessage, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	return messages, nil
}

func (r *ChatMessageRepository) LatestByUserID(ctx context.Context, userID uint) (*model.ChatMessage, error) {
	var message model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest chat message failed: %w", err)
	}
	return &message, nil
}
