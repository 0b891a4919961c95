package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rolechat/internal/model"
)

// SessionRepository keeps login sessions in the auth_session table.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Save(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) UpdateRole(ctx context.Context, id, role string) error {
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Update("role", role).Error; err != nil {
		return fmt.Errorf("update session role failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
