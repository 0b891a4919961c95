package repository

import (
	"fmt"

	"gorm.io/gorm"

	"rolechat/internal/model"
)

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.ChatMessage{}, &model.Session{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}
