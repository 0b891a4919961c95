package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"rolechat/internal/pkg/logger"
)

// New opens the embedded database at path. Foreign keys are enabled on every
// connection and the pool is limited to one writer.
func New(ctx context.Context, path string, log logrus.FieldLogger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path must be provided")
	}
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Gorm(log),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite sql db failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}
	return db, nil
}

func withForeignKeys(path string) string {
	if strings.Contains(path, "_foreign_keys=") || strings.Contains(path, "_fk=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}
