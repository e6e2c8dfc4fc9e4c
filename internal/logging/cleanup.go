package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"gorm.io/gorm"
)

// PruneSystemLogs deletes system_logs recorded before cutoff.
func PruneSystemLogs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune system logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecentSystemLogs returns the newest stored records, optionally filtered by level.
func RecentSystemLogs(ctx context.Context, db *gorm.DB, level string, limit int) ([]models.SystemLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := db.WithContext(ctx).Model(&models.SystemLog{})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	var logs []models.SystemLog
	if err := query.Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to read system logs: %w", err)
	}
	return logs, nil
}
