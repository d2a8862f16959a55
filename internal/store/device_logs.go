package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smart-locker-backend/internal/model"
)

// AppendLog writes one log entry. CreatedAt is kept when set by the caller.
func (s *gormStore) AppendLog(ctx context.Context, entry *model.DeviceLog) error {
	if err := s.db.WithContext(ctx).Omit("Device").Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append %s log for device %d: %w", entry.Kind, entry.DeviceID, err)
	}
	return nil
}

// LatestLog returns the newest entry of kind created at or after since, or nil if none.
func (s *gormStore) LatestLog(ctx context.Context, deviceID int64, kind model.LogKind, since time.Time) (*model.DeviceLog, error) {
	var entry model.DeviceLog
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND kind = ? AND created_at >= ?", deviceID, kind, since).
		Order("created_at DESC").Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s log for device %d: %w", kind, deviceID, err)
	}
	return &entry, nil
}

// ListLogs returns the newest entries for a device, newest first.
func (s *gormStore) ListLogs(ctx context.Context, deviceID int64, limit int) ([]model.DeviceLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []model.DeviceLog
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for device %d: %w", deviceID, err)
	}
	return entries, nil
}
