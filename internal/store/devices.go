package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/parse"
)

// NewAPIKey returns a 32-character hex credential.
func NewAPIKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateDevice registers a controller and binds the given cabinets to it.
// A credential is generated when d.APIKey is empty.
func (s *gormStore) CreateDevice(ctx context.Context, d *model.Device, cabinetCodes []string) error {
	d.Code = strings.TrimSpace(d.Code)
	if d.Code == "" {
		return apperr.Validation("device_id is required")
	}
	if d.Station == "" {
		return apperr.Validation("station is required")
	}
	if d.APIKey == "" {
		d.APIKey = NewAPIKey()
	}
	if d.Status == "" {
		d.Status = model.DeviceOffline
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
			return writeErr(err, fmt.Sprintf("device %s already exists", d.Code), "failed to create device %s", d.Code)
		}
		return bindCabinets(tx, d, cabinetCodes)
	})
}

// bindCabinets makes codes the exact set of cabinets bound to d.
// A cabinet already bound to another device is a Conflict.
func bindCabinets(tx *gorm.DB, d *model.Device, codes []string) error {
	normalized := make([]string, 0, len(codes))
	seen := map[string]bool{}
	for _, raw := range codes {
		code, err := parse.ParseCabinetCode(raw)
		if err != nil {
			return apperr.Validation("invalid cabinet_id: %v", err)
		}
		if !seen[code.Raw] {
			seen[code.Raw] = true
			normalized = append(normalized, code.Raw)
		}
	}

	unbind := tx.Model(&model.Cabinet{}).Where("device_id = ?", d.ID)
	if len(normalized) > 0 {
		unbind = unbind.Where("code NOT IN ?", normalized)
	}
	if err := unbind.Update("device_id", nil).Error; err != nil {
		return fmt.Errorf("failed to unbind cabinets from device %s: %w", d.Code, err)
	}
	if len(normalized) == 0 {
		d.Cabinets = nil
		return nil
	}

	var cabinets []model.Cabinet
	if err := tx.Where("code IN ?", normalized).Find(&cabinets).Error; err != nil {
		return fmt.Errorf("failed to load cabinets for device %s: %w", d.Code, err)
	}
	if len(cabinets) != len(normalized) {
		found := map[string]bool{}
		for _, c := range cabinets {
			found[c.Code] = true
		}
		var missing []string
		for _, code := range normalized {
			if !found[code] {
				missing = append(missing, code)
			}
		}
		return apperr.NotFound("cabinets not found: %s", strings.Join(missing, ", "))
	}

	res := tx.Model(&model.Cabinet{}).
		Where("code IN ? AND (device_id IS NULL OR device_id = ?)", normalized, d.ID).
		Update("device_id", d.ID)
	if res.Error != nil {
		return fmt.Errorf("failed to bind cabinets to device %s: %w", d.Code, res.Error)
	}
	if res.RowsAffected != int64(len(normalized)) {
		var taken []string
		for _, c := range cabinets {
			if c.DeviceID != nil && *c.DeviceID != d.ID {
				taken = append(taken, c.Code)
			}
		}
		return apperr.Conflict("cabinets already bound to another device: %s", strings.Join(taken, ", "))
	}

	for i := range cabinets {
		cabinets[i].DeviceID = &d.ID
	}
	d.Cabinets = cabinets
	return nil
}

// GetDevice loads a device with its bound cabinets.
func (s *gormStore) GetDevice(ctx context.Context, code string) (*model.Device, error) {
	var d model.Device
	err := s.db.WithContext(ctx).
		Preload("Cabinets", func(db *gorm.DB) *gorm.DB { return db.Order("code") }).
		Where("code = ?", strings.TrimSpace(code)).
		First(&d).Error
	if err != nil {
		return nil, lookupErr(err, "device", code)
	}
	return &d, nil
}

// GetDeviceByAPIKey finds the device holding a credential.
func (s *gormStore) GetDeviceByAPIKey(ctx context.Context, apiKey string) (*model.Device, error) {
	var d model.Device
	err := s.db.WithContext(ctx).
		Preload("Cabinets", func(db *gorm.DB) *gorm.DB { return db.Order("code") }).
		Where("api_key = ?", apiKey).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up device by api key: %w", err)
	}
	return &d, nil
}

func (s *gormStore) ListDevices(ctx context.Context, f DeviceFilter) ([]model.Device, error) {
	q := s.db.WithContext(ctx).Preload("Cabinets", func(db *gorm.DB) *gorm.DB { return db.Order("code") })
	if f.Station != "" {
		q = q.Where("station = ?", f.Station)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	var devices []model.Device
	if err := q.Order("station").Order("code").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// UpdateDevice applies an operator edit, rebinding cabinets when requested.
func (s *gormStore) UpdateDevice(ctx context.Context, d *model.Device, u DeviceUpdate) error {
	if u.Status != nil {
		switch *u.Status {
		case model.DeviceOnline, model.DeviceOffline, model.DeviceError:
		default:
			return apperr.Validation("invalid status %q", *u.Status)
		}
	}
	if u.Station != nil && *u.Station == "" {
		return apperr.Validation("station must not be empty")
	}

	changes := map[string]any{}
	if u.Name != nil {
		changes["name"] = *u.Name
		d.Name = *u.Name
	}
	if u.Station != nil {
		changes["station"] = *u.Station
		d.Station = *u.Station
	}
	if u.Location != nil {
		changes["location"] = *u.Location
		d.Location = *u.Location
	}
	if u.IsActive != nil {
		changes["is_active"] = *u.IsActive
		d.IsActive = *u.IsActive
	}
	if u.Status != nil {
		changes["status"] = *u.Status
		d.Status = *u.Status
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			if err := tx.Model(&model.Device{}).Where("id = ?", d.ID).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update device %s: %w", d.Code, err)
			}
		}
		if u.CabinetCodes != nil {
			return bindCabinets(tx, d, *u.CabinetCodes)
		}
		return nil
	})
}

// RecordHeartbeat marks the device online as of now. A nil battery leaves the stored level.
func (s *gormStore) RecordHeartbeat(ctx context.Context, deviceID int64, now time.Time, battery *int) error {
	changes := map[string]any{
		"last_heartbeat": now,
		"status":         model.DeviceOnline,
	}
	if battery != nil {
		changes["battery_level"] = *battery
	}
	res := s.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", deviceID).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to record heartbeat for device %d: %w", deviceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("device %d not found", deviceID)
	}
	return nil
}

// StaleDevices lists active devices whose last heartbeat is older than heartbeatBefore.
// Devices that never sent one are not included.
func (s *gormStore) StaleDevices(ctx context.Context, heartbeatBefore time.Time) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?", true, heartbeatBefore).
		Order("last_heartbeat").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale devices: %w", err)
	}
	return devices, nil
}

// LowBatteryDevices lists active devices reporting a battery level below the threshold.
func (s *gormStore) LowBatteryDevices(ctx context.Context, below int) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND battery_level IS NOT NULL AND battery_level < ?", true, below).
		Order("battery_level").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list low battery devices: %w", err)
	}
	return devices, nil
}
