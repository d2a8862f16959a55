package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm/clause"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/parse"
)

// CreateCabinet validates and inserts a cabinet. New cabinets start closed and locked.
func (s *gormStore) CreateCabinet(ctx context.Context, c *model.Cabinet) error {
	code, err := parse.ParseCabinetCode(c.Code)
	if err != nil {
		return apperr.Validation("invalid cabinet_id: %v", err)
	}
	c.Code = code.Raw
	if !c.Size.Valid() {
		return apperr.Validation("invalid size %q", c.Size)
	}
	if c.Status == "" {
		c.Status = model.CabinetAvailable
	}
	if !c.Status.Valid() || c.Status == model.CabinetInUse {
		return apperr.Validation("invalid initial status %q", c.Status)
	}
	if c.PricePerHour < 0 {
		return apperr.Validation("price_per_hour must not be negative")
	}
	if c.Station == "" {
		return apperr.Validation("station is required")
	}
	c.IsLocked = true
	c.LockLocked = true

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return writeErr(err, fmt.Sprintf("cabinet %s already exists", c.Code), "failed to create cabinet %s", c.Code)
	}
	return nil
}

func (s *gormStore) GetCabinet(ctx context.Context, code string) (*model.Cabinet, error) {
	if parsed, err := parse.ParseCabinetCode(code); err == nil {
		code = parsed.Raw
	}
	var c model.Cabinet
	if err := s.db.WithContext(ctx).Preload("Device").Where("code = ?", code).First(&c).Error; err != nil {
		return nil, lookupErr(err, "cabinet", code)
	}
	return &c, nil
}

func (s *gormStore) GetCabinetByID(ctx context.Context, id int64) (*model.Cabinet, error) {
	var c model.Cabinet
	if err := s.db.WithContext(ctx).Preload("Device").First(&c, id).Error; err != nil {
		return nil, lookupErr(err, "cabinet", id)
	}
	return &c, nil
}

// ListCabinets returns cabinets ordered by station, then natural cabinet order.
func (s *gormStore) ListCabinets(ctx context.Context, f CabinetFilter) ([]model.Cabinet, error) {
	q := s.db.WithContext(ctx).Model(&model.Cabinet{}).Preload("Device")
	if f.Station != "" {
		q = q.Where("station = ?", f.Station)
	}
	if f.Size != "" {
		q = q.Where("size = ?", f.Size)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var cabinets []model.Cabinet
	if err := q.Order("station").Order("code").Find(&cabinets).Error; err != nil {
		return nil, fmt.Errorf("failed to list cabinets: %w", err)
	}
	slices.SortStableFunc(cabinets, func(a, b model.Cabinet) int {
		return cmp.Or(cmp.Compare(a.Station, b.Station), parse.CompareCabinetCodes(a.Code, b.Code))
	})
	return cabinets, nil
}

// UpdateCabinet applies an operator edit. in_use is owned by the order lifecycle:
// it cannot be set directly, and a cabinet holding an active order cannot leave it.
func (s *gormStore) UpdateCabinet(ctx context.Context, c *model.Cabinet, u CabinetUpdate) error {
	changes := map[string]any{}
	if u.Status != nil && *u.Status != c.Status {
		if !u.Status.Valid() {
			return apperr.Validation("invalid status %q", *u.Status)
		}
		if *u.Status == model.CabinetInUse {
			return apperr.Validation("status in_use is set by orders only")
		}
		if c.Status == model.CabinetInUse {
			active, err := s.HasActiveOrder(ctx, c.ID)
			if err != nil {
				return err
			}
			if active {
				return apperr.Conflict("cabinet %s has an active order", c.Code)
			}
		}
		changes["status"] = *u.Status
	}
	if u.PricePerHour != nil {
		if *u.PricePerHour < 0 {
			return apperr.Validation("price_per_hour must not be negative")
		}
		changes["price_per_hour_cents"] = *u.PricePerHour
	}
	if u.Location != nil {
		changes["location"] = *u.Location
	}
	if len(changes) == 0 {
		return nil
	}

	q := s.db.WithContext(ctx).Model(&model.Cabinet{}).Where("id = ?", c.ID)
	if _, ok := changes["status"]; ok {
		// Guard against a reservation that landed after c was read.
		q = q.Where("status = ?", c.Status)
	}
	res := q.Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to update cabinet %s: %w", c.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("cabinet %s changed concurrently", c.Code)
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.PricePerHour != nil {
		c.PricePerHour = *u.PricePerHour
	}
	if u.Location != nil {
		c.Location = *u.Location
	}
	return nil
}

// ReserveCabinet flips an available cabinet to in_use with a single conditional update.
func (s *gormStore) ReserveCabinet(ctx context.Context, c *model.Cabinet) error {
	res := s.db.WithContext(ctx).Model(&model.Cabinet{}).
		Where("id = ? AND status = ?", c.ID, model.CabinetAvailable).
		Update("status", model.CabinetInUse)
	if res.Error != nil {
		return fmt.Errorf("failed to reserve cabinet %s: %w", c.Code, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("cabinet %s is not available", c.Code)
	}
	c.Status = model.CabinetInUse
	return nil
}

func (s *gormStore) ReleaseCabinet(ctx context.Context, cabinetID int64) error {
	err := s.db.WithContext(ctx).Model(&model.Cabinet{}).
		Where("id = ? AND status = ?", cabinetID, model.CabinetInUse).
		Update("status", model.CabinetAvailable).Error
	if err != nil {
		return fmt.Errorf("failed to release cabinet %d: %w", cabinetID, err)
	}
	return nil
}

// MarkCabinetOpened records the optimistic state after an open command was queued.
// The next status report from the device overwrites it.
func (s *gormStore) MarkCabinetOpened(ctx context.Context, cabinetID int64, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Cabinet{}).Where("id = ?", cabinetID).Updates(map[string]any{
		"status":                model.CabinetInUse,
		"is_locked":             false,
		"lock_state_updated_at": now,
		"lock_state_source":     model.LockStateOptimistic,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark cabinet %d opened: %w", cabinetID, err)
	}
	return nil
}

// ApplySensorReport overwrites the lock fields of one cabinet bound to deviceID.
func (s *gormStore) ApplySensorReport(ctx context.Context, deviceID int64, r SensorReport, now time.Time) (*model.Cabinet, error) {
	c, err := s.GetCabinet(ctx, r.CabinetCode)
	if err != nil {
		return nil, err
	}
	if c.DeviceID == nil || *c.DeviceID != deviceID {
		return nil, apperr.Validation("cabinet %s is not bound to this device", c.Code)
	}

	changes := map[string]any{
		"lock_angle":            r.LockAngle,
		"lock_locked":           r.LockLocked,
		"is_locked":             r.DoorClosed,
		"has_item":              r.HasItem,
		"lock_state_updated_at": now,
		"lock_state_source":     model.LockStateDevice,
	}
	switch {
	case r.HasItem && !c.HasItem:
		changes["item_detected_at"] = now
		c.ItemDetectedAt = &now
	case !r.HasItem:
		changes["item_detected_at"] = nil
		c.ItemDetectedAt = nil
	}

	if err := s.db.WithContext(ctx).Model(&model.Cabinet{}).Where("id = ?", c.ID).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to apply report to cabinet %s: %w", c.Code, err)
	}

	c.LockAngle = r.LockAngle
	c.LockLocked = r.LockLocked
	c.IsLocked = r.DoorClosed
	c.HasItem = r.HasItem
	c.LockStateUpdatedAt = &now
	c.LockStateSource = model.LockStateDevice
	return c, nil
}

// MaintenanceCabinets lists cabinets flagged for maintenance.
func (s *gormStore) MaintenanceCabinets(ctx context.Context) ([]model.Cabinet, error) {
	var cabinets []model.Cabinet
	if err := s.db.WithContext(ctx).Where("status = ?", model.CabinetMaintenance).Order("station").Order("code").Find(&cabinets).Error; err != nil {
		return nil, fmt.Errorf("failed to list maintenance cabinets: %w", err)
	}
	return cabinets, nil
}
