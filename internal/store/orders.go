package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
)

// CreateOrder inserts an order. A second active order on the same cabinet is a Conflict.
func (s *gormStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(o).Error; err != nil {
		return writeErr(err, "cabinet already has an active order", "failed to create order %s", o.OrderNo)
	}
	return nil
}

// GetOrder loads an order with its cabinet.
func (s *gormStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	if err := s.db.WithContext(ctx).Preload("Cabinet").First(&o, id).Error; err != nil {
		return nil, lookupErr(err, "order", id)
	}
	return &o, nil
}

func (s *gormStore) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	q := s.db.WithContext(ctx).Preload("Cabinet")
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.CabinetID != 0 {
		q = q.Where("cabinet_id = ?", f.CabinetID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var orders []model.Order
	if err := q.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// FindActiveOrderByCode returns the paid or in-use order on the cabinet carrying code, or nil.
func (s *gormStore) FindActiveOrderByCode(ctx context.Context, cabinetID int64, code string) (*model.Order, error) {
	return s.findOrder(ctx, "cabinet_id = ? AND pickup_code = ? AND status IN ?",
		cabinetID, code, []model.OrderStatus{model.OrderPaid, model.OrderInUse})
}

// FindReleasedOrderByCode returns the most recent finished order whose code was code, or nil.
func (s *gormStore) FindReleasedOrderByCode(ctx context.Context, cabinetID int64, code string) (*model.Order, error) {
	return s.findOrder(ctx, "cabinet_id = ? AND released_pickup_code = ?", cabinetID, code)
}

func (s *gormStore) findOrder(ctx context.Context, query string, args ...any) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Where(query, args...).Order("id DESC").First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	return &o, nil
}

func (s *gormStore) HasActiveOrder(ctx context.Context, cabinetID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("cabinet_id = ? AND status IN ?", cabinetID, model.ActiveOrderStatuses).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to count active orders for cabinet %d: %w", cabinetID, err)
	}
	return n > 0, nil
}

// UpdateOrder applies changes only while the order is in one of the from states.
// Zero affected rows means another transition won the race, reported as Conflict.
func (s *gormStore) UpdateOrder(ctx context.Context, id int64, from []model.OrderStatus, changes map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		names := make([]string, len(from))
		for i, st := range from {
			names[i] = string(st)
		}
		return apperr.Conflict("order must be %s", strings.Join(names, " or "))
	}
	return nil
}

// ExtendOrder adds hours and amount to a paid or in-use order. The update is
// guarded on the end time that was read, so concurrent extensions cannot lose one another.
func (s *gormStore) ExtendOrder(ctx context.Context, o *model.Order, hours float64, amount model.Cents, newEnd time.Time) error {
	if o.EndTime == nil {
		return apperr.Conflict("order %s has no end time", o.OrderNo)
	}
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ? AND end_time = ?", o.ID, []model.OrderStatus{model.OrderPaid, model.OrderInUse}, *o.EndTime).
		Updates(map[string]any{
			"duration_hours":     gorm.Expr("duration_hours + ?", hours),
			"total_amount_cents": gorm.Expr("total_amount_cents + ?", amount),
			"end_time":           newEnd,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to extend order %s: %w", o.OrderNo, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("order %s changed while extending, retry", o.OrderNo)
	}
	return nil
}

// OverdueOrders lists in-use orders whose end time has passed.
func (s *gormStore) OverdueOrders(ctx context.Context, now time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Preload("Cabinet").
		Where("status = ? AND end_time IS NOT NULL AND end_time < ?", model.OrderInUse, now).
		Order("end_time").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue orders: %w", err)
	}
	return orders, nil
}
