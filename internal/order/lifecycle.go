// Package order implements the order state machine:
//
//	pending -> paid -> in_use -> completed
//	pending -> cancelled
//
// Every transition is a conditional update on the expected source state, and
// transitions that touch the cabinet or a balance run in one transaction.
package order

import (
	"context"
	"log"
	"math"
	"time"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

const (
	// MinHours is the shortest rental or extension.
	MinHours = 0.5
	// MaxHours keeps durations inside the decimal(6,2) column.
	MaxHours = 9999
)

// AnyUser skips the ownership check; used for operator access.
const AnyUser int64 = 0

// PickupNotifier is told about freshly minted pickup codes.
type PickupNotifier interface {
	PickupCodeIssued(ctx context.Context, o *model.Order, cabinetCode string)
}

// Service runs order transitions against a Store.
type Service struct {
	store    store.Store
	now      func() time.Time
	notifier PickupNotifier
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier registers a receiver for pickup codes issued on payment.
func WithNotifier(n PickupNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates an order Service.
func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// In returns a copy of the service bound to tx.
func (s *Service) In(tx store.Store) *Service {
	cp := *s
	cp.store = tx
	return &cp
}

func normalizeHours(h float64) (float64, error) {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, apperr.Validation("invalid duration")
	}
	h = math.Round(h*100) / 100
	if h < MinHours {
		return 0, apperr.Validation("duration must be at least %.1f hours", MinHours)
	}
	if h > MaxHours {
		return 0, apperr.Validation("duration must be at most %d hours", MaxHours)
	}
	return h, nil
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

// Create reserves the cabinet and inserts a pending order in one transaction.
func (s *Service) Create(ctx context.Context, userID int64, cabinetCode string, hours float64) (*model.Order, error) {
	hours, err := normalizeHours(hours)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	orderNo, err := NewOrderNo(now)
	if err != nil {
		return nil, apperr.Internal(err, "failed to create order")
	}

	var created *model.Order
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		cabinet, err := tx.GetCabinet(ctx, cabinetCode)
		if err != nil {
			return err
		}
		if err := tx.ReserveCabinet(ctx, cabinet); err != nil {
			return err
		}
		o := &model.Order{
			OrderNo:       orderNo,
			UserID:        userID,
			CabinetID:     cabinet.ID,
			Status:        model.OrderPending,
			DurationHours: hours,
			PricePerHour:  cabinet.PricePerHour,
			TotalAmount:   cabinet.PricePerHour.MulHours(hours),
			CreatedAt:     now,
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		o.Cabinet = cabinet
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("order %s created for cabinet %s (user %d, %.2fh, %s)", created.OrderNo, created.Cabinet.Code, userID, hours, created.TotalAmount)
	return created, nil
}

// load fetches an order and hides orders owned by someone else.
func (s *Service) load(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != AnyUser && o.UserID != userID {
		return nil, apperr.NotFound("order %d not found", orderID)
	}
	return o, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	return s.load(ctx, userID, orderID)
}

// ListMine returns the user's orders, newest first.
func (s *Service) ListMine(ctx context.Context, userID int64, status model.OrderStatus) ([]model.Order, error) {
	return s.store.ListOrders(ctx, store.OrderFilter{UserID: userID, Status: status})
}

// ListAll returns orders for operators.
func (s *Service) ListAll(ctx context.Context, f store.OrderFilter) ([]model.Order, error) {
	return s.store.ListOrders(ctx, f)
}

// Pay settles a pending order and mints its pickup code. A balance payment is
// debited in the same transaction with a single conditional update.
func (s *Service) Pay(ctx context.Context, userID, orderID int64, method model.PaymentMethod) (*model.Order, error) {
	if !method.Valid() {
		return nil, apperr.Validation("payment_method must be wechat, alipay or balance")
	}
	code, err := NewPickupCode()
	if err != nil {
		return nil, apperr.Internal(err, "failed to pay order")
	}

	var paid *model.Order
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		o, err := s.In(tx).load(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPending {
			return apperr.Conflict("order must be pending to pay, it is %s", o.Status)
		}
		if method == model.PayBalance {
			if err := tx.DebitBalance(ctx, o.UserID, o.TotalAmount); err != nil {
				return err
			}
		}

		now := s.now()
		end := now.Add(hoursToDuration(o.DurationHours))
		err = tx.UpdateOrder(ctx, o.ID, []model.OrderStatus{model.OrderPending}, map[string]any{
			"status":         model.OrderPaid,
			"payment_method": method,
			"paid_at":        now,
			"start_time":     now,
			"end_time":       end,
			"pickup_code":    code,
		})
		if err != nil {
			return err
		}
		o.Status = model.OrderPaid
		o.PaymentMethod = method
		o.PaidAt = &now
		o.StartTime = &now
		o.EndTime = &end
		o.PickupCode = &code
		paid = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("order %s paid via %s", paid.OrderNo, method)
	if s.notifier != nil && paid.Cabinet != nil {
		s.notifier.PickupCodeIssued(ctx, paid, paid.Cabinet.Code)
	}
	return paid, nil
}

// Cancel cancels a pending order and releases its cabinet.
func (s *Service) Cancel(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	var cancelled *model.Order
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		o, err := s.In(tx).load(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPending {
			return apperr.Conflict("only pending orders can be cancelled, it is %s", o.Status)
		}
		if err := tx.UpdateOrder(ctx, o.ID, []model.OrderStatus{model.OrderPending}, map[string]any{
			"status": model.OrderCancelled,
		}); err != nil {
			return err
		}
		if err := tx.ReleaseCabinet(ctx, o.CabinetID); err != nil {
			return err
		}
		o.Status = model.OrderCancelled
		if o.Cabinet != nil {
			o.Cabinet.Status = model.CabinetAvailable
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("order %s cancelled", cancelled.OrderNo)
	return cancelled, nil
}

// Extend adds hours to a paid or in-use order. The charge for the extra time is
// added to the total at the snapshot price.
func (s *Service) Extend(ctx context.Context, userID, orderID int64, hours float64) (*model.Order, error) {
	hours, err := normalizeHours(hours)
	if err != nil {
		return nil, err
	}
	o, err := s.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPaid && o.Status != model.OrderInUse {
		return nil, apperr.Conflict("order must be paid or in_use to extend, it is %s", o.Status)
	}
	if o.DurationHours+hours > MaxHours {
		return nil, apperr.Validation("duration must be at most %d hours", MaxHours)
	}

	amount := o.PricePerHour.MulHours(hours)
	newEnd := o.EndTime.Add(hoursToDuration(hours))
	if err := s.store.ExtendOrder(ctx, o, hours, amount, newEnd); err != nil {
		return nil, err
	}

	o.DurationHours = math.Round((o.DurationHours+hours)*100) / 100
	o.TotalAmount += amount
	o.EndTime = &newEnd
	log.Printf("order %s extended by %.2fh (+%s)", o.OrderNo, hours, amount)
	return o, nil
}

// MarkInUse records that the locker was opened with the pickup code.
// A paid order moves to in_use; an in-use order is left as is.
func (s *Service) MarkInUse(ctx context.Context, o *model.Order) error {
	switch o.Status {
	case model.OrderInUse:
		return nil
	case model.OrderPaid:
		if err := s.store.UpdateOrder(ctx, o.ID, []model.OrderStatus{model.OrderPaid}, map[string]any{
			"status": model.OrderInUse,
		}); err != nil {
			return err
		}
		o.Status = model.OrderInUse
		return nil
	default:
		return apperr.Conflict("order must be paid or in_use, it is %s", o.Status)
	}
}

// Complete finishes a paid or in-use order, retires its pickup code and frees the cabinet.
func (s *Service) Complete(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	var completed *model.Order
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		o, err := s.In(tx).load(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPaid && o.Status != model.OrderInUse {
			return apperr.Conflict("order must be paid or in_use to complete, it is %s", o.Status)
		}
		now := s.now()
		if err := tx.UpdateOrder(ctx, o.ID, []model.OrderStatus{model.OrderPaid, model.OrderInUse}, map[string]any{
			"status":               model.OrderCompleted,
			"actual_end_time":      now,
			"pickup_code":          nil,
			"released_pickup_code": o.PickupCode,
		}); err != nil {
			return err
		}
		if err := tx.ReleaseCabinet(ctx, o.CabinetID); err != nil {
			return err
		}
		o.Status = model.OrderCompleted
		o.ActualEndTime = &now
		o.ReleasedPickupCode = o.PickupCode
		o.PickupCode = nil
		if o.Cabinet != nil {
			o.Cabinet.Status = model.CabinetAvailable
		}
		completed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("order %s completed", completed.OrderNo)
	return completed, nil
}
