package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Cabinets
	CreateCabinet(ctx context.Context, c *model.Cabinet) error
	GetCabinet(ctx context.Context, code string) (*model.Cabinet, error)
	GetCabinetByID(ctx context.Context, id int64) (*model.Cabinet, error)
	ListCabinets(ctx context.Context, f CabinetFilter) ([]model.Cabinet, error)
	UpdateCabinet(ctx context.Context, c *model.Cabinet, u CabinetUpdate) error
	ReserveCabinet(ctx context.Context, c *model.Cabinet) error
	ReleaseCabinet(ctx context.Context, cabinetID int64) error
	MarkCabinetOpened(ctx context.Context, cabinetID int64, now time.Time) error
	ApplySensorReport(ctx context.Context, deviceID int64, r SensorReport, now time.Time) (*model.Cabinet, error)

	// Devices
	CreateDevice(ctx context.Context, d *model.Device, cabinetCodes []string) error
	GetDevice(ctx context.Context, code string) (*model.Device, error)
	GetDeviceByAPIKey(ctx context.Context, apiKey string) (*model.Device, error)
	ListDevices(ctx context.Context, f DeviceFilter) ([]model.Device, error)
	UpdateDevice(ctx context.Context, d *model.Device, u DeviceUpdate) error
	RecordHeartbeat(ctx context.Context, deviceID int64, now time.Time, battery *int) error

	// Device logs
	AppendLog(ctx context.Context, entry *model.DeviceLog) error
	LatestLog(ctx context.Context, deviceID int64, kind model.LogKind, since time.Time) (*model.DeviceLog, error)
	ListLogs(ctx context.Context, deviceID int64, limit int) ([]model.DeviceLog, error)

	// Orders
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error)
	FindActiveOrderByCode(ctx context.Context, cabinetID int64, code string) (*model.Order, error)
	FindReleasedOrderByCode(ctx context.Context, cabinetID int64, code string) (*model.Order, error)
	HasActiveOrder(ctx context.Context, cabinetID int64) (bool, error)
	UpdateOrder(ctx context.Context, id int64, from []model.OrderStatus, changes map[string]any) error
	ExtendOrder(ctx context.Context, o *model.Order, hours float64, amount model.Cents, newEnd time.Time) error

	// Users
	EnsureUser(ctx context.Context, id int64) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	DebitBalance(ctx context.Context, userID int64, amount model.Cents) error
	CreditBalance(ctx context.Context, userID int64, amount model.Cents) (*model.User, error)

	// Push subscriptions
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, userID int64, endpoint string) error
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error)

	// Alert sources
	StaleDevices(ctx context.Context, heartbeatBefore time.Time) ([]model.Device, error)
	LowBatteryDevices(ctx context.Context, below int) ([]model.Device, error)
	OverdueOrders(ctx context.Context, now time.Time) ([]model.Order, error)
	MaintenanceCabinets(ctx context.Context) ([]model.Cabinet, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// lookupErr maps a missing row to NotFound and wraps everything else.
func lookupErr(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %v not found", what, key)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, key, err)
}

// writeErr maps unique violations to Conflict and wraps everything else.
func writeErr(err error, conflictMsg string, format string, args ...any) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("%s", conflictMsg)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
