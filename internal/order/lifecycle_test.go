package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/db"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *recordingNotifier) PickupCodeIssued(_ context.Context, o *model.Order, cabinetCode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, cabinetCode+":"+*o.PickupCode)
}

type fixture struct {
	store    store.Store
	svc      *Service
	now      time.Time
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	f := &fixture{
		store:    store.NewGormStore(gormDB),
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, WithClock(func() time.Time { return f.now }), WithNotifier(f.notifier))
	return f
}

func (f *fixture) cabinet(t *testing.T, code string, price model.Cents) {
	t.Helper()
	require.NoError(t, f.store.CreateCabinet(context.Background(), &model.Cabinet{
		Code: code, Size: model.SizeMedium, Station: "north", PricePerHour: price,
	}))
}

func (f *fixture) user(t *testing.T, id int64, balance model.Cents) {
	t.Helper()
	_, err := f.store.EnsureUser(context.Background(), id)
	require.NoError(t, err)
	if balance > 0 {
		_, err = f.store.CreditBalance(context.Background(), id, balance)
		require.NoError(t, err)
	}
}

func TestLifecycle_CreateAndPayWithBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 1000)

	o, err := f.svc.Create(ctx, 1, "C1", 2)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, model.Cents(400), o.TotalAmount)
	assert.Equal(t, model.Cents(200), o.PricePerHour)
	assert.Nil(t, o.PickupCode)
	assert.Regexp(t, `^O20240501120000[A-Z0-9]{4}$`, o.OrderNo)

	c, err := f.store.GetCabinet(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, model.CabinetInUse, c.Status)

	paid, err := f.svc.Pay(ctx, 1, o.ID, model.PayBalance)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, paid.Status)
	require.NotNil(t, paid.PickupCode)
	assert.True(t, ValidPickupCode(*paid.PickupCode))
	assert.True(t, paid.EndTime.Equal(f.now.Add(2*time.Hour)))

	u, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(600), u.Balance)
	assert.Equal(t, []string{"C1:" + *paid.PickupCode}, f.notifier.codes)

	reloaded, err := f.svc.Get(ctx, 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, *paid.PickupCode, *reloaded.PickupCode)
	assert.True(t, reloaded.EndTime.Equal(f.now.Add(2*time.Hour)))
}

func TestLifecycle_CreateRejectsUnavailableCabinet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 0)
	f.user(t, 2, 0)

	_, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, 2, "C1", 1)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	_, err = f.svc.Create(ctx, 2, "C404", 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.Create(ctx, 2, "C1", 0.25)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLifecycle_ConcurrentReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		f.user(t, int64(i+1), 0)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, int64(i+1), "C1", 1)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestLifecycle_ConcurrentBalancePayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 300)
	f.cabinet(t, "C2", 300)
	f.user(t, 1, 1000)

	// Two orders of 6.00 each against a balance of 10.00: exactly one can be paid.
	o1, err := f.svc.Create(ctx, 1, "C1", 2)
	require.NoError(t, err)
	o2, err := f.svc.Create(ctx, 1, "C2", 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{o1.ID, o2.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Pay(ctx, 1, id, model.PayBalance)
		}(i, id)
	}
	wg.Wait()

	var paid int
	for _, err := range errs {
		if err == nil {
			paid++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
		assert.Equal(t, "insufficient balance", apperr.Message(err))
	}
	assert.Equal(t, 1, paid)

	u, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(400), u.Balance)
}

func TestLifecycle_DoublePaySameOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 10000)

	o, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Pay(ctx, 1, o.ID, model.PayBalance)
		}(i)
	}
	wg.Wait()

	var paid int
	for _, err := range errs {
		if err == nil {
			paid++
		} else {
			assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
		}
	}
	assert.Equal(t, 1, paid)

	u, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(9800), u.Balance, "debited exactly once")
}

func TestLifecycle_PayValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 0)
	f.user(t, 2, 0)

	o, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, 1, o.ID, "cash")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Pay(ctx, 2, o.ID, model.PayWechat)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "other users cannot see the order")

	_, err = f.svc.Pay(ctx, 1, o.ID, model.PayBalance)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "zero balance")

	paid, err := f.svc.Pay(ctx, 1, o.ID, model.PayWechat)
	require.NoError(t, err)
	assert.Equal(t, model.PayWechat, paid.PaymentMethod)

	_, err = f.svc.Pay(ctx, 1, o.ID, model.PayWechat)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "already paid")
}

func TestLifecycle_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 0)

	o, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)

	c, err := f.store.GetCabinet(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, model.CabinetAvailable, c.Status)

	_, err = f.svc.Cancel(ctx, 1, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Paid orders cannot be cancelled.
	o2, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, 1, o2.ID, model.PayAlipay)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, 1, o2.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestLifecycle_Extend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 0)

	o, err := f.svc.Create(ctx, 1, "C1", 2)
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, 1, o.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "pending orders cannot be extended")

	_, err = f.svc.Pay(ctx, 1, o.ID, model.PayWechat)
	require.NoError(t, err)

	_, err = f.svc.Extend(ctx, 1, o.ID, 0.4)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	extended, err := f.svc.Extend(ctx, 1, o.ID, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, extended.DurationHours)
	assert.Equal(t, model.Cents(700), extended.TotalAmount)
	assert.True(t, extended.EndTime.Equal(f.now.Add(3*time.Hour+30*time.Minute)))

	reloaded, err := f.svc.Get(ctx, 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, reloaded.DurationHours)
	assert.Equal(t, model.Cents(700), reloaded.TotalAmount)
	assert.True(t, reloaded.EndTime.Equal(*extended.EndTime))

	// A stale copy is rejected instead of overwriting the first extension.
	stale := *o
	stale.Status = model.OrderPaid
	end := f.now.Add(2 * time.Hour)
	stale.EndTime = &end
	err = f.store.ExtendOrder(ctx, &stale, 1, 200, end.Add(time.Hour))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestLifecycle_MarkInUseAndComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cabinet(t, "C1", 200)
	f.user(t, 1, 0)

	o, err := f.svc.Create(ctx, 1, "C1", 1)
	require.NoError(t, err)
	assert.True(t, apperr.Is(f.svc.MarkInUse(ctx, o), apperr.KindConflict), "pending cannot be opened")

	paid, err := f.svc.Pay(ctx, 1, o.ID, model.PayWechat)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkInUse(ctx, paid))
	assert.Equal(t, model.OrderInUse, paid.Status)
	require.NoError(t, f.svc.MarkInUse(ctx, paid), "in_use stays in_use")

	f.now = f.now.Add(30 * time.Minute)
	done, err := f.svc.Complete(ctx, 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, done.Status)
	assert.Nil(t, done.PickupCode)
	assert.True(t, done.ActualEndTime.Equal(f.now))

	reloaded, err := f.svc.Get(ctx, AnyUser, o.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.PickupCode, "pickup code exists only while paid or in_use")
	require.NotNil(t, reloaded.ReleasedPickupCode)
	assert.Equal(t, *paid.PickupCode, *reloaded.ReleasedPickupCode)

	c, err := f.store.GetCabinet(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, model.CabinetAvailable, c.Status)

	_, err = f.svc.Complete(ctx, 1, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	mine, err := f.svc.ListMine(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestCodes(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewPickupCode()
		require.NoError(t, err)
		assert.True(t, ValidPickupCode(code), code)
	}
	assert.False(t, ValidPickupCode("12345"))
	assert.False(t, ValidPickupCode("12345a"))
	assert.False(t, ValidPickupCode("１２３４５６"))

	no, err := NewOrderNo(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Regexp(t, `^O20240102030405[A-Z0-9]{4}$`, no)
}
