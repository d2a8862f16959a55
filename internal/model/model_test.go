package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCents(t *testing.T) {
	assert.Equal(t, "4.00", Cents(400).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-1.50", Cents(-150).String())

	assert.Equal(t, Cents(400), Cents(200).MulHours(2))
	assert.Equal(t, Cents(100), Cents(200).MulHours(0.5))
	assert.Equal(t, Cents(333), Cents(222).MulHours(1.5))

	b, err := json.Marshal(struct {
		Total Cents `json:"total"`
	}{Total: 1234})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"12.34"}`, string(b))

	var in struct {
		A Cents `json:"a"`
		B Cents `json:"b"`
		C Cents `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":2,"b":"2.50","c":0.1}`), &in))
	assert.Equal(t, Cents(200), in.A)
	assert.Equal(t, Cents(250), in.B)
	assert.Equal(t, Cents(10), in.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"two"}`), &in))
}

func TestDevice_EffectiveStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-4 * time.Minute)
	stale := now.Add(-5 * time.Minute)

	testCases := []struct {
		name     string
		device   Device
		expected DeviceStatus
	}{
		{"never seen", Device{Status: DeviceOnline}, DeviceOffline},
		{"recent heartbeat", Device{Status: DeviceOffline, LastHeartbeat: &recent}, DeviceOnline},
		{"heartbeat exactly at window", Device{Status: DeviceOnline, LastHeartbeat: &stale}, DeviceOffline},
		{"error sticks", Device{Status: DeviceError, LastHeartbeat: &recent}, DeviceError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.device.EffectiveStatus(now, 5*time.Minute))
		})
	}
}

func TestOrder_Predicates(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderPaid, OrderInUse} {
		o := Order{Status: s}
		assert.True(t, o.IsActive(), s)
	}
	for _, s := range []OrderStatus{OrderCompleted, OrderCancelled, OrderOverdue} {
		o := Order{Status: s}
		assert.False(t, o.IsActive(), s)
	}
	assert.True(t, (&Order{Status: OrderPaid}).CarriesPickupCode())
	assert.False(t, (&Order{Status: OrderPending}).CarriesPickupCode())
	assert.True(t, PayBalance.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
	assert.True(t, SizeLarge.Valid())
	assert.False(t, CabinetStatus("broken").Valid())
}
