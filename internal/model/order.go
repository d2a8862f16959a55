package model

import "time"

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderInUse     OrderStatus = "in_use"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderOverdue   OrderStatus = "overdue"
)

// ActiveOrderStatuses hold their cabinet in use.
var ActiveOrderStatuses = []OrderStatus{OrderPending, OrderPaid, OrderInUse}

// PaymentMethod is how an order was paid.
type PaymentMethod string

const (
	PayWechat  PaymentMethod = "wechat"
	PayAlipay  PaymentMethod = "alipay"
	PayBalance PaymentMethod = "balance"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayWechat, PayAlipay, PayBalance:
		return true
	}
	return false
}

// Order ties a user to a cabinet for a paid period.
type Order struct {
	ID            int64         `gorm:"primaryKey" json:"id"`
	OrderNo       string        `gorm:"uniqueIndex;size:32;not null" json:"order_no"`
	UserID        int64         `gorm:"index;not null" json:"user_id"`
	CabinetID     int64         `gorm:"not null" json:"-"`
	Status        OrderStatus   `gorm:"size:20;index;not null" json:"status"`
	PaymentMethod PaymentMethod `gorm:"size:20" json:"payment_method,omitempty"`

	DurationHours float64 `gorm:"type:decimal(6,2);not null" json:"duration_hours"`
	PricePerHour  Cents   `gorm:"column:price_per_hour_cents;not null" json:"price_per_hour"`
	TotalAmount   Cents   `gorm:"column:total_amount_cents;not null" json:"total_amount"`

	PickupCode         *string `gorm:"size:6" json:"pickup_code"`
	ReleasedPickupCode *string `gorm:"size:6" json:"-"`

	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	ActualEndTime *time.Time `json:"actual_end_time"`

	// Associations
	User    *User    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Cabinet *Cabinet `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsActive reports whether the order still holds its cabinet.
func (o *Order) IsActive() bool {
	for _, s := range ActiveOrderStatuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// CarriesPickupCode reports whether the status is one in which a pickup code exists.
func (o *Order) CarriesPickupCode() bool {
	return o.Status == OrderPaid || o.Status == OrderInUse
}
