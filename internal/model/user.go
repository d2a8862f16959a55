package model

import "time"

// User mirrors an account owned by the external identity service.
// Only the balance is managed here.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Balance   Cents     `gorm:"column:balance_cents;not null" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
