package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
)

// EnsureUser returns the local mirror of an externally owned user, creating it with a zero balance.
func (s *gormStore) EnsureUser(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid user id %d", id)
	}
	u := model.User{ID: id}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}
	return s.GetUser(ctx, id)
}

func (s *gormStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, lookupErr(err, "user", id)
	}
	return &u, nil
}

// DebitBalance subtracts amount in one conditional statement so that concurrent
// debits can never take the balance below zero.
func (s *gormStore) DebitBalance(ctx context.Context, userID int64, amount model.Cents) error {
	if amount < 0 {
		return apperr.Validation("debit amount must not be negative")
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND balance_cents >= ?", userID, amount).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to debit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("insufficient balance")
	}
	return nil
}

// CreditBalance adds amount to the user's balance.
func (s *gormStore) CreditBalance(ctx context.Context, userID int64, amount model.Cents) (*model.User, error) {
	if amount <= 0 {
		return nil, apperr.Validation("credit amount must be positive")
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amount))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to credit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user %d not found", userID)
	}
	return s.GetUser(ctx, userID)
}
