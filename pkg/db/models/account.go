package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the prepaid credit wallet for a user.
type Account struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Credits    decimal.Decimal `gorm:"column:credits;type:numeric(14,6);not null;default:0"`
	Currency   string          `gorm:"column:currency;not null;default:'usd'"`
	Plan       string          `gorm:"column:plan;not null;default:'free'"`
	TotalSpent decimal.Decimal `gorm:"column:total_spent;type:numeric(14,6);not null;default:0"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
