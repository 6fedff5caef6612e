package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecord tracks a Square payment that tops up an account's credits.
// SquarePaymentID is unique so webhook retries stay idempotent.
type PaymentRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID       uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	SquarePaymentID string          `gorm:"column:square_payment_id;not null;unique"`
	AmountCents     int64           `gorm:"column:amount_cents;not null"`
	Currency        string          `gorm:"column:currency;not null;default:'usd'"`
	CreditsGranted  decimal.Decimal `gorm:"column:credits_granted;type:numeric(14,6);not null"`
	Status          string          `gorm:"column:status;not null"`
	Metadata        json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
