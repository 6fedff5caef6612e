package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// Transaction records an immutable balance movement on an account. Previous
// and new balance are stamped at write time so the ledger replays cleanly.
type Transaction struct {
	ID              uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID       uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index"`
	Type            enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:numeric(14,6);not null"`
	PreviousBalance decimal.Decimal       `gorm:"column:previous_balance;type:numeric(14,6);not null"`
	NewBalance      decimal.Decimal       `gorm:"column:new_balance;type:numeric(14,6);not null"`
	Description     string                `gorm:"column:description;not null"`
	ReferenceID     *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	Metadata        json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}
