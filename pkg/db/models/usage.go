package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// Usage captures one metered AI call: token counts, the raw provider cost,
// and the multiplied charge actually debited from the account.
type Usage struct {
	ID              uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID       uuid.UUID         `gorm:"column:account_id;type:uuid;not null;index"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	JobID           *uuid.UUID        `gorm:"column:job_id;type:uuid;index"`
	ServiceName     string            `gorm:"column:service_name;not null"`
	ServiceCategory string            `gorm:"column:service_category;not null"`
	Provider        enums.Provider    `gorm:"column:provider;not null"`
	ModelName       string            `gorm:"column:model_name;not null"`
	InputTokens     int64             `gorm:"column:input_tokens;not null;default:0"`
	OutputTokens    int64             `gorm:"column:output_tokens;not null;default:0"`
	ReasoningTokens int64             `gorm:"column:reasoning_tokens;not null;default:0"`
	BaseCost        decimal.Decimal   `gorm:"column:base_cost;type:numeric(14,6);not null"`
	Multiplier      decimal.Decimal   `gorm:"column:multiplier;type:numeric(8,2);not null"`
	ActualCharge    decimal.Decimal   `gorm:"column:actual_charge;type:numeric(14,6);not null"`
	Status          enums.UsageStatus `gorm:"column:status;type:usage_status_enum;not null"`
	TransactionID   *uuid.UUID        `gorm:"column:transaction_id;type:uuid"`
	UsageData       json.RawMessage   `gorm:"column:usage_data;type:jsonb"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}
