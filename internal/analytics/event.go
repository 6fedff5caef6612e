package analytics

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// UsageEvent is the analytics projection of one billed service call. It is
// published after the ledger write so the warehouse never sees a charge the
// database does not have.
type UsageEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	JobID           *uuid.UUID      `json:"job_id,omitempty"`
	UserID          uuid.UUID       `json:"user_id"`
	ServiceName     string          `json:"service_name"`
	ServiceCategory string          `json:"service_category"`
	Provider        enums.Provider  `json:"provider"`
	ModelName       string          `json:"model_name"`
	InputTokens     int64           `json:"input_tokens"`
	OutputTokens    int64           `json:"output_tokens"`
	ReasoningTokens int64           `json:"reasoning_tokens"`
	BaseCost        decimal.Decimal `json:"base_cost"`
	ActualCharge    decimal.Decimal `json:"actual_charge"`
	Charged         bool            `json:"charged"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
