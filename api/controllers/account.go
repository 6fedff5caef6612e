package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/inkwell-backend/api/middleware"
	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/api/validators"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/pagination"
)

type accountResponse struct {
	Credits    string `json:"credits"`
	Currency   string `json:"currency"`
	Plan       string `json:"plan"`
	TotalSpent string `json:"total_spent"`
}

type transactionPayload struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Amount          string    `json:"amount"`
	PreviousBalance string    `json:"previous_balance"`
	NewBalance      string    `json:"new_balance"`
	Description     string    `json:"description"`
	ReferenceID     *string   `json:"reference_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type usagePayload struct {
	ID              string    `json:"id"`
	JobID           *string   `json:"job_id,omitempty"`
	ServiceName     string    `json:"service_name"`
	ServiceCategory string    `json:"service_category"`
	Provider        string    `json:"provider"`
	ModelName       string    `json:"model_name"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	ReasoningTokens int64     `json:"reasoning_tokens"`
	BaseCost        string    `json:"base_cost"`
	Multiplier      string    `json:"multiplier"`
	ActualCharge    string    `json:"actual_charge"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type listResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// AccountBalance returns the caller's wallet snapshot.
func AccountBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		account, err := svc.Balance(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, accountResponse{
			Credits:    account.Credits.String(),
			Currency:   account.Currency,
			Plan:       account.Plan,
			TotalSpent: account.TotalSpent.String(),
		})
	}
}

// AccountTransactions lists the ledger newest-first with cursor pagination.
func AccountTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txns, err := svc.Transactions(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit := pagination.NormalizeLimit(params.Limit)
		out := listResponse[transactionPayload]{Items: make([]transactionPayload, 0, limit)}
		for i, txn := range txns {
			if i == limit {
				last := txns[limit-1]
				out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
				break
			}
			out.Items = append(out.Items, toTransactionPayload(txn))
		}
		responses.WriteSuccess(w, out)
	}
}

// AccountUsage lists metered usage rows, optionally filtered by service
// name or originating job.
func AccountUsage(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		usages, err := svc.UsageHistory(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		serviceFilter := r.URL.Query().Get("service")
		jobFilter := r.URL.Query().Get("job_id")

		limit := pagination.NormalizeLimit(params.Limit)
		out := listResponse[usagePayload]{Items: make([]usagePayload, 0, limit)}
		for i, usage := range usages {
			if i == limit {
				last := usages[limit-1]
				out.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
				break
			}
			if serviceFilter != "" && usage.ServiceName != serviceFilter {
				continue
			}
			if jobFilter != "" && (usage.JobID == nil || usage.JobID.String() != jobFilter) {
				continue
			}
			out.Items = append(out.Items, toUsagePayload(usage))
		}
		responses.WriteSuccess(w, out)
	}
}

func authedUserID(r *http.Request) (uuid.UUID, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return userID, nil
}

func listParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}, nil
}

func toTransactionPayload(txn models.Transaction) transactionPayload {
	p := transactionPayload{
		ID:              txn.ID.String(),
		Type:            txn.Type.String(),
		Amount:          txn.Amount.String(),
		PreviousBalance: txn.PreviousBalance.String(),
		NewBalance:      txn.NewBalance.String(),
		Description:     txn.Description,
		CreatedAt:       txn.CreatedAt,
	}
	if txn.ReferenceID != nil {
		ref := txn.ReferenceID.String()
		p.ReferenceID = &ref
	}
	return p
}

func toUsagePayload(usage models.Usage) usagePayload {
	p := usagePayload{
		ID:              usage.ID.String(),
		ServiceName:     usage.ServiceName,
		ServiceCategory: usage.ServiceCategory,
		Provider:        usage.Provider.String(),
		ModelName:       usage.ModelName,
		InputTokens:     usage.InputTokens,
		OutputTokens:    usage.OutputTokens,
		ReasoningTokens: usage.ReasoningTokens,
		BaseCost:        usage.BaseCost.String(),
		Multiplier:      usage.Multiplier.String(),
		ActualCharge:    usage.ActualCharge.String(),
		Status:          usage.Status.String(),
		CreatedAt:       usage.CreatedAt,
	}
	if usage.JobID != nil {
		jobID := usage.JobID.String()
		p.JobID = &jobID
	}
	return p
}
