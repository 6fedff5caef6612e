package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/api/middleware"
	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/api/validators"
	"github.com/inkwell-labs/inkwell-backend/internal/generation"
	"github.com/inkwell-labs/inkwell-backend/internal/pricing"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const (
	// Rough chars-per-token heuristic used only for the pre-flight estimate.
	estimateCharsPerToken = 4
	defaultEstimateTokens = 4096
)

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job generation.Job) error
}

type balanceChecker interface {
	CheckBalance(ctx context.Context, userID uuid.UUID, required decimal.Decimal) error
}

type generateRequest struct {
	Title             string   `json:"title" validate:"omitempty,max=300"`
	SystemPrompt      string   `json:"system_prompt" validate:"omitempty,max=20000"`
	UserPrompt        string   `json:"user_prompt" validate:"required,max=40000"`
	Formality         string   `json:"formality" validate:"omitempty,max=40"`
	Keywords          []string `json:"keywords" validate:"omitempty,max=25,dive,max=80"`
	MaxTokens         int      `json:"max_tokens" validate:"omitempty,min=1,max=32768"`
	Temperature       float64  `json:"temperature" validate:"omitempty,min=0,max=2"`
	WithFeaturedImage bool     `json:"with_featured_image"`
}

type generateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Model  string `json:"model"`
}

// BlogGenerate checks the wallet can plausibly cover the job, then enqueues
// it. The real charge happens post-stream from actual usage; this gate only
// rejects callers who clearly cannot pay.
func BlogGenerate(enqueuer jobEnqueuer, checker balanceChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		blogID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "blog id must be a uuid"))
			return
		}
		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var body generateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		handle := provider.SelectProvider(provider.PolicyInput{Formality: body.Formality})

		required, err := estimateCharge(handle.Model, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := checker.CheckBalance(ctx, userID, required); err != nil {
			var insufficient *wallet.InsufficientBalanceError
			if errors.As(err, &insufficient) {
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance for generation").
						WithDetails(map[string]any{
							"required":  insufficient.Required.String(),
							"available": insufficient.Available.String(),
							"shortfall": insufficient.Shortfall().String(),
						}))
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		job := generation.Job{
			JobID:             blogID,
			UserID:            userID,
			Title:             body.Title,
			SystemPrompt:      body.SystemPrompt,
			UserPrompt:        body.UserPrompt,
			Formality:         body.Formality,
			Keywords:          body.Keywords,
			MaxTokens:         body.MaxTokens,
			Temperature:       body.Temperature,
			WithFeaturedImage: body.WithFeaturedImage,
		}
		if err := enqueuer.Enqueue(ctx, job); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, generateResponse{
			JobID:  blogID.String(),
			Status: "pending",
			Model:  handle.Model,
		})
	}
}

// estimateCharge prices a worst-case run of the job so the pre-flight gate
// errs on the side of letting borderline balances through to the exact
// post-stream charge.
func estimateCharge(model string, body generateRequest) (decimal.Decimal, error) {
	outputTokens := int64(body.MaxTokens)
	if outputTokens <= 0 {
		outputTokens = defaultEstimateTokens
	}
	inputTokens := int64((len(body.SystemPrompt) + len(body.UserPrompt)) / estimateCharsPerToken)

	breakdown, err := pricing.ComputeCost(generation.BlogServiceName, model, inputTokens, outputTokens, 0)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeUnknownModel, err, "price estimate unavailable")
	}
	return breakdown.ActualCharge, nil
}
