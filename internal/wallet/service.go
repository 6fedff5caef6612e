package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
	"github.com/inkwell-labs/inkwell-backend/pkg/pagination"
)

// TxRunner executes a function inside one storage transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only entry point allowed to move credits on an account.
// Every balance change lands together with its audit rows or not at all.
type Service interface {
	RecordUsageAndCharge(ctx context.Context, input RecordUsageInput) (*ChargeResult, error)
	Credit(ctx context.Context, input CreditInput) (*ChargeResult, error)
	Balance(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	CheckBalance(ctx context.Context, userID uuid.UUID, required decimal.Decimal) error
	Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
	UsageHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Usage, error)
}

// RecordUsageInput captures one metered service invocation to debit.
type RecordUsageInput struct {
	UserID          uuid.UUID
	ServiceName     string
	ServiceCategory string
	Description     string
	Provider        enums.Provider
	ModelName       string
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	BaseCost        decimal.Decimal
	Multiplier      decimal.Decimal
	UsageData       json.RawMessage
	JobID           *uuid.UUID
}

// CreditInput tops up an account, typically after a payment.
type CreditInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	ReferenceID *uuid.UUID
}

// ChargeResult reports the rows written by a successful balance movement.
type ChargeResult struct {
	UsageID         uuid.UUID
	TransactionID   uuid.UUID
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	ActualCharge    decimal.Decimal
}

// ServiceParams packages the dependencies of the wallet service.
type ServiceParams struct {
	Tx      TxRunner
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.BillingMetrics
}

type service struct {
	tx      TxRunner
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.BillingMetrics
}

// NewService wires a wallet service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet repository required")
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// RecordUsageAndCharge debits the account for one metered call. The balance
// check, Usage row, Transaction row and Account mutation all happen inside a
// single transaction with the Account row locked, so two concurrent charges
// cannot both pass the check against a stale balance.
func (s *service) RecordUsageAndCharge(ctx context.Context, input RecordUsageInput) (*ChargeResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ServiceName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service name is required")
	}
	if input.BaseCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base cost cannot be negative")
	}
	if input.Multiplier.IsNegative() || input.Multiplier.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "multiplier must be positive")
	}

	actualCharge := input.BaseCost.Mul(input.Multiplier)
	var result ChargeResult

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		account, err := s.loadOrCreateAccountLocked(ctx, repo, input.UserID)
		if err != nil {
			return err
		}

		if account.Credits.LessThan(actualCharge) {
			return &InsufficientBalanceError{
				Required:  actualCharge,
				Available: account.Credits,
			}
		}

		usage := &models.Usage{
			ID:              uuid.New(),
			AccountID:       account.ID,
			UserID:          input.UserID,
			JobID:           input.JobID,
			ServiceName:     input.ServiceName,
			ServiceCategory: input.ServiceCategory,
			Provider:        input.Provider,
			ModelName:       input.ModelName,
			InputTokens:     input.InputTokens,
			OutputTokens:    input.OutputTokens,
			ReasoningTokens: input.ReasoningTokens,
			BaseCost:        input.BaseCost,
			Multiplier:      input.Multiplier,
			ActualCharge:    actualCharge,
			Status:          enums.UsageStatusCompleted,
			UsageData:       input.UsageData,
		}
		if err := repo.CreateUsage(ctx, usage); err != nil {
			return fmt.Errorf("create usage: %w", err)
		}

		txn := &models.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Type:            enums.TransactionTypeDebit,
			Amount:          actualCharge,
			PreviousBalance: account.Credits,
			NewBalance:      account.Credits.Sub(actualCharge),
			Description:     input.Description,
			ReferenceID:     input.JobID,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		account.Credits = txn.NewBalance
		account.TotalSpent = account.TotalSpent.Add(actualCharge)
		if err := repo.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("apply balance: %w", err)
		}

		if err := repo.LinkUsageTransaction(ctx, usage.ID, txn.ID); err != nil {
			return fmt.Errorf("link usage transaction: %w", err)
		}

		result = ChargeResult{
			UsageID:         usage.ID,
			TransactionID:   txn.ID,
			PreviousBalance: txn.PreviousBalance,
			NewBalance:      txn.NewBalance,
			ActualCharge:    actualCharge,
		}
		return nil
	})
	if err != nil {
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) {
			s.metrics.IncDeclined(input.ServiceName)
			return nil, insufficient
		}
		return nil, err
	}

	s.metrics.ObserveCharge(input.ServiceName, actualCharge.InexactFloat64())
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"service":        input.ServiceName,
			"actual_charge":  actualCharge.String(),
			"new_balance":    result.NewBalance.String(),
			"transaction_id": result.TransactionID.String(),
		}), "usage charged")
	}
	return &result, nil
}

// Credit adds funds to the account, creating it on first touch.
func (s *service) Credit(ctx context.Context, input CreditInput) (*ChargeResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	var result ChargeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		account, err := s.loadOrCreateAccountLocked(ctx, repo, input.UserID)
		if err != nil {
			return err
		}

		txn := &models.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Type:            enums.TransactionTypeCredit,
			Amount:          input.Amount,
			PreviousBalance: account.Credits,
			NewBalance:      account.Credits.Add(input.Amount),
			Description:     input.Description,
			ReferenceID:     input.ReferenceID,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		account.Credits = txn.NewBalance
		if err := repo.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("apply balance: %w", err)
		}

		result = ChargeResult{
			TransactionID:   txn.ID,
			PreviousBalance: txn.PreviousBalance,
			NewBalance:      txn.NewBalance,
			ActualCharge:    input.Amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Balance returns the account for the user, creating an empty one on first access.
func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	account, err := s.repo.GetAccountByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Account{
		ID:         uuid.New(),
		UserID:     userID,
		Credits:    decimal.Zero,
		Currency:   "usd",
		Plan:       "free",
		TotalSpent: decimal.Zero,
	}
	if err := s.repo.CreateAccount(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// CheckBalance is the pre-flight gate an endpoint calls before enqueuing paid
// work. Returns an InsufficientBalanceError when the account cannot cover the
// required amount.
func (s *service) CheckBalance(ctx context.Context, userID uuid.UUID, required decimal.Decimal) error {
	account, err := s.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if account.Credits.LessThan(required) {
		return &InsufficientBalanceError{
			Required:  required,
			Available: account.Credits,
		}
	}
	return nil
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	account, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, account.ID, params)
}

func (s *service) UsageHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Usage, error) {
	account, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsage(ctx, account.ID, params)
}

func (s *service) loadOrCreateAccountLocked(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Account, error) {
	account, err := repo.GetAccountByUserIDForUpdate(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}

	created := &models.Account{
		ID:         uuid.New(),
		UserID:     userID,
		Credits:    decimal.Zero,
		Currency:   "usd",
		Plan:       "free",
		TotalSpent: decimal.Zero,
	}
	if err := repo.CreateAccount(ctx, created); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}
