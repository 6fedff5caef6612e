package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/db"
	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/square"
)

const (
	paymentStatusCompleted = "COMPLETED"

	// Checkout prices are in cents and one US dollar buys one credit.
	centsPerCredit = 100
)

type paymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*square.Payment, error)
}

type paymentRepository interface {
	GetPaymentBySquareID(ctx context.Context, squarePaymentID string) (*models.PaymentRecord, error)
	CreatePayment(ctx context.Context, payment *models.PaymentRecord) error
	DeletePaymentBySquareID(ctx context.Context, squarePaymentID string) error
}

type creditWallet interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	Credit(ctx context.Context, input wallet.CreditInput) (*wallet.ChargeResult, error)
}

type ServiceParams struct {
	Repo   paymentRepository
	Wallet creditWallet
	Square paymentFetcher
	Logger *logger.Logger
}

// Service converts completed Square payments into wallet credits.
type Service struct {
	repo   paymentRepository
	wallet creditWallet
	square paymentFetcher
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repo required")
	}
	if params.Wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet service required")
	}
	if params.Square == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:   params.Repo,
		wallet: params.Wallet,
		square: params.Square,
		logg:   params.Logger,
	}, nil
}

type WebhookEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Data    WebhookData `json:"data"`
}

type WebhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	Payment *PaymentPayload `json:"payment"`
}

// PaymentPayload is the payment object as Square delivers it in webhooks.
type PaymentPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	AmountMoney Money  `json:"amount_money"`
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// HandleEvent processes Square payment events. Events that are not payment
// events, or payments that have not completed yet, are dropped without error
// so Square does not retry them.
func (s *Service) HandleEvent(ctx context.Context, event *WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		payment, err := s.resolvePayment(ctx, event)
		if err != nil {
			return err
		}
		return s.creditCompletedPayment(ctx, payment)
	default:
		return nil
	}
}

// resolvePayment prefers the payment embedded in the event and falls back to
// fetching it from Square when the webhook only carries the object id.
func (s *Service) resolvePayment(ctx context.Context, event *WebhookEvent) (*square.Payment, error) {
	if embedded := event.Data.Object.Payment; embedded != nil {
		return &square.Payment{
			ID:          embedded.ID,
			Status:      embedded.Status,
			AmountCents: embedded.AmountMoney.Amount,
			Currency:    embedded.AmountMoney.Currency,
			ReferenceID: embedded.ReferenceID,
		}, nil
	}

	paymentID := strings.TrimSpace(event.Data.ID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	payment, err := s.square.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch square payment")
	}
	return payment, nil
}

func (s *Service) creditCompletedPayment(ctx context.Context, payment *square.Payment) error {
	if payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"square_payment_id": payment.ID})

	if !strings.EqualFold(payment.Status, paymentStatusCompleted) {
		s.logg.Info(logCtx, "skipping payment that has not completed")
		return nil
	}
	if payment.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	userID, err := uuid.Parse(strings.TrimSpace(payment.ReferenceID))
	if err != nil {
		// Payments created outside our checkout flow carry no user
		// reference. Nothing to credit.
		s.logg.Warn(logCtx, "payment has no user reference, skipping")
		return nil
	}

	if existing, err := s.repo.GetPaymentBySquareID(ctx, payment.ID); err == nil && existing != nil {
		s.logg.Info(logCtx, "payment already credited")
		return nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment record")
	}

	account, err := s.wallet.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}

	credits := decimal.NewFromInt(payment.AmountCents).
		Div(decimal.NewFromInt(centsPerCredit))

	metadata, _ := json.Marshal(map[string]string{
		"reference_id": payment.ReferenceID,
	})
	record := &models.PaymentRecord{
		ID:              uuid.New(),
		AccountID:       account.ID,
		SquarePaymentID: payment.ID,
		AmountCents:     payment.AmountCents,
		Currency:        strings.ToLower(payment.Currency),
		CreditsGranted:  credits,
		Status:          paymentStatusCompleted,
		Metadata:        metadata,
	}
	// The unique square_payment_id column makes this the idempotency gate:
	// a concurrent redelivery loses the insert race and stops here.
	if err := s.repo.CreatePayment(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "") {
			s.logg.Warn(logCtx, "payment already recorded, skipping credit")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record payment")
	}

	if _, err := s.wallet.Credit(ctx, wallet.CreditInput{
		UserID:      userID,
		Amount:      credits,
		Description: fmt.Sprintf("Credit purchase (payment %s)", payment.ID),
		ReferenceID: &record.ID,
	}); err != nil {
		// Roll back the record so a webhook retry can credit again.
		if delErr := s.repo.DeletePaymentBySquareID(ctx, payment.ID); delErr != nil {
			s.logg.Error(ctx, "failed to release payment record after credit failure", delErr)
		}
		return fmt.Errorf("credit wallet: %w", err)
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"credits_granted": credits.String(),
	}), "payment credited")
	return nil
}
