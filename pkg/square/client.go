package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errWebhookKeyRequired  = errors.New("square webhook signature key is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client wraps the Square SDK with centralized auth, logging and error
// mapping. Inkwell only reads payments; checkout happens on Square-hosted
// pages and lands here through webhooks.
type Client struct {
	sdk         *sqclient.Client
	environment string
	webhookKey  string
	baseURL     string
	logger      *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := cfg.Environment()
	if env != sandboxEnv && env != productionEnv {
		return nil, errInvalidSquareEnv
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	webhookKey := strings.TrimSpace(cfg.WebhookKey)
	if webhookKey == "" {
		return nil, errWebhookKeyRequired
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:         sdk,
		environment: env,
		webhookKey:  webhookKey,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "square client initialized")
	return c, nil
}

// SigningSecret returns the webhook signature key.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookKey
}

// Payment is the normalized slice of a Square payment the wallet needs.
type Payment struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
	ReferenceID string
}

// GetPayment fetches one payment by id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	trimmed := strings.TrimSpace(paymentID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: trimmed})
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get payment")
	}

	payment := normalizePayment(resp.GetPayment())
	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
	return payment, nil
}

func normalizePayment(p *sq.Payment) *Payment {
	out := &Payment{}
	if p == nil {
		return out
	}
	out.ID = stringValue(p.GetID())
	out.Status = stringValue(p.GetStatus())
	out.ReferenceID = stringValue(p.GetReferenceID())
	if money := p.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			out.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			out.Currency = string(*currency)
		}
	}
	return out
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	merged := map[string]any{"square_op": op, "phase": phase}
	for k, v := range fields {
		merged[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, merged), "square api call")
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
