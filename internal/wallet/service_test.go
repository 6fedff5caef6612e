package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	"github.com/inkwell-labs/inkwell-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:wallet_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  credits NUMERIC NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  plan TEXT NOT NULL DEFAULT 'free',
  total_spent NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  previous_balance NUMERIC NOT NULL,
  new_balance NUMERIC NOT NULL,
  description TEXT NOT NULL,
  reference_id TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS usages (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  job_id TEXT,
  service_name TEXT NOT NULL,
  service_category TEXT NOT NULL,
  provider TEXT NOT NULL,
  model_name TEXT NOT NULL,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  reasoning_tokens INTEGER NOT NULL DEFAULT 0,
  base_cost NUMERIC NOT NULL,
  multiplier NUMERIC NOT NULL,
  actual_charge NUMERIC NOT NULL,
  status TEXT NOT NULL,
  transaction_id TEXT,
  usage_data TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Tx:   gormTxRunner{db: db},
		Repo: NewRepository(db),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedAccount(t *testing.T, db *gorm.DB, userID uuid.UUID, credits string) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:         uuid.New(),
		UserID:     userID,
		Credits:    decimal.RequireFromString(credits),
		Currency:   "usd",
		Plan:       "free",
		TotalSpent: decimal.Zero,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestRecordUsageAndCharge_Success(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	seedAccount(t, db, userID, "10.0")
	jobID := uuid.New()

	result, err := svc.RecordUsageAndCharge(ctx, RecordUsageInput{
		UserID:          userID,
		ServiceName:     "blog_generation",
		ServiceCategory: "content_creation",
		Description:     "blog generation usage",
		Provider:        enums.ProviderAnthropic,
		ModelName:       "claude-3-sonnet",
		InputTokens:     100,
		OutputTokens:    50,
		BaseCost:        decimal.RequireFromString("0.00105"),
		Multiplier:      decimal.RequireFromString("5"),
		JobID:           &jobID,
	})
	if err != nil {
		t.Fatalf("RecordUsageAndCharge error: %v", err)
	}

	wantBalance := decimal.RequireFromString("9.99475")
	if !result.NewBalance.Equal(wantBalance) {
		t.Fatalf("new balance %s, want %s", result.NewBalance, wantBalance)
	}
	if !result.PreviousBalance.Equal(decimal.RequireFromString("10.0")) {
		t.Fatalf("previous balance %s", result.PreviousBalance)
	}

	var account models.Account
	if err := db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !account.Credits.Equal(wantBalance) {
		t.Fatalf("stored balance %s, want %s", account.Credits, wantBalance)
	}
	if !account.TotalSpent.Equal(decimal.RequireFromString("0.00525")) {
		t.Fatalf("total spent %s", account.TotalSpent)
	}

	var txnCount, usageCount int64
	db.Model(&models.Transaction{}).Count(&txnCount)
	db.Model(&models.Usage{}).Count(&usageCount)
	if txnCount != 1 || usageCount != 1 {
		t.Fatalf("expected 1 transaction and 1 usage, got %d/%d", txnCount, usageCount)
	}

	var txn models.Transaction
	if err := db.First(&txn, "id = ?", result.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Type != enums.TransactionTypeDebit {
		t.Fatalf("transaction type %s", txn.Type)
	}
	if !txn.NewBalance.Equal(txn.PreviousBalance.Sub(txn.Amount)) {
		t.Fatalf("ledger arithmetic broken: %s != %s - %s", txn.NewBalance, txn.PreviousBalance, txn.Amount)
	}

	var usage models.Usage
	if err := db.First(&usage, "id = ?", result.UsageID).Error; err != nil {
		t.Fatalf("load usage: %v", err)
	}
	if usage.TransactionID == nil || *usage.TransactionID != result.TransactionID {
		t.Fatalf("usage not linked to transaction")
	}
	if usage.UserID != userID {
		t.Fatalf("usage user %s, want %s", usage.UserID, userID)
	}
	if usage.Status != enums.UsageStatusCompleted {
		t.Fatalf("usage status %s", usage.Status)
	}
}

func TestRecordUsageAndCharge_InsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	seedAccount(t, db, userID, "0.001")

	_, err := svc.RecordUsageAndCharge(ctx, RecordUsageInput{
		UserID:      userID,
		ServiceName: "blog_generation",
		Description: "blog generation usage",
		BaseCost:    decimal.RequireFromString("0.00105"),
		Multiplier:  decimal.RequireFromString("5"),
	})
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if !insufficient.Shortfall().Equal(decimal.RequireFromString("0.00425")) {
		t.Fatalf("shortfall %s, want 0.00425", insufficient.Shortfall())
	}

	// Nothing may be written on the failure path.
	var txnCount, usageCount int64
	db.Model(&models.Transaction{}).Count(&txnCount)
	db.Model(&models.Usage{}).Count(&usageCount)
	if txnCount != 0 || usageCount != 0 {
		t.Fatalf("expected no rows, got %d transactions / %d usages", txnCount, usageCount)
	}

	var account models.Account
	if err := db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !account.Credits.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("balance changed to %s", account.Credits)
	}
}

func TestRecordUsageAndCharge_JointOverdraftRejected(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// Sqlite has no row lock, so a single pooled connection stands in for the
	// FOR UPDATE serialization the service gets on postgres: each transaction
	// holds the connection end to end and re-reads the balance it left behind.
	sqlDB.SetMaxOpenConns(1)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	seedAccount(t, db, userID, "10")

	charge := RecordUsageInput{
		UserID:      userID,
		ServiceName: "blog_generation",
		Description: "blog generation usage",
		BaseCost:    decimal.RequireFromString("1.2"),
		Multiplier:  decimal.RequireFromString("5"),
	}

	// Each charge is 6.0: individually affordable against 10, jointly 12 > 10.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RecordUsageAndCharge(ctx, charge)
		}(i)
	}
	wg.Wait()

	var succeeded, declined int
	for _, err := range errs {
		var insufficient *InsufficientBalanceError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &insufficient):
			declined++
		default:
			t.Fatalf("unexpected charge error: %v", err)
		}
	}
	if succeeded != 1 || declined != 1 {
		t.Fatalf("got %d successes and %d declines, want exactly one of each", succeeded, declined)
	}

	var account models.Account
	if err := db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !account.Credits.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("balance %s, want 4 (one debit only)", account.Credits)
	}

	var txnCount, usageCount int64
	db.Model(&models.Transaction{}).Count(&txnCount)
	db.Model(&models.Usage{}).Count(&usageCount)
	if txnCount != 1 || usageCount != 1 {
		t.Fatalf("expected exactly 1 transaction and 1 usage, got %d/%d", txnCount, usageCount)
	}
}

func TestRecordUsageAndCharge_LazyAccountCreation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	// A brand-new user has a zero balance, so any positive charge declines.
	// The lazily-created account rides in the same transaction and rolls back
	// with it, leaving no row behind.
	userID := uuid.New()
	_, err := svc.RecordUsageAndCharge(ctx, RecordUsageInput{
		UserID:      userID,
		ServiceName: "blog_generation",
		Description: "blog generation usage",
		BaseCost:    decimal.RequireFromString("0.01"),
		Multiplier:  decimal.RequireFromString("5"),
	})
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	var account models.Account
	err = db.Where("user_id = ?", userID).First(&account).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("account row should have rolled back, got %v", err)
	}
}

func TestCreditAndCheckBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	result, err := svc.Credit(ctx, CreditInput{
		UserID:      userID,
		Amount:      decimal.RequireFromString("25"),
		Description: "square top-up",
	})
	if err != nil {
		t.Fatalf("Credit error: %v", err)
	}
	if !result.NewBalance.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("new balance %s", result.NewBalance)
	}

	var account models.Account
	if err := db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if account.Currency != "usd" {
		t.Fatalf("currency %q, want usd", account.Currency)
	}

	if err := svc.CheckBalance(ctx, userID, decimal.RequireFromString("20")); err != nil {
		t.Fatalf("CheckBalance should pass: %v", err)
	}

	err = svc.CheckBalance(ctx, userID, decimal.RequireFromString("30"))
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if !insufficient.Shortfall().Equal(decimal.RequireFromString("5")) {
		t.Fatalf("shortfall %s", insufficient.Shortfall())
	}

	var txn models.Transaction
	if err := db.First(&txn, "id = ?", result.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Type != enums.TransactionTypeCredit {
		t.Fatalf("transaction type %s", txn.Type)
	}
}

func TestTransactionsAndUsageHistory(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	seedAccount(t, db, userID, "100")

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordUsageAndCharge(ctx, RecordUsageInput{
			UserID:      userID,
			ServiceName: "blog_generation",
			Description: "blog generation usage",
			BaseCost:    decimal.RequireFromString("0.5"),
			Multiplier:  decimal.RequireFromString("5"),
		}); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}

	txns, err := svc.Transactions(ctx, userID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("Transactions error: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txns))
	}

	usages, err := svc.UsageHistory(ctx, userID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("UsageHistory error: %v", err)
	}
	if len(usages) != 3 {
		t.Fatalf("expected 3 usages, got %d", len(usages))
	}
}

func TestRecordUsageAndChargeValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	cases := []RecordUsageInput{
		{ServiceName: "blog_generation", BaseCost: decimal.NewFromInt(1), Multiplier: decimal.NewFromInt(5)},
		{UserID: uuid.New(), BaseCost: decimal.NewFromInt(1), Multiplier: decimal.NewFromInt(5)},
		{UserID: uuid.New(), ServiceName: "blog_generation", BaseCost: decimal.NewFromInt(-1), Multiplier: decimal.NewFromInt(5)},
		{UserID: uuid.New(), ServiceName: "blog_generation", BaseCost: decimal.NewFromInt(1)},
	}
	for i, input := range cases {
		if _, err := svc.RecordUsageAndCharge(ctx, input); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
