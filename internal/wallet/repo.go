package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	"github.com/inkwell-labs/inkwell-backend/pkg/pagination"
)

// Repository manages persistence for accounts, transactions and usage rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	GetAccountByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	SaveAccount(ctx context.Context, account *models.Account) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	CreateUsage(ctx context.Context, usage *models.Usage) error
	LinkUsageTransaction(ctx context.Context, usageID, transactionID uuid.UUID) error
	ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
	ListUsage(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Usage, error)
	GetPaymentBySquareID(ctx context.Context, squarePaymentID string) (*models.PaymentRecord, error)
	CreatePayment(ctx context.Context, payment *models.PaymentRecord) error
	DeletePaymentBySquareID(ctx context.Context, squarePaymentID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetAccountByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	q := r.db.WithContext(ctx)
	// sqlite (tests) rejects FOR UPDATE; its single-writer lock gives the
	// same serialization.
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.Account
	if err := q.Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) SaveAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"credits":     account.Credits,
			"total_spent": account.TotalSpent,
		}).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.Usage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *repository) LinkUsageTransaction(ctx context.Context, usageID, transactionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Usage{}).
		Where("id = ?", usageID).
		Update("transaction_id", transactionID).Error
}

func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var txns []models.Transaction
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListUsage(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.Usage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var usages []models.Usage
	if err := q.Find(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}

func (r *repository) GetPaymentBySquareID(ctx context.Context, squarePaymentID string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("square_payment_id = ?", squarePaymentID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) DeletePaymentBySquareID(ctx context.Context, squarePaymentID string) error {
	return r.db.WithContext(ctx).
		Where("square_payment_id = ?", squarePaymentID).
		Delete(&models.PaymentRecord{}).Error
}
