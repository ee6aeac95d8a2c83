package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return nil, err
	}
	return wallet, nil
}

// UpdateBalance writes the new balance only if the stored balance still
// matches the value read at the start of the operation.
func (r *repository) UpdateBalance(ctx context.Context, walletID uuid.UUID, from, to decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance = ?", walletID, from).
		Update("balance", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SumTransactions(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Select("SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END)").
		Where("wallet_id = ?", walletID).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

func (r *repository) FindDuplicateGroups(ctx context.Context, walletID uuid.UUID) ([]DuplicateGroup, error) {
	type row struct {
		Reference string
		Count     int
		Total     string
		First     string
	}
	// The kept credit is the earliest one recorded, not the smallest;
	// duplicate deliveries can carry differing amounts.
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Select(`reference, COUNT(*) AS count, SUM(amount) AS total, (
			SELECT earliest.amount FROM wallet_transactions AS earliest
			WHERE earliest.wallet_id = ?
			  AND earliest.reference = wallet_transactions.reference
			  AND earliest.type = ?
			ORDER BY earliest.created_at ASC, earliest.id ASC
			LIMIT 1
		) AS first`, walletID, enums.TransactionTypeCredit).
		Where("wallet_id = ? AND type = ?", walletID, enums.TransactionTypeCredit).
		Group("reference").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	groups := make([]DuplicateGroup, 0, len(rows))
	for _, entry := range rows {
		total, err := decimal.NewFromString(entry.Total)
		if err != nil {
			return nil, err
		}
		first, err := decimal.NewFromString(entry.First)
		if err != nil {
			return nil, err
		}
		groups = append(groups, DuplicateGroup{
			Reference: entry.Reference,
			Count:     entry.Count,
			Total:     total,
			First:     first,
		})
	}
	return groups, nil
}

func (r *repository) ListWalletIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Pluck("id", &ids).Error
	return ids, err
}
