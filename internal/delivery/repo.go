package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Repository defines persistence for quotes, deliveries and tracking rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateQuotes(ctx context.Context, quotes []models.DeliveryQuote) error
	FindQuoteByID(ctx context.Context, quoteID uuid.UUID) (*models.DeliveryQuote, error)
	ListQuotesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryQuote, error)
	FindSelectedQuote(ctx context.Context, orderID uuid.UUID) (*models.DeliveryQuote, error)
	UpdateQuoteStatus(ctx context.Context, quoteID uuid.UUID, from, to enums.QuoteStatus) (bool, error)
	CancelSiblingQuotes(ctx context.Context, orderID, keepID uuid.UUID) (int64, error)
	ListExpiredPendingQuotes(ctx context.Context, cutoff time.Time, limit int) ([]models.DeliveryQuote, error)
	CreateDelivery(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error)
	FindDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
	FindDeliveryByTracking(ctx context.Context, provider enums.DeliveryProvider, trackingNumber string) (*models.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, deliveryID uuid.UUID, from, to enums.DeliveryStatus, updates map[string]any) (bool, error)
	AppendTracking(ctx context.Context, row *models.DeliveryTracking) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateQuotes(ctx context.Context, quotes []models.DeliveryQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&quotes).Error
}

func (r *repository) FindQuoteByID(ctx context.Context, quoteID uuid.UUID) (*models.DeliveryQuote, error) {
	var quote models.DeliveryQuote
	err := r.db.WithContext(ctx).Where("id = ?", quoteID).First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func (r *repository) ListQuotesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryQuote, error) {
	var rows []models.DeliveryQuote
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("fee ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindSelectedQuote(ctx context.Context, orderID uuid.UUID) (*models.DeliveryQuote, error) {
	var quote models.DeliveryQuote
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.QuoteStatusSelected).
		First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

// UpdateQuoteStatus is a compare-and-set on quote status.
func (r *repository) UpdateQuoteStatus(ctx context.Context, quoteID uuid.UUID, from, to enums.QuoteStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.DeliveryQuote{}).
		Where("id = ? AND status = ?", quoteID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CancelSiblingQuotes cancels every other PENDING quote for the order.
func (r *repository) CancelSiblingQuotes(ctx context.Context, orderID, keepID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.DeliveryQuote{}).
		Where("order_id = ? AND id <> ? AND status = ?", orderID, keepID, enums.QuoteStatusPending).
		Update("status", enums.QuoteStatusCancelled)
	return result.RowsAffected, result.Error
}

func (r *repository) ListExpiredPendingQuotes(ctx context.Context, cutoff time.Time, limit int) ([]models.DeliveryQuote, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.DeliveryQuote
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.QuoteStatusPending, cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateDelivery(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error) {
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return nil, err
	}
	return delivery, nil
}

func (r *repository) FindDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Preload("Tracking").
		Where("id = ?", deliveryID).
		First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindDeliveryByTracking(ctx context.Context, provider enums.DeliveryProvider, trackingNumber string) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Where("provider = ? AND tracking_number = ?", provider, trackingNumber).
		First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}

// UpdateDeliveryStatus is a compare-and-set on delivery status.
func (r *repository) UpdateDeliveryStatus(ctx context.Context, deliveryID uuid.UUID, from, to enums.DeliveryStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	result := r.db.WithContext(ctx).Model(&models.Delivery{}).
		Where("id = ? AND status = ?", deliveryID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) AppendTracking(ctx context.Context, row *models.DeliveryTracking) error {
	return r.db.WithContext(ctx).Create(row).Error
}
