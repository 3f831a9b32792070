package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dinehub/realtime-core/internal/models"
)

// ErrNoRowsUpdated indicates a conditional update matched no rows, e.g. an
// accept attempt losing the race against another staff session.
var ErrNoRowsUpdated = errors.New("no rows updated")

// OrderRepository persists orders and enforces lifecycle transitions at the
// storage layer, which is the authority for the accept race.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uint) (models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (models.Order, error)
	Search(ctx context.Context, term string, limit int) ([]models.Order, error)
	ListRecent(ctx context.Context, limit int) ([]models.Order, error)
	// ClaimPending flips a pending order to accepted and records the staff
	// identity in one conditional update. Exactly one concurrent caller wins;
	// the rest receive ErrNoRowsUpdated.
	ClaimPending(ctx context.Context, id uint, staffID string) (models.Order, error)
	// TransitionStatus applies a forward-only status change. Regressions and
	// transitions out of terminal states return ErrNoRowsUpdated.
	TransitionStatus(ctx context.Context, id uint, current, next string) (models.Order, error)
	FindRecentMatch(ctx context.Context, phone, table string, since time.Time) (models.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository constructs an order repository backed by GORM.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id uint) (models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error; err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) Search(ctx context.Context, term string, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ? OR customer_email = ? OR customer_phone = ?", term, term, term).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var orders []models.Order
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ClaimPending(ctx context.Context, id uint, staffID string) (models.Order, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]any{
			"status":      models.OrderStatusAccepted,
			"assigned_to": staffID,
		})
	if result.Error != nil {
		return models.Order{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Order{}, ErrNoRowsUpdated
	}
	return r.GetByID(ctx, id)
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id uint, current, next string) (models.Order, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, current).
		Update("status", next)
	if result.Error != nil {
		return models.Order{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Order{}, ErrNoRowsUpdated
	}
	return r.GetByID(ctx, id)
}

func (r *orderRepository) FindRecentMatch(ctx context.Context, phone, table string, since time.Time) (models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("customer_phone = ? AND table_number = ? AND created_at >= ?", phone, table, since).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}
