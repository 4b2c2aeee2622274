package orders

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptRepository persists order receipts.
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *models.OrderReceipt) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.OrderReceipt, error)
	ListByBuyer(ctx context.Context, buyerID string, params pagination.Params) (*ReceiptPage, error)
}

// ReceiptPage is one page of a buyer's receipts, newest first.
type ReceiptPage struct {
	Receipts   []models.OrderReceipt
	NextCursor string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a receipts repository bound to the provided DB.
func NewRepository(db *gorm.DB) ReceiptRepository {
	return &repository{db: db}
}

// Create stores receipt; a second receipt for the same session is ignored.
func (r *repository) Create(ctx context.Context, receipt *models.OrderReceipt) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(receipt).Error
}

// FindBySessionID returns nil, nil when no receipt exists.
func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.OrderReceipt, error) {
	var receipt models.OrderReceipt
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID string, params pagination.Params) (*ReceiptPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("placed_at DESC").
		Order("session_id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(placed_at < ?) OR (placed_at = ? AND session_id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.OrderReceipt
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	page := &ReceiptPage{Receipts: rows}
	if len(rows) > limit {
		page.Receipts = rows[:limit]
		last := page.Receipts[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.PlacedAt, ID: last.SessionID})
	}
	return page, nil
}
