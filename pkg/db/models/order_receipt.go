package models

import (
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// ReceiptItem is one ordered line as it was priced at submission.
type ReceiptItem struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SellerID       string `json:"seller_id"`
}

// OrderReceipt records an order placed for a checkout session so a retried
// submission never creates a second order.
type OrderReceipt struct {
	SessionID     string              `gorm:"column:session_id;primaryKey"`
	OrderID       string              `gorm:"column:order_id;not null"`
	BuyerID       string              `gorm:"column:buyer_id;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null"`
	TotalCents    int64               `gorm:"column:total_cents;not null"`
	Items         []ReceiptItem       `gorm:"column:items;type:text;serializer:json"`
	PlacedAt      time.Time           `gorm:"column:placed_at;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (OrderReceipt) TableName() string {
	return "order_receipts"
}
