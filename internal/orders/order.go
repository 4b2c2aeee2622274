package orders

import (
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
)

// Item is one order line priced from the checkout snapshot.
type Item struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SellerID       string `json:"seller_id"`
}

// Order is a placed order as acknowledged by the commerce backend.
type Order struct {
	ID            string              `json:"id"`
	BuyerID       string              `json:"buyer_id"`
	Items         []Item              `json:"items"`
	TotalCents    int64               `json:"total_cents"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Request is what gets sent to the backend to create an order.
type Request struct {
	BuyerID       string
	Items         []Item
	TotalCents    int64
	PaymentMethod enums.PaymentMethod
}

// BuildItems prices every cart line from res. Any unavailable product or
// missing seller fails the whole build; the error details list every
// offending product.
func BuildItems(c cart.Cart, res products.Resolution) ([]Item, int64, error) {
	if c.IsEmpty() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	items := make([]Item, 0, len(c.Lines))
	var (
		total       int64
		unavailable []string
		noSeller    []string
	)
	for _, line := range c.Lines {
		entry, ok := res[line.ProductID]
		if !ok || entry.Tombstone {
			unavailable = append(unavailable, line.ProductID)
			continue
		}
		if entry.Snapshot.SellerID == "" {
			noSeller = append(noSeller, line.ProductID)
			continue
		}
		item := Item{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: entry.Snapshot.UnitPriceCents,
			SellerID:       entry.Snapshot.SellerID,
		}
		total += money.LineTotal(item.UnitPriceCents, item.Quantity)
		items = append(items, item)
	}
	if len(unavailable) > 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeProductUnavailable, "some products are unavailable").
			WithDetails(map[string]any{"product_ids": unavailable})
	}
	if len(noSeller) > 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeMissingSeller, "some products have no seller").
			WithDetails(map[string]any{"product_ids": noSeller})
	}
	return items, total, nil
}

func receiptFromOrder(sessionID string, order Order) *models.OrderReceipt {
	items := make([]models.ReceiptItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.ReceiptItem(item))
	}
	placed := order.CreatedAt
	if placed.IsZero() {
		placed = time.Now().UTC()
	}
	return &models.OrderReceipt{
		SessionID:     sessionID,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		PaymentMethod: order.PaymentMethod,
		TotalCents:    order.TotalCents,
		Items:         items,
		PlacedAt:      placed,
	}
}

// OrderFromReceipt rebuilds the order a receipt recorded.
func OrderFromReceipt(receipt *models.OrderReceipt) Order {
	items := make([]Item, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		items = append(items, Item(item))
	}
	return Order{
		ID:            receipt.OrderID,
		BuyerID:       receipt.BuyerID,
		Items:         items,
		TotalCents:    receipt.TotalCents,
		PaymentMethod: receipt.PaymentMethod,
		CreatedAt:     receipt.PlacedAt,
	}
}
