package controllers

import (
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/money"
)

type cartLineResponse struct {
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	Quantity       int      `json:"quantity"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	UnitPrice      string   `json:"unit_price"`
	LineTotalCents int64    `json:"line_total_cents"`
	LineTotal      string   `json:"line_total"`
	Stock          int      `json:"stock"`
	SellerID       string   `json:"seller_id,omitempty"`
	Images         []string `json:"images,omitempty"`
	Unavailable    bool     `json:"unavailable"`
	Reason         string   `json:"reason,omitempty"`
}

type cartResponse struct {
	ID            string             `json:"id"`
	Lines         []cartLineResponse `json:"lines"`
	Tombstones    []string           `json:"tombstones"`
	ItemCount     int                `json:"item_count"`
	SubtotalCents int64              `json:"subtotal_cents"`
	Subtotal      string             `json:"subtotal"`
}

func newCartResponse(summary cart.Summary) cartResponse {
	resp := cartResponse{
		ID:            summary.CartID,
		Lines:         make([]cartLineResponse, 0, len(summary.Lines)),
		Tombstones:    summary.Tombstones,
		ItemCount:     summary.ItemCount,
		SubtotalCents: summary.SubtotalCents,
		Subtotal:      money.Format(summary.SubtotalCents),
	}
	if resp.Tombstones == nil {
		resp.Tombstones = []string{}
	}
	for _, line := range summary.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:      line.ProductID,
			Name:           line.Product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.Product.UnitPriceCents,
			UnitPrice:      money.Format(line.Product.UnitPriceCents),
			LineTotalCents: line.LineTotalCents,
			LineTotal:      money.Format(line.LineTotalCents),
			Stock:          line.Product.Stock,
			SellerID:       line.Product.SellerID,
			Images:         line.Product.Images,
			Unavailable:    line.Unavailable,
			Reason:         line.Reason,
		})
	}
	return resp
}

// cartEventResponse is the unpriced cart pushed over the events stream.
type cartEventResponse struct {
	ID        string      `json:"id"`
	Lines     []cart.Line `json:"lines"`
	ItemCount int         `json:"item_count"`
}

func newCartEventResponse(c cart.Cart) cartEventResponse {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartEventResponse{ID: c.ID, Lines: lines, ItemCount: c.ItemCount()}
}

type orderItemResponse struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SellerID       string `json:"seller_id"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	Items         []orderItemResponse `json:"items"`
	TotalCents    int64               `json:"total_cents"`
	Total         string              `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time           `json:"created_at"`
}

func newOrderResponse(order orders.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse(item))
	}
	return orderResponse{
		ID:            order.ID,
		Items:         items,
		TotalCents:    order.TotalCents,
		Total:         money.Format(order.TotalCents),
		PaymentMethod: order.PaymentMethod,
		CreatedAt:     order.CreatedAt,
	}
}

type checkoutResponse struct {
	ID                    string                `json:"id"`
	State                 enums.CheckoutState   `json:"state"`
	PaymentMethod         *enums.PaymentMethod  `json:"payment_method,omitempty"`
	AllowedPaymentMethods []enums.PaymentMethod `json:"allowed_payment_methods"`
	Cart                  cartResponse          `json:"cart"`
	Order                 *orderResponse        `json:"order,omitempty"`
	StartedAt             time.Time             `json:"started_at"`
}

func newCheckoutResponse(flow *checkout.Flow) checkoutResponse {
	sess := flow.Session()
	resp := checkoutResponse{
		ID:                    sess.ID,
		State:                 sess.State,
		PaymentMethod:         sess.PaymentMethod,
		AllowedPaymentMethods: enums.PaymentMethods(),
		Cart:                  newCartResponse(flow.Summary()),
		StartedAt:             sess.StartedAt,
	}
	if sess.Order != nil {
		order := newOrderResponse(*sess.Order)
		resp.Order = &order
	}
	return resp
}

type receiptResponse struct {
	SessionID string        `json:"checkout_session_id"`
	Order     orderResponse `json:"order"`
	PlacedAt  time.Time     `json:"placed_at"`
}

type receiptPageResponse struct {
	Receipts   []receiptResponse `json:"receipts"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newReceiptResponse(receipt models.OrderReceipt) receiptResponse {
	return receiptResponse{
		SessionID: receipt.SessionID,
		Order:     newOrderResponse(orders.OrderFromReceipt(&receipt)),
		PlacedAt:  receipt.PlacedAt,
	}
}
