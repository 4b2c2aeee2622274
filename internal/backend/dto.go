package backend

import (
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/shopspring/decimal"
)

type cartLineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartDTO struct {
	ID     string        `json:"id"`
	UserID string        `json:"user_id"`
	Items  []cartLineDTO `json:"items"`
}

func (d cartDTO) toCart() cart.Cart {
	c := cart.Cart{ID: d.ID, OwnerID: d.UserID, Lines: make([]cart.Line, 0, len(d.Items))}
	for _, item := range d.Items {
		c.Lines = append(c.Lines, cart.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return cart.Normalize(c)
}

type createCartRequest struct {
	UserID string `json:"user_id"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type productDTO struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	SellerID string          `json:"seller_id"`
	Images   []string        `json:"images"`
}

func (d productDTO) toSnapshot() (products.Snapshot, error) {
	cents, err := money.FromDecimal(d.Price)
	if err != nil {
		return products.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid product price")
	}
	return products.Snapshot{
		ProductID:      d.ID,
		Name:           d.Name,
		UnitPriceCents: cents,
		Stock:          d.Stock,
		SellerID:       d.SellerID,
		Images:         d.Images,
	}, nil
}

type orderItemDTO struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SellerID  string          `json:"seller_id"`
}

type createOrderRequest struct {
	UserID        string              `json:"user_id"`
	Items         []orderItemDTO      `json:"items"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

func newCreateOrderRequest(req orders.Request) createOrderRequest {
	items := make([]orderItemDTO, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: money.ToDecimal(item.UnitPriceCents),
			SellerID:  item.SellerID,
		})
	}
	return createOrderRequest{
		UserID:        req.BuyerID,
		Items:         items,
		Total:         money.ToDecimal(req.TotalCents),
		PaymentMethod: req.PaymentMethod,
	}
}

type orderDTO struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Items         []orderItemDTO      `json:"items"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (d orderDTO) toOrder() (orders.Order, error) {
	total, err := money.FromDecimal(d.Total)
	if err != nil {
		return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid order total")
	}
	order := orders.Order{
		ID:            d.ID,
		BuyerID:       d.UserID,
		TotalCents:    total,
		PaymentMethod: d.PaymentMethod,
		CreatedAt:     d.CreatedAt,
	}
	for _, item := range d.Items {
		unit, err := money.FromDecimal(item.UnitPrice)
		if err != nil {
			return orders.Order{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid order item price")
		}
		order.Items = append(order.Items, orders.Item{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: unit,
			SellerID:       item.SellerID,
		})
	}
	return order, nil
}
