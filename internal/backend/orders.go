package backend

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/internal/orders"
)

// CreateOrder places an order. idempotencyKey is forwarded so the backend can
// deduplicate retried submissions.
func (c *Client) CreateOrder(ctx context.Context, req orders.Request, idempotencyKey string) (orders.Order, error) {
	var dto orderDTO
	err := c.do(ctx, http.MethodPost, "/api/orders", newCreateOrderRequest(req), &dto,
		requestOptions{idempotencyKey: idempotencyKey})
	if err != nil {
		return orders.Order{}, err
	}
	return dto.toOrder()
}
