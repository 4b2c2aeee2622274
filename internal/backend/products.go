package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/angelmondragon/storefront/internal/products"
)

// GetProduct fetches one product. A deleted product maps to NOT_FOUND.
func (c *Client) GetProduct(ctx context.Context, productID string) (products.Snapshot, error) {
	var dto productDTO
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(productID), nil, &dto, requestOptions{}); err != nil {
		return products.Snapshot{}, err
	}
	if dto.ID == "" {
		dto.ID = productID
	}
	return dto.toSnapshot()
}
