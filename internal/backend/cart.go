package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func (c *Client) GetCart(ctx context.Context, userID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodGet, "/api/carts/"+url.PathEscape(userID), nil)
}

func (c *Client) CreateCart(ctx context.Context, userID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/carts", createCartRequest{UserID: userID})
}

func (c *Client) AddItem(ctx context.Context, userID, productID string, quantity int) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/carts/"+url.PathEscape(userID)+"/items",
		addItemRequest{ProductID: productID, Quantity: quantity})
}

func (c *Client) IncreaseItem(ctx context.Context, userID, cartID, productID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, itemPath(userID, cartID, productID)+"/increase", nil)
}

func (c *Client) DecreaseItem(ctx context.Context, userID, cartID, productID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, itemPath(userID, cartID, productID)+"/decrease", nil)
}

func (c *Client) RemoveItem(ctx context.Context, userID, cartID, productID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, itemPath(userID, cartID, productID), nil)
}

func (c *Client) ClearCart(ctx context.Context, userID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/carts/"+url.PathEscape(userID)+"/items", nil)
}

func (c *Client) cartCall(ctx context.Context, method, path string, body any) (cart.Cart, error) {
	var dto cartDTO
	if err := c.do(ctx, method, path, body, &dto, requestOptions{}); err != nil {
		return cart.Cart{}, err
	}
	if dto.ID == "" {
		return cart.Cart{}, pkgerrors.New(pkgerrors.CodeDependency, "backend cart response missing id")
	}
	return dto.toCart(), nil
}

func itemPath(userID, cartID, productID string) string {
	return "/api/carts/" + url.PathEscape(userID) + "/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(productID)
}
