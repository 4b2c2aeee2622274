package controllers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func TestCartGetFlagsUnavailableLines(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 2}, cart.Line{ProductID: "gone", Quantity: 1})

	resp := h.do(t, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := decode[cartResponse](t, resp)
	assert.Equal(t, "cart-"+testUser, body.Data.ID)
	assert.Equal(t, int64(10000), body.Data.SubtotalCents)
	assert.Equal(t, "100.00", body.Data.Subtotal)
	assert.Equal(t, []string{"gone"}, body.Data.Tombstones)
	require.Len(t, body.Data.Lines, 2)
	assert.False(t, body.Data.Lines[0].Unavailable)
	assert.True(t, body.Data.Lines[1].Unavailable)
}

func TestCartAddItemReturnsNotice(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/cart/items", `{"product_id":"p2","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := decode[cartResponse](t, resp)
	require.NotNil(t, body.Notice)
	assert.Equal(t, int64(3000), body.Notice.DismissAfterMS)
	assert.Equal(t, 2, body.Data.ItemCount)
	assert.Equal(t, int64(20000), body.Data.SubtotalCents)
}

func TestCartAddItemRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/cart/items", `{"product_id":"p1","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidQuantity), decode[any](t, resp).Error.Code)

	resp = h.do(t, http.MethodPost, "/cart/items", `{"product_id":" ","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decode[any](t, resp).Error.Code)

	resp = h.do(t, http.MethodPost, "/cart/items", `{"product_id":"p2","quantity":4}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeStockExceeded), decode[any](t, resp).Error.Code)
}

func TestCartDecreaseNeedsConfirmationForLastUnit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 1})

	resp := h.do(t, http.MethodPost, "/cart/items/p1/decrease", "")
	require.Equal(t, http.StatusConflict, resp.Code)
	body := decode[any](t, resp)
	assert.Equal(t, string(pkgerrors.CodeConfirmRemoval), body.Error.Code)
	assert.Equal(t, true, body.Error.Details["confirm_removal"])

	resp = h.do(t, http.MethodPost, "/cart/items/p1/decrease?confirm=true", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, decode[cartResponse](t, resp).Data.Lines)
}

func TestCartConfirmedDecreaseOnlyRemovesLastUnit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 2})

	resp := h.do(t, http.MethodPost, "/cart/items/p1/decrease?confirm=true", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	lines := decode[cartResponse](t, resp).Data.Lines
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)

	resp = h.do(t, http.MethodPost, "/cart/items/p1/decrease?confirm=true", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, decode[cartResponse](t, resp).Data.Lines)
}

func TestCartIncreaseAndRemove(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 1})

	resp := h.do(t, http.MethodPost, "/cart/items/p1/increase", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 2, decode[cartResponse](t, resp).Data.Lines[0].Quantity)

	resp = h.do(t, http.MethodPost, "/cart/items/p9/increase", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodDelete, "/cart/items/p1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[cartResponse](t, resp).Data.Lines)

	resp = h.do(t, http.MethodDelete, "/cart/items/p1", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestExpiredBackendTokenClosesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 1})

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/session", "").Code)
	assert.Equal(t, 1, h.registry.Len())

	h.backend.expire()
	resp := h.do(t, http.MethodPost, "/cart/items/p1/increase", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeSessionExpired), decode[any](t, resp).Error.Code)
	assert.Equal(t, 0, h.registry.Len())
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCartEventsStreamsAcceptedCarts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.seed(testUser, cart.Line{ProductID: "p1", Quantity: 1})
	server := httptest.NewServer(h.router)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/cart/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", testUser)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}

	assert.Contains(t, nextData(), `"quantity":1`)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/cart/items/p1/increase", "").Code)
	assert.Contains(t, nextData(), `"quantity":2`)
}
