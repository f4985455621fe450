package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/infra/adapters/service"
	"github.com/jcmexdev/restaurant-pos/internal/catalog"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/requestctx"
	"github.com/jcmexdev/restaurant-pos/internal/pos"
	"github.com/jcmexdev/restaurant-pos/internal/terminal"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	menu, err := catalog.LoadFile("../../../../config/catalog.example.json")
	require.NoError(t, err)
	src := catalog.NewMemorySource()
	src.Put("*", menu)

	carts := pos.NewCacheStore(cache.NewMemoryCache("pos"), nil)
	drawers := drawer.NewService(drawer.NewMemoryRepository(), nil)
	feed := kitchen.NewMemoryFeed()
	orders := service.NewOrderService(feed, nil)
	sagas := sagalog.NewMemoryRepository()

	term := terminal.New(context.Background(), terminal.Deps{
		Catalog: src,
		Carts:   carts,
		Drawers: drawers,
		Settler: checkout.NewSettler(orders, drawers, carts, sagas, nil),
		Kitchen: kitchen.NewService(feed, nil),
	}, terminal.Options{})
	t.Cleanup(term.Close)

	return NewRouter(NewHandler(term, orders, feed, sagas))
}

func call(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCheckoutOverHTTP(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, http.MethodPut, "/store", `{"storeId":"store-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodPost, "/drawer/open", `{"float":"100","openedBy":"ana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodPost, "/cart/lines",
		`{"itemId":"itm-burger","quantity":1,"selections":[{"groupId":"grp-size","optionId":"opt-large"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[AddLineResponse](t, rec)
	assert.Equal(t, "66", added.Line.UnitPrice.String())
	assert.Equal(t, "66", added.Cart.Totals.Total.String())

	rec = call(t, h, http.MethodPost, "/checkout/preview", `{"method":"CASH","cashGiven":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[checkout.Preview](t, rec).CanSubmit)

	rec = call(t, h, http.MethodPost, "/checkout", `{"method":"CASH","cashGiven":"50"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_funds", decodeBody[ErrorResponse](t, rec).Error)

	rec = call(t, h, http.MethodPost, "/checkout", `{"method":"CASH","cashGiven":"70"}`,
		requestctx.HeaderXIdempotencyKey, "chk-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestctx.HeaderXRequestID))
	out := decodeBody[CheckoutResponse](t, rec)
	assert.Equal(t, "4", out.Order.Change.String())
	assert.Empty(t, out.Cart.Lines)

	rec = call(t, h, http.MethodGet, "/drawer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "166", decodeBody[drawer.State](t, rec).Balance.String())

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	rec = call(t, h, http.MethodGet, "/drawer/movements?from="+from+"&to="+to, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	history := decodeBody[map[string][]drawer.Move](t, rec)
	require.Len(t, history["movements"], 1)
	assert.Equal(t, drawer.MoveSale, history["movements"][0].Type)
	rec = call(t, h, http.MethodGet, "/drawer/movements?from="+from, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodGet, "/orders/"+out.Order.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		TicketNumber string `json:"ticketNumber"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, out.Order.ID, order.ID)
	assert.Equal(t, "PLACED", order.Status)
	assert.Equal(t, "#1001", order.TicketNumber)

	rec = call(t, h, http.MethodGet, "/sagas/chk-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saga := decodeBody[SagaResponse](t, rec)
	require.NotEmpty(t, saga.Entries)
	last := saga.Entries[len(saga.Entries)-1]
	assert.Equal(t, sagalog.StatusCompleted, last.Status)
	assert.Empty(t, last.Errors)

	rec = call(t, h, http.MethodGet, "/orders/feed?storeId=store-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decodeBody[FeedResponse](t, rec)
	require.Len(t, feed.Tickets, 1)
	ticketID := feed.Tickets[0].ID

	rec = call(t, h, http.MethodPost, "/kitchen/board/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, h, http.MethodPost, "/kitchen/tickets/"+ticketID+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, kitchen.StatusInProgress, decodeBody[kitchen.Ticket](t, rec).Status)

	rec = call(t, h, http.MethodGet, "/kitchen/board?status=IN_PROGRESS", "")
	require.Equal(t, http.StatusOK, rec.Code)
	board := decodeBody[BoardResponse](t, rec)
	require.Len(t, board.InProgress, 1)
	assert.Equal(t, kitchen.UrgencyFresh, board.Urgency[ticketID])

	rec = call(t, h, http.MethodPatch, "/orders/"+ticketID+"/status", `{"status":"SERVED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = call(t, h, http.MethodPatch, "/orders/"+ticketID+"/status", `{"status":"READY"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, http.MethodGet, "/cart", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no store selected")

	require.Equal(t, http.StatusOK, call(t, h, http.MethodPut, "/store", `{"storeId":"store-1"}`).Code)

	rec = call(t, h, http.MethodPost, "/cart/lines", `{"itemId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(t, h, http.MethodPost, "/cart/lines", `{"itemId":"itm-burger"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "size group is required")
	rec = call(t, h, http.MethodPost, "/cart/lines", `{"itemId":"itm-ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(t, h, http.MethodDelete, "/cart/lines/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodPost, "/drawer/close", `{"counted":"0","countedBy":"ana"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "drawer is closed")
	rec = call(t, h, http.MethodPost, "/drawer/open", `{"float":"-5","openedBy":"ana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodGet, "/kitchen/board?channel=DRONE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(t, h, http.MethodPost, "/kitchen/tickets/x/cook", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(t, h, http.MethodGet, "/orders/feed", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = call(t, h, http.MethodGet, "/orders/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(t, h, http.MethodGet, "/sagas/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPut, "/store", `{"storeId":"store-1"}`).Code)

	rec := call(t, h, http.MethodPost, "/cart/lines", `{"itemId":"itm-salad","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	lineID := decodeBody[AddLineResponse](t, rec).Line.ID

	rec = call(t, h, http.MethodPatch, "/cart/lines/"+lineID, `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "135", decodeBody[CartResponse](t, rec).Totals.Total.String())

	rec = call(t, h, http.MethodPut, "/cart/discount", `{"discount":{"type":"amount","value":"500"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[CartResponse](t, rec).Totals.Total.IsZero(), "discount is capped at the subtotal")

	rec = call(t, h, http.MethodPut, "/cart/discount", `{"discount":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[CartResponse](t, rec).Discount)

	rec = call(t, h, http.MethodPut, "/cart/note", `{"note":"table by the window"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeBody[CartResponse](t, rec)
	assert.Equal(t, "table by the window", cart.Note)
	assert.Equal(t, "135", cart.Lines[0].LineTotal.String())

	rec = call(t, h, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Lines)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("op", "bad"), http.StatusBadRequest},
		{apperr.InsufficientFunds("op", "short"), http.StatusUnprocessableEntity},
		{apperr.IllegalTransition("op", "stale"), http.StatusConflict},
		{apperr.NotFound("op", "gone"), http.StatusNotFound},
		{apperr.Persistence("op", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		got, _ := statusFor(c.err)
		assert.Equal(t, c.want, got, c.err.Error())
	}
}
