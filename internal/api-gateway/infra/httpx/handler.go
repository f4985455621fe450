package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/core/ports"
	"github.com/jcmexdev/restaurant-pos/internal/checkout"
	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/drawer"
	"github.com/jcmexdev/restaurant-pos/internal/kitchen"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/requestctx"
	"github.com/jcmexdev/restaurant-pos/internal/terminal"
)

// Handler serves the POS console and the kitchen ticket feed.
type Handler struct {
	terminal *terminal.Terminal
	orders   ports.OrderService
	feed     kitchen.Feed
	sagas    sagalog.Reader // nil-safe: /sagas answers 404
	now      func() time.Time
}

func NewHandler(t *terminal.Terminal, orders ports.OrderService, feed kitchen.Feed, sagas sagalog.Reader) *Handler {
	return &Handler{
		terminal: t,
		orders:   orders,
		feed:     feed,
		sagas:    sagas,
		now:      time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetStore(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StoreResponse{StoreID: h.terminal.StoreID()})
}

func (h *Handler) SelectStore(w http.ResponseWriter, r *http.Request) {
	var req SelectStoreRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.terminal.SelectStore(r.Context(), req.StoreID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StoreResponse{StoreID: req.StoreID})
}

func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.terminal.Catalog(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.terminal.Cart()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(c))
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	req := AddLineRequest{Quantity: 1}
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ItemID == "" {
		respondError(w, r, apperr.Validation("httpx.AddLine", "itemId is required"))
		return
	}
	line, cart, err := h.terminal.AddItem(r.Context(), req.ItemID, req.Quantity, req.Selections)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddLineResponse{Line: mapLine(line), Cart: mapCart(cart)})
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	cart, err := h.terminal.SetQuantity(r.Context(), chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	cart, err := h.terminal.RemoveLine(r.Context(), chi.URLParam(r, "lineID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.terminal.ClearCart(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	cart, err := h.terminal.SetDiscount(r.Context(), req.Discount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) SetNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	cart, err := h.terminal.SetNote(r.Context(), req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) SetTaxRate(w http.ResponseWriter, r *http.Request) {
	var req TaxRateRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	cart, err := h.terminal.SetTaxRate(r.Context(), req.Rate)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.terminal.PreviewCheckout(req.Method, req.CashGiven)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Checkout settles the active cart. The X-Idempotency-Key header identifies
// the attempt; resending the same key after a failure retries the whole
// settlement.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.IdempotencyKey = requestctx.IdempotencyKey(r.Context())

	slog.InfoContext(r.Context(), "checkout requested",
		"request_id", requestctx.RequestID(r.Context()),
		"method", req.Method,
	)

	res, err := h.terminal.Checkout(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckoutResponse{
		Order:     res.Order,
		CashDelta: res.CashDelta,
		Cart:      mapCart(res.Cart),
	})
}

func (h *Handler) GetDrawer(w http.ResponseWriter, r *http.Request) {
	st, err := h.terminal.DrawerState(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetMovements lists the current session's moves, or the store's ledger
// over [from, to) when both RFC 3339 bounds are given.
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	const op = "httpx.GetMovements"
	q := r.URL.Query()
	var (
		moves []drawer.Move
		err   error
	)
	switch from, to := q.Get("from"), q.Get("to"); {
	case from == "" && to == "":
		moves, err = h.terminal.DrawerMovements(r.Context())
	case from == "" || to == "":
		err = apperr.Validation(op, "from and to must be given together")
	default:
		var fromT, toT time.Time
		if fromT, err = time.Parse(time.RFC3339, from); err != nil {
			err = apperr.Validation(op, "from: %v", err)
			break
		}
		if toT, err = time.Parse(time.RFC3339, to); err != nil {
			err = apperr.Validation(op, "to: %v", err)
			break
		}
		moves, err = h.terminal.DrawerHistory(r.Context(), fromT, toT)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": moves})
}

func (h *Handler) OpenDrawer(w http.ResponseWriter, r *http.Request) {
	var req OpenDrawerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	st, err := h.terminal.OpenDrawer(r.Context(), req.Float, req.OpenedBy)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CashIn(w http.ResponseWriter, r *http.Request) {
	var req CashMoveRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	m, err := h.terminal.CashIn(r.Context(), req.Amount, req.Reason, req.By)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) CashOut(w http.ResponseWriter, r *http.Request) {
	var req CashMoveRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	m, err := h.terminal.CashOut(r.Context(), req.Amount, req.Reason, req.By)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) CloseDrawer(w http.ResponseWriter, r *http.Request) {
	var req CloseDrawerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.terminal.CloseDrawer(r.Context(), req.Counted, req.CountedBy)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetBoard returns the kitchen columns, optionally filtered by ?channel= and
// ?status=.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	f := kitchen.Filter{
		Channel: kitchen.Channel(r.URL.Query().Get("channel")),
		Status:  kitchen.Status(r.URL.Query().Get("status")),
	}
	if f.Channel != "" && !f.Channel.Valid() {
		respondError(w, r, apperr.Validation("httpx.GetBoard", "unknown channel %q", f.Channel))
		return
	}
	if f.Status != "" && !f.Status.Active() {
		respondError(w, r, apperr.Validation("httpx.GetBoard", "status %q is not on the board", f.Status))
		return
	}
	v, err := h.terminal.Board(f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	now := h.now()
	urgency := make(map[string]kitchen.Urgency)
	for _, col := range [][]kitchen.Ticket{v.New, v.InProgress, v.Ready} {
		for _, t := range col {
			urgency[t.ID] = t.Urgency(now)
		}
	}
	writeJSON(w, http.StatusOK, BoardResponse{View: v, Urgency: urgency})
}

func (h *Handler) RefreshBoard(w http.ResponseWriter, r *http.Request) {
	res, err := h.terminal.RefreshBoard(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdvanceTicket applies start, ready or serve to a ticket on the board.
func (h *Handler) AdvanceTicket(w http.ResponseWriter, r *http.Request) {
	action := kitchen.Action(chi.URLParam(r, "action"))
	switch action {
	case kitchen.ActionStart, kitchen.ActionReady, kitchen.ActionServe:
	default:
		respondError(w, r, apperr.Validation("httpx.AdvanceTicket", "unknown action %q", action))
		return
	}
	t, err := h.terminal.AdvanceTicket(r.Context(), chi.URLParam(r, "ticketID"), action)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// TicketFeed is the authoritative feed polled by kitchen displays.
func (h *Handler) TicketFeed(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("storeId")
	if storeID == "" {
		respondError(w, r, apperr.Validation("httpx.TicketFeed", "storeId is required"))
		return
	}
	tickets, err := h.feed.ListTickets(r.Context(), storeID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Tickets: tickets})
}

func (h *Handler) UpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req TicketStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.feed.UpdateTicketStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetOrderByID retrieves a placed order and its ticket reference.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetSaga returns the settlement log rows of an idempotency key.
func (h *Handler) GetSaga(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.sagas == nil {
		respondError(w, r, apperr.NotFound("httpx.GetSaga", "saga log is not enabled"))
		return
	}
	rows, err := h.sagas.History(r.Context(), id)
	if err != nil {
		respondError(w, r, apperr.Persistence("httpx.GetSaga", err))
		return
	}
	if len(rows) == 0 {
		respondError(w, r, apperr.NotFound("httpx.GetSaga", "saga %q", id))
		return
	}
	out := SagaResponse{SagaID: id, Entries: make([]SagaEntryResponse, len(rows))}
	for i, row := range rows {
		errs, err := row.Errors()
		if err != nil {
			slog.WarnContext(r.Context(), "unreadable saga error messages", "saga_id", id, "error", err)
		}
		out.Entries[i] = SagaEntryResponse{SagaLog: row, Errors: errs}
	}
	writeJSON(w, http.StatusOK, out)
}
