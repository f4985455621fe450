package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/restaurant-pos/internal/api-gateway/infra/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestContext)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Health)

	r.Get("/store", handler.GetStore)
	r.Put("/store", handler.SelectStore)
	r.Get("/catalog", handler.GetCatalog)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Delete("/", handler.ClearCart)
		r.Post("/lines", handler.AddLine)
		r.Patch("/lines/{lineID}", handler.SetQuantity)
		r.Delete("/lines/{lineID}", handler.RemoveLine)
		r.Put("/discount", handler.SetDiscount)
		r.Put("/note", handler.SetNote)
		r.Put("/tax-rate", handler.SetTaxRate)
	})

	r.Post("/checkout", handler.Checkout)
	r.Post("/checkout/preview", handler.PreviewCheckout)

	r.Route("/drawer", func(r chi.Router) {
		r.Get("/", handler.GetDrawer)
		r.Get("/movements", handler.GetMovements)
		r.Post("/open", handler.OpenDrawer)
		r.Post("/cash-in", handler.CashIn)
		r.Post("/cash-out", handler.CashOut)
		r.Post("/close", handler.CloseDrawer)
	})

	r.Get("/kitchen/board", handler.GetBoard)
	r.Post("/kitchen/board/refresh", handler.RefreshBoard)
	r.Post("/kitchen/tickets/{ticketID}/{action}", handler.AdvanceTicket)

	// Ticket feed consumed by kitchen displays; {id} is the ticket id.
	r.Get("/orders/feed", handler.TicketFeed)
	r.Patch("/orders/{id}/status", handler.UpdateTicketStatus)
	r.Get("/orders/{id}", handler.GetOrderByID)

	r.Get("/sagas/{id}", handler.GetSaga)

	return otelhttp.NewHandler(r, "pos-api")
}
