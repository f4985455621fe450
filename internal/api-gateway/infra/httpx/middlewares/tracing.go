package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/requestctx"
)

// AttachRequestContext stores the chi request id and the client's
// idempotency key in the request context and echoes the request id back.
func AttachRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(requestctx.HeaderXIdempotencyKey)

		ctx := requestctx.WithRequestID(r.Context(), requestID)
		ctx = requestctx.WithIdempotencyKey(ctx, idempotencyKey)

		if requestID != "" {
			w.Header().Set(requestctx.HeaderXRequestID, requestID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
