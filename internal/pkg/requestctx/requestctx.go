// Package requestctx carries the request id and idempotency key of an
// inbound HTTP call through context.Context and back out on outbound calls.
package requestctx

import (
	"context"
	"net/http"
)

// contextKey is unexported so keys from other packages with the same
// underlying string cannot collide.
type contextKey string

const (
	HeaderXRequestID      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	requestIDKey      contextKey = "x-request-id"
	idempotencyKeyKey contextKey = "x-idempotency-key"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyKey, key)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// IdempotencyKey returns the idempotency key stored in ctx, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyKey).(string)
	return key
}

// Propagate copies the ids in ctx onto an outbound request's headers.
func Propagate(ctx context.Context, h http.Header) {
	if id := RequestID(ctx); id != "" {
		h.Set(HeaderXRequestID, id)
	}
	if key := IdempotencyKey(ctx); key != "" {
		h.Set(HeaderXIdempotencyKey, key)
	}
}
