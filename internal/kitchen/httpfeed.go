package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/requestctx"
)

// HTTPFeed reads the ticket feed of a remote pos-api.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFeed(baseURL string, client *http.Client) *HTTPFeed {
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPFeed{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type feedResponse struct {
	Tickets []Ticket `json:"tickets"`
}

type statusRequest struct {
	Status Status `json:"status"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (f *HTTPFeed) ListTickets(ctx context.Context, storeID string) ([]Ticket, error) {
	u := f.baseURL + "/orders/feed?storeId=" + url.QueryEscape(storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out feedResponse
	if err := f.do(req, &out); err != nil {
		return nil, err
	}
	return out.Tickets, nil
}

func (f *HTTPFeed) UpdateTicketStatus(ctx context.Context, ticketID string, status Status) (Ticket, error) {
	body, err := json.Marshal(statusRequest{Status: status})
	if err != nil {
		return Ticket{}, err
	}
	u := f.baseURL + "/orders/" + url.PathEscape(ticketID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return Ticket{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out Ticket
	if err := f.do(req, &out); err != nil {
		return Ticket{}, err
	}
	return out, nil
}

func (f *HTTPFeed) do(req *http.Request, out any) error {
	requestctx.Propagate(req.Context(), req.Header)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		op := "feed." + strings.ToLower(req.Method)
		switch resp.StatusCode {
		case http.StatusConflict:
			return apperr.IllegalTransition(op, "%s", msg)
		case http.StatusNotFound:
			return apperr.NotFound(op, "%s", msg)
		case http.StatusBadRequest:
			return apperr.Validation(op, "%s", msg)
		default:
			return fmt.Errorf("feed: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("feed: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
