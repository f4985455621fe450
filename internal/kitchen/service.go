package kitchen

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// Feed is the authoritative ticket source.
type Feed interface {
	// ListTickets returns the store's tickets that are not yet SERVED.
	ListTickets(ctx context.Context, storeID string) ([]Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status Status) (Ticket, error)
}

// Service moves tickets through the feed while keeping a Board responsive:
// the board changes first and is rolled back if the feed rejects or fails.
type Service struct {
	feed Feed
	log  *slog.Logger
}

func NewService(feed Feed, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{feed: feed, log: log.With("component", "kitchen")}
}

// Refresh fetches the feed and merges it into board. On failure the board
// is left untouched.
func (s *Service) Refresh(ctx context.Context, board *Board) (MergeResult, error) {
	token := board.BeginRefresh()
	tickets, err := s.feed.ListTickets(ctx, board.StoreID())
	if err != nil {
		return MergeResult{}, apperr.Persistence("kitchen.Refresh", err)
	}
	res := board.Merge(token, tickets)
	if res.Added > 0 || res.Updated > 0 || res.Removed > 0 {
		s.log.DebugContext(ctx, "board merged",
			"store_id", board.StoreID(),
			"added", res.Added,
			"updated", res.Updated,
			"removed", res.Removed,
			"kept", res.Kept,
		)
	}
	return res, nil
}

// Transition applies a staff action. An illegal transition reported by the
// feed means the board is stale, so it is refreshed before returning.
func (s *Service) Transition(ctx context.Context, board *Board, ticketID string, action Action) (Ticket, error) {
	opID, local, err := board.Begin(ticketID, action)
	if err != nil {
		if errors.Is(err, apperr.ErrIllegalTransition) {
			s.refreshAfterConflict(ctx, board, ticketID, err)
		}
		return Ticket{}, err
	}

	if _, err := s.feed.UpdateTicketStatus(ctx, ticketID, local.Status); err != nil {
		board.Rollback(opID)
		if errors.Is(err, apperr.ErrIllegalTransition) || errors.Is(err, apperr.ErrNotFound) {
			s.refreshAfterConflict(ctx, board, ticketID, err)
			return Ticket{}, err
		}
		s.log.ErrorContext(ctx, "ticket update failed, rolled back",
			"ticket_id", ticketID, "action", action, "error", err)
		return Ticket{}, apperr.Persistence("kitchen.Transition", err)
	}

	board.Confirm(opID)
	s.log.InfoContext(ctx, "ticket advanced",
		"store_id", board.StoreID(),
		"ticket_id", ticketID,
		"number", local.Number,
		"status", local.Status,
	)
	return local, nil
}

func (s *Service) refreshAfterConflict(ctx context.Context, board *Board, ticketID string, cause error) {
	s.log.WarnContext(ctx, "stale ticket state, refreshing board", "ticket_id", ticketID, "error", cause)
	if _, err := s.Refresh(ctx, board); err != nil {
		s.log.ErrorContext(ctx, "board refresh failed", "error", err)
	}
}
