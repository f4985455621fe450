package drawer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// Repository is the external persistence of drawer state.
type Repository interface {
	// GetDrawerState returns the head state of a store and the moves of its
	// current (or most recently closed) session. An unknown store is CLOSED.
	GetDrawerState(ctx context.Context, storeID string) (State, []Move, error)

	// ApplyTransition persists t atomically. It returns an
	// apperr.ErrIllegalTransition error when the stored version is not
	// t.Before.Version.
	ApplyTransition(ctx context.Context, t Transition) error

	// MovesBetween lists the moves of a store across sessions with
	// from <= At < to, oldest first.
	MovesBetween(ctx context.Context, storeID string, from, to time.Time) ([]Move, error)
}

// Service owns the in-memory drawers of every store it has seen and keeps
// them in step with the Repository. Each call is applied optimistically and
// rolled back to the last known-good state if persistence fails.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	drawers map[string]*Drawer
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:    repo,
		log:     log.With("component", "drawer"),
		drawers: make(map[string]*Drawer),
	}
}

func (s *Service) State(ctx context.Context, storeID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.drawerLocked(ctx, storeID)
	if err != nil {
		return State{}, err
	}
	return d.State(), nil
}

func (s *Service) Movements(ctx context.Context, storeID string) ([]Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.drawerLocked(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return d.Moves(), nil
}

// History reads the ledger of storeID over [from, to) from the repository,
// spanning closed sessions.
func (s *Service) History(ctx context.Context, storeID string, from, to time.Time) ([]Move, error) {
	const op = "drawer.History"
	if !from.Before(to) {
		return nil, apperr.Validation(op, "from must be before to")
	}
	moves, err := s.repo.MovesBetween(ctx, storeID, from, to)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	return moves, nil
}

// Reload discards the in-memory drawer of storeID and reads it again.
func (s *Service) Reload(ctx context.Context, storeID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drawers, storeID)
	d, err := s.drawerLocked(ctx, storeID)
	if err != nil {
		return State{}, err
	}
	return d.State(), nil
}

// Forget drops the cached drawer for storeID without reading it again.
func (s *Service) Forget(storeID string) {
	s.mu.Lock()
	delete(s.drawers, storeID)
	s.mu.Unlock()
}

func (s *Service) Open(ctx context.Context, storeID string, floatAmount decimal.Decimal, openedBy string) (State, error) {
	t, err := s.apply(ctx, storeID, "drawer.Open", func(d *Drawer) (Transition, error) {
		return d.Open(floatAmount, openedBy)
	})
	return t.After, err
}

func (s *Service) CashIn(ctx context.Context, storeID string, amount decimal.Decimal, reason, by string) (Move, error) {
	t, err := s.apply(ctx, storeID, "drawer.CashIn", func(d *Drawer) (Transition, error) {
		return d.CashIn(amount, reason, by)
	})
	return firstMove(t), err
}

func (s *Service) CashOut(ctx context.Context, storeID string, amount decimal.Decimal, reason, by string) (Move, error) {
	t, err := s.apply(ctx, storeID, "drawer.CashOut", func(d *Drawer) (Transition, error) {
		return d.CashOut(amount, reason, by)
	})
	return firstMove(t), err
}

func (s *Service) RecordSale(ctx context.Context, storeID string, amount decimal.Decimal, orderRef string) (Move, error) {
	t, err := s.apply(ctx, storeID, "drawer.RecordSale", func(d *Drawer) (Transition, error) {
		return d.RecordSale(amount, orderRef)
	})
	return firstMove(t), err
}

func (s *Service) Close(ctx context.Context, storeID string, counted *decimal.Decimal, countedBy string) (CloseReport, error) {
	t, err := s.apply(ctx, storeID, "drawer.Close", func(d *Drawer) (Transition, error) {
		return d.Close(counted, countedBy)
	})
	if err != nil {
		return CloseReport{}, err
	}
	return *t.Report, nil
}

// RequireOpen fails with ErrIllegalTransition unless the store's drawer is OPEN.
func (s *Service) RequireOpen(ctx context.Context, storeID string) error {
	st, err := s.State(ctx, storeID)
	if err != nil {
		return err
	}
	if st.Status != StatusOpen {
		return apperr.IllegalTransition("drawer.RequireOpen", "drawer for store %q is closed", storeID)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, storeID, op string, build func(*Drawer) (Transition, error)) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.drawerLocked(ctx, storeID)
	if err != nil {
		return Transition{}, err
	}

	t, err := build(d)
	if err != nil {
		if errors.Is(err, apperr.ErrIllegalTransition) {
			s.reloadLocked(ctx, storeID, op, err)
		} else {
			s.log.DebugContext(ctx, "drawer operation rejected", "op", op, "store_id", storeID, "error", err)
		}
		return Transition{}, err
	}

	prevState, prevMoves := d.state, d.moves
	d.Apply(t)

	if err := s.repo.ApplyTransition(ctx, t); err != nil {
		d.state, d.moves = prevState, prevMoves
		if errors.Is(err, apperr.ErrIllegalTransition) {
			s.reloadLocked(ctx, storeID, op, err)
			return Transition{}, err
		}
		s.log.ErrorContext(ctx, "drawer transition not persisted, rolled back",
			"op", op, "store_id", storeID, "error", err)
		return Transition{}, apperr.Persistence(op, err)
	}

	if err := d.Verify(); err != nil {
		s.log.ErrorContext(ctx, "drawer ledger out of balance", "store_id", storeID, "error", err)
	}

	s.log.InfoContext(ctx, "drawer transition applied",
		"op", op,
		"store_id", storeID,
		"session_id", t.After.SessionID,
		"status", t.After.Status,
		"balance", t.After.Balance.StringFixed(2),
	)
	return t, nil
}

// reloadLocked refreshes a drawer after a stale-state error. The original
// error is still returned to the caller.
func (s *Service) reloadLocked(ctx context.Context, storeID, op string, cause error) {
	s.log.WarnContext(ctx, "illegal drawer transition, reloading state", "op", op, "store_id", storeID, "error", cause)
	delete(s.drawers, storeID)
	if _, err := s.drawerLocked(ctx, storeID); err != nil {
		s.log.ErrorContext(ctx, "drawer reload failed", "store_id", storeID, "error", err)
	}
}

func (s *Service) drawerLocked(ctx context.Context, storeID string) (*Drawer, error) {
	if storeID == "" {
		return nil, apperr.Validation("drawer.load", "store id is required")
	}
	if d, ok := s.drawers[storeID]; ok {
		return d, nil
	}
	state, moves, err := s.repo.GetDrawerState(ctx, storeID)
	if err != nil {
		return nil, apperr.Persistence("drawer.load", err)
	}
	state.StoreID = storeID
	d := Restore(state, moves)
	if s.now != nil {
		d.now = s.now
	}
	s.drawers[storeID] = d
	return d, nil
}

func firstMove(t Transition) Move {
	if len(t.Moves) == 0 {
		return Move{}
	}
	return t.Moves[0]
}
