package drawer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// MemoryRepository keeps drawer state in process. Tests and single-terminal
// development setups use it; production uses sqlstore.
type MemoryRepository struct {
	mu     sync.Mutex
	states map[string]State
	moves  map[string][]Move // by session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		states: make(map[string]State),
		moves:  make(map[string][]Move),
	}
}

func (r *MemoryRepository) GetDrawerState(_ context.Context, storeID string) (State, []Move, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[storeID]
	if !ok {
		return State{StoreID: storeID, Status: StatusClosed}, nil, nil
	}
	return st, append([]Move(nil), r.moves[st.SessionID]...), nil
}

func (r *MemoryRepository) ApplyTransition(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.states[t.After.StoreID]
	if cur.Version != t.Before.Version {
		return apperr.IllegalTransition("drawer.ApplyTransition", "stale drawer version %d, stored %d", t.Before.Version, cur.Version)
	}
	r.states[t.After.StoreID] = t.After
	r.moves[t.After.SessionID] = append(r.moves[t.After.SessionID], t.Moves...)
	return nil
}

func (r *MemoryRepository) MovesBetween(_ context.Context, storeID string, from, to time.Time) ([]Move, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Move
	for _, moves := range r.moves {
		for _, m := range moves {
			if m.StoreID == storeID && !m.At.Before(from) && m.At.Before(to) {
				out = append(out, m)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
