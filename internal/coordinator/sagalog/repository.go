package sagalog

import (
	"context"
	"fmt"
	"sync"
)

// Repository persists saga log rows. The orchestrator depends only on Save.
type Repository interface {
	// Save appends a row; rows are never updated.
	Save(ctx context.Context, entry *SagaLog) error
}

// Reader exposes the rows of a saga for status endpoints.
type Reader interface {
	History(ctx context.Context, sagaID string) ([]SagaLog, error)
}

// MemoryRepository keeps rows in process.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string][]SagaLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string][]SagaLog)}
}

func (r *MemoryRepository) Save(_ context.Context, entry *SagaLog) error {
	if entry == nil || entry.SagaID == "" {
		return fmt.Errorf("sagalog: entry without saga id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[entry.SagaID] = append(r.rows[entry.SagaID], *entry)
	return nil
}

func (r *MemoryRepository) History(_ context.Context, sagaID string) ([]SagaLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SagaLog(nil), r.rows[sagaID]...), nil
}
