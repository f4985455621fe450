package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
)

// Source is the menu lookup collaborator.
type Source interface {
	GetCatalog(ctx context.Context, storeID string) (*Catalog, error)
}

// MemorySource serves catalogs held in process, keyed by store. A catalog
// registered under "*" answers for any store without its own entry.
type MemorySource struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
}

func NewMemorySource() *MemorySource {
	return &MemorySource{catalogs: make(map[string]*Catalog)}
}

func (s *MemorySource) Put(storeID string, c *Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[storeID] = c
}

func (s *MemorySource) GetCatalog(_ context.Context, storeID string) (*Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.catalogs[storeID]; ok {
		return c, nil
	}
	if c, ok := s.catalogs["*"]; ok {
		cp := *c
		cp.StoreID = storeID
		return &cp, nil
	}
	return nil, apperr.NotFound("catalog.GetCatalog", "no catalog for store %q", storeID)
}

const defaultCatalogTTL = 10 * time.Minute

// CachedSource is a cache-aside decorator. Concurrent misses for the same
// store collapse into one upstream call.
type CachedSource struct {
	next  Source
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger

	mu sync.Mutex
}

func NewCachedSource(next Source, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedSource{next: next, cache: c, ttl: ttl, log: log}
}

func (s *CachedSource) GetCatalog(ctx context.Context, storeID string) (*Catalog, error) {
	key := s.cache.GenerateKey("catalog", storeID)

	if c, ok := s.lookup(ctx, key); ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have filled the entry while we waited.
	if c, ok := s.lookup(ctx, key); ok {
		return c, nil
	}

	c, err := s.next.GetCatalog(ctx, storeID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(c)
	if err == nil {
		err = s.cache.Set(ctx, key, raw, s.ttl)
	}
	if err != nil {
		s.log.WarnContext(ctx, "catalog cache write failed", "store_id", storeID, "error", err)
	}
	return c, nil
}

// Invalidate drops the cached catalog of a store.
func (s *CachedSource) Invalidate(ctx context.Context, storeID string) error {
	return s.cache.Del(ctx, s.cache.GenerateKey("catalog", storeID))
}

func (s *CachedSource) lookup(ctx context.Context, key string) (*Catalog, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var c Catalog
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.log.WarnContext(ctx, "discarding corrupt catalog cache entry", "key", key, "error", err)
		return nil, false
	}
	return &c, true
}
