package pos

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/cache"
)

const cartSnapshotVersion = 1

// CartStore persists one cart per store across process restarts.
type CartStore interface {
	// Load returns the stored cart, or an empty one when nothing is stored or
	// the stored data cannot be decoded. Only backend failures are errors.
	Load(ctx context.Context, storeID string) (*Cart, error)
	Save(ctx context.Context, storeID string, cart *Cart) error
	Delete(ctx context.Context, storeID string) error
}

type cartSnapshot struct {
	Version int   `json:"version"`
	Cart    *Cart `json:"cart"`
}

// EncodeCart serialises cart into the versioned snapshot format.
func EncodeCart(cart *Cart) ([]byte, error) {
	return json.Marshal(cartSnapshot{Version: cartSnapshotVersion, Cart: cart})
}

// DecodeCart never fails: corrupt, foreign-version or inconsistent data
// yields an empty cart and a warning.
func DecodeCart(ctx context.Context, raw []byte, log *slog.Logger) *Cart {
	if len(raw) == 0 {
		return NewCart()
	}
	if log == nil {
		log = slog.Default()
	}

	var snap cartSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.WarnContext(ctx, "resetting corrupt cart snapshot", "error", err)
		return NewCart()
	}
	if snap.Version != cartSnapshotVersion || snap.Cart == nil {
		log.WarnContext(ctx, "resetting cart snapshot with unknown version", "version", snap.Version)
		return NewCart()
	}

	c := snap.Cart
	if c.Lines == nil {
		c.Lines = []CartLine{}
	}
	ids := make(map[string]bool, len(c.Lines))
	for _, l := range c.Lines {
		if l.ID == "" || l.Quantity < 1 || ids[l.ID] {
			log.WarnContext(ctx, "resetting inconsistent cart snapshot", "line_id", l.ID, "quantity", l.Quantity)
			return NewCart()
		}
		ids[l.ID] = true
	}
	if c.Discount != nil {
		if err := c.SetDiscount(c.Discount); err != nil {
			log.WarnContext(ctx, "dropping invalid stored discount", "error", err)
			c.Discount = nil
		}
	}
	return c
}

// CacheStore keeps cart snapshots in a cache.Cache with no expiry.
type CacheStore struct {
	cache cache.Cache
	log   *slog.Logger
}

func NewCacheStore(c cache.Cache, log *slog.Logger) *CacheStore {
	if log == nil {
		log = slog.Default()
	}
	return &CacheStore{cache: c, log: log}
}

func (s *CacheStore) Load(ctx context.Context, storeID string) (*Cart, error) {
	raw, err := s.cache.Get(ctx, s.key(storeID))
	if err != nil {
		return nil, apperr.Persistence("pos.LoadCart", err)
	}
	return DecodeCart(ctx, []byte(raw), s.log.With("store_id", storeID)), nil
}

func (s *CacheStore) Save(ctx context.Context, storeID string, cart *Cart) error {
	raw, err := EncodeCart(cart)
	if err != nil {
		return apperr.Persistence("pos.SaveCart", err)
	}
	if err := s.cache.Set(ctx, s.key(storeID), raw, 0); err != nil {
		return apperr.Persistence("pos.SaveCart", err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, storeID string) error {
	return apperr.Persistence("pos.DeleteCart", s.cache.Del(ctx, s.key(storeID)))
}

func (s *CacheStore) key(storeID string) string {
	return s.cache.GenerateKey("cart", storeID)
}
