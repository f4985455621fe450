// Package catalog is the read-only menu input to line pricing.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// Station routes a ticket line to a kitchen section.
type Station string

const (
	StationBar  Station = "BAR"
	StationHot  Station = "HOT"
	StationCold Station = "COLD"
)

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

type ModifierOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"priceDelta"`
}

// ModifierGroup bounds how many of its options a line may carry.
type ModifierGroup struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Min     int              `json:"min"`
	Max     int              `json:"max"`
	Options []ModifierOption `json:"options"`
}

func (g ModifierGroup) Option(id string) (ModifierOption, bool) {
	for _, o := range g.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ModifierOption{}, false
}

type Item struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CategoryID       string          `json:"categoryId"`
	BasePrice        decimal.Decimal `json:"basePrice"`
	Active           bool            `json:"active"`
	SoldOut          bool            `json:"soldOut"`
	ModifierGroupIDs []string        `json:"modifierGroupIds"`
	Station          Station         `json:"station,omitempty"`
}

// Catalog is what getCatalog(storeId) returns.
type Catalog struct {
	StoreID        string          `json:"storeId"`
	Items          []Item          `json:"items"`
	Categories     []Category      `json:"categories"`
	ModifierGroups []ModifierGroup `json:"modifierGroups"`
}

func (c *Catalog) Item(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (c *Catalog) Group(id string) (ModifierGroup, bool) {
	for _, g := range c.ModifierGroups {
		if g.ID == id {
			return g, true
		}
	}
	return ModifierGroup{}, false
}

// GroupsFor resolves item's group references in the order the item lists them.
func (c *Catalog) GroupsFor(item Item) ([]ModifierGroup, error) {
	groups := make([]ModifierGroup, 0, len(item.ModifierGroupIDs))
	for _, id := range item.ModifierGroupIDs {
		g, ok := c.Group(id)
		if !ok {
			return nil, apperr.NotFound("catalog.GroupsFor", "item %q references unknown modifier group %q", item.ID, id)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Validate checks referential integrity and group bounds.
func (c *Catalog) Validate() error {
	const op = "catalog.Validate"
	seen := make(map[string]bool, len(c.ModifierGroups))
	for _, g := range c.ModifierGroups {
		if g.ID == "" {
			return apperr.Validation(op, "modifier group without id")
		}
		if seen[g.ID] {
			return apperr.Validation(op, "duplicate modifier group %q", g.ID)
		}
		seen[g.ID] = true
		if g.Min < 0 || g.Max < g.Min {
			return apperr.Validation(op, "group %q: need 0 <= min <= max, got min=%d max=%d", g.ID, g.Min, g.Max)
		}
		if g.Min > len(g.Options) {
			return apperr.Validation(op, "group %q: min %d exceeds %d options", g.ID, g.Min, len(g.Options))
		}
	}
	items := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if it.ID == "" {
			return apperr.Validation(op, "item without id")
		}
		if items[it.ID] {
			return apperr.Validation(op, "duplicate item %q", it.ID)
		}
		items[it.ID] = true
		if it.BasePrice.IsNegative() {
			return apperr.Validation(op, "item %q: negative base price", it.ID)
		}
		if _, err := c.GroupsFor(it); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads a JSON catalog from disk and validates it.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
