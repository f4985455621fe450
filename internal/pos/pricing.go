// Package pos holds the point-of-sale aggregates: priced cart lines built
// from catalog items and the cart they are collected in.
package pos

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/restaurant-pos/internal/catalog"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/apperr"
)

// newLineID is swapped in tests that need stable ids.
var newLineID = uuid.NewString

// Selection is a raw pick from the modifier dialog.
type Selection struct {
	GroupID  string `json:"groupId"`
	OptionID string `json:"optionId"`
}

// ChosenModifier is a selection resolved against the catalog, with the name
// and delta frozen at the time the line was built.
type ChosenModifier struct {
	GroupID    string          `json:"groupId"`
	OptionID   string          `json:"optionId"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"priceDelta"`
}

type CartLine struct {
	ID        string           `json:"id"`
	ItemID    string           `json:"itemId"`
	Name      string           `json:"name"`
	BasePrice decimal.Decimal  `json:"basePrice"`
	Quantity  int              `json:"quantity"`
	Modifiers []ChosenModifier `json:"modifiers"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	Station   catalog.Station  `json:"station,omitempty"`
}

// LineTotal is UnitPrice × Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) clone() CartLine {
	out := l
	out.Modifiers = append([]ChosenModifier(nil), l.Modifiers...)
	return out
}

// CloneLines deep-copies lines, modifiers included.
func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	for i, l := range lines {
		out[i] = l.clone()
	}
	return out
}

// ModifierCountError reports a group whose selection count falls outside
// [Min, Max]. It matches apperr.ErrValidation.
type ModifierCountError struct {
	GroupID   string
	GroupName string
	Min       int
	Max       int
	Count     int
}

func (e *ModifierCountError) Error() string {
	return fmt.Sprintf("modifier group %q: %d selected, need between %d and %d", e.GroupName, e.Count, e.Min, e.Max)
}

func (e *ModifierCountError) Unwrap() error { return apperr.ErrValidation }

// BuildLine validates selections against the item's modifier groups and
// returns a priced line. groups must be the item's groups as resolved by
// catalog.GroupsFor. Unit price is base price plus every selected delta,
// applied as-is with no floor.
func BuildLine(item catalog.Item, groups []catalog.ModifierGroup, quantity int, selections []Selection) (CartLine, error) {
	const op = "pos.BuildLine"

	if quantity < 1 {
		return CartLine{}, apperr.Validation(op, "quantity must be at least 1, got %d", quantity)
	}
	if !item.Active {
		return CartLine{}, apperr.Validation(op, "item %q is not active", item.ID)
	}
	if item.SoldOut {
		return CartLine{}, apperr.Validation(op, "item %q is sold out", item.ID)
	}

	byGroup := make(map[string][]Selection, len(groups))
	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}

	seen := make(map[Selection]bool, len(selections))
	for _, s := range selections {
		if !known[s.GroupID] {
			return CartLine{}, apperr.Validation(op, "item %q has no modifier group %q", item.ID, s.GroupID)
		}
		if seen[s] {
			return CartLine{}, apperr.Validation(op, "option %q selected twice", s.OptionID)
		}
		seen[s] = true
		byGroup[s.GroupID] = append(byGroup[s.GroupID], s)
	}

	unit := item.BasePrice
	var chosen []ChosenModifier
	for _, g := range groups {
		picked := byGroup[g.ID]
		if len(picked) < g.Min || len(picked) > g.Max {
			return CartLine{}, &ModifierCountError{
				GroupID:   g.ID,
				GroupName: g.Name,
				Min:       g.Min,
				Max:       g.Max,
				Count:     len(picked),
			}
		}
		for _, s := range picked {
			opt, ok := g.Option(s.OptionID)
			if !ok {
				return CartLine{}, apperr.Validation(op, "group %q has no option %q", g.ID, s.OptionID)
			}
			chosen = append(chosen, ChosenModifier{
				GroupID:    g.ID,
				OptionID:   opt.ID,
				Name:       opt.Name,
				PriceDelta: opt.PriceDelta,
			})
			unit = unit.Add(opt.PriceDelta)
		}
	}

	return CartLine{
		ID:        newLineID(),
		ItemID:    item.ID,
		Name:      item.Name,
		BasePrice: item.BasePrice,
		Quantity:  quantity,
		Modifiers: chosen,
		UnitPrice: unit,
		Station:   item.Station,
	}, nil
}

// ToggleSelection applies one tap on an option to the current selections.
// A selected option is deselected. In a single-choice group the new option
// replaces the old one; in a multi-choice group it is added only while the
// group is under its max, otherwise current is returned unchanged.
func ToggleSelection(group catalog.ModifierGroup, current []Selection, optionID string) []Selection {
	tapped := Selection{GroupID: group.ID, OptionID: optionID}

	out := make([]Selection, 0, len(current)+1)
	inGroup := 0
	for _, s := range current {
		if s == tapped {
			// deselect
			return without(current, tapped)
		}
		if s.GroupID == group.ID {
			inGroup++
		}
	}

	if _, ok := group.Option(optionID); !ok {
		return append(out, current...)
	}

	if group.Max == 1 {
		for _, s := range current {
			if s.GroupID != group.ID {
				out = append(out, s)
			}
		}
		return append(out, tapped)
	}

	out = append(out, current...)
	if inGroup >= group.Max {
		return out
	}
	return append(out, tapped)
}

func without(current []Selection, drop Selection) []Selection {
	out := make([]Selection, 0, len(current))
	for _, s := range current {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
