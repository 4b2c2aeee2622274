package cart

import (
	"github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/money"
)

// HydratedLine joins a cart line with its product snapshot.
type HydratedLine struct {
	Line
	Product        products.Snapshot `json:"product"`
	LineTotalCents int64             `json:"line_total_cents"`
	Unavailable    bool              `json:"unavailable"`
	Reason         string            `json:"reason,omitempty"`
}

// Summary is the priced view of a cart.
type Summary struct {
	CartID        string         `json:"cart_id"`
	Lines         []HydratedLine `json:"lines"`
	Tombstones    []string       `json:"tombstones"`
	ItemCount     int            `json:"item_count"`
	SubtotalCents int64          `json:"subtotal_cents"`
}

// Hydrate prices c against res. Lines whose product is tombstoned or missing
// from res are flagged unavailable and left out of the subtotal.
func Hydrate(c Cart, res products.Resolution) Summary {
	summary := Summary{
		CartID:     c.ID,
		Lines:      make([]HydratedLine, 0, len(c.Lines)),
		Tombstones: []string{},
	}
	for _, line := range c.Lines {
		hydrated := HydratedLine{Line: line}
		entry, ok := res[line.ProductID]
		switch {
		case !ok:
			hydrated.Unavailable = true
			hydrated.Reason = products.ReasonUnreachable
			hydrated.Product = products.Snapshot{ProductID: line.ProductID}
		case entry.Tombstone:
			hydrated.Unavailable = true
			hydrated.Reason = entry.Reason
			hydrated.Product = entry.Snapshot
		default:
			hydrated.Product = entry.Snapshot
			hydrated.LineTotalCents = money.LineTotal(entry.Snapshot.UnitPriceCents, line.Quantity)
			summary.SubtotalCents += hydrated.LineTotalCents
			summary.ItemCount += line.Quantity
		}
		if hydrated.Unavailable {
			summary.Tombstones = append(summary.Tombstones, line.ProductID)
		}
		summary.Lines = append(summary.Lines, hydrated)
	}
	return summary
}
