package products

import "sort"

// Tombstone reasons.
const (
	ReasonNotFound    = "not_found"
	ReasonUnreachable = "unreachable"
)

// Snapshot is a read-only projection of a product at the time it was resolved.
// Stock and price may be stale; callers re-resolve when recency matters.
type Snapshot struct {
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Stock          int      `json:"stock"`
	SellerID       string   `json:"seller_id"`
	Images         []string `json:"images,omitempty"`
}

// Entry is one resolution result. A tombstoned entry carries no usable snapshot.
type Entry struct {
	Snapshot  Snapshot `json:"snapshot"`
	Tombstone bool     `json:"tombstone"`
	Reason    string   `json:"reason,omitempty"`
}

// Available reports whether the entry resolved to a live product.
func (e Entry) Available() bool {
	return !e.Tombstone
}

func tombstone(productID, reason string) Entry {
	return Entry{Snapshot: Snapshot{ProductID: productID}, Tombstone: true, Reason: reason}
}

// Resolution maps product ids to their resolution entries.
type Resolution map[string]Entry

// Tombstones returns the ids that failed to resolve, sorted.
func (r Resolution) Tombstones() []string {
	var ids []string
	for id, entry := range r {
		if entry.Tombstone {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clone copies the map so a checkout session can hold a frozen view.
func (r Resolution) Clone() Resolution {
	out := make(Resolution, len(r))
	for id, entry := range r {
		out[id] = entry
	}
	return out
}
