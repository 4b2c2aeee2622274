package cart

// Line is one product in the cart. A cart never holds two lines for the same
// product, and never a line with a non-positive quantity.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is an immutable value: operations return a new Cart and never share
// the Lines backing array with their input.
type Cart struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Lines   []Line `json:"lines"`
}

// Line returns the line for productID.
func (c Cart) Line(productID string) (Line, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return Line{}, false
}

// Quantity returns the quantity held for productID, or zero.
func (c Cart) Quantity(productID string) int {
	line, _ := c.Line(productID)
	return line.Quantity
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount sums quantities across lines.
func (c Cart) ItemCount() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// ProductIDs lists the products in line order.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]Line, len(c.Lines))
	copy(out.Lines, c.Lines)
	return out
}

// Normalize turns any server payload into a canonical cart: duplicate lines
// are merged in first-seen order and non-positive lines are dropped.
func Normalize(c Cart) Cart {
	out := Cart{ID: c.ID, OwnerID: c.OwnerID, Lines: make([]Line, 0, len(c.Lines))}
	index := make(map[string]int, len(c.Lines))
	for _, line := range c.Lines {
		if line.ProductID == "" {
			continue
		}
		if pos, ok := index[line.ProductID]; ok {
			out.Lines[pos].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out.Lines)
		out.Lines = append(out.Lines, line)
	}
	kept := out.Lines[:0]
	for _, line := range out.Lines {
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	out.Lines = kept
	return out
}

// MutationKind names a structural cart change.
type MutationKind string

const (
	MutationAdd      MutationKind = "add"
	MutationIncrease MutationKind = "increase"
	MutationDecrease MutationKind = "decrease"
	MutationRemove   MutationKind = "remove"
	MutationClear    MutationKind = "clear"
)

// Mutation describes one change. Quantity is only read for MutationAdd.
type Mutation struct {
	Kind      MutationKind
	ProductID string
	Quantity  int
}

// Apply predicts the effect of m on c without any stock validation. The
// result is always normalized.
func (c Cart) Apply(m Mutation) Cart {
	next := c.Clone()
	switch m.Kind {
	case MutationAdd:
		if m.Quantity < 1 {
			return Normalize(next)
		}
		next.Lines = append(next.Lines, Line{ProductID: m.ProductID, Quantity: m.Quantity})
	case MutationIncrease:
		for i := range next.Lines {
			if next.Lines[i].ProductID == m.ProductID {
				next.Lines[i].Quantity++
			}
		}
	case MutationDecrease:
		for i := range next.Lines {
			if next.Lines[i].ProductID == m.ProductID && next.Lines[i].Quantity > 1 {
				next.Lines[i].Quantity--
			}
		}
	case MutationRemove:
		for i := range next.Lines {
			if next.Lines[i].ProductID == m.ProductID {
				next.Lines[i].Quantity = 0
			}
		}
	case MutationClear:
		next.Lines = nil
	}
	return Normalize(next)
}
