// Package pricing computes cart totals in integer minor units. All
// arithmetic truncates toward zero; no floats enter the money path.
package pricing

// Money is a monetary amount in minor units (e.g. paise, cents).
type Money = int64

// Item is a priced cart line.
type Item struct {
	Qty       int
	UnitPrice Money
}

func (it Item) lineTotal() Money {
	if it.Qty <= 0 {
		return 0
	}
	return Money(it.Qty) * it.UnitPrice
}

// Summary holds the computed totals for a cart.
type Summary struct {
	Subtotal Money
	Tax      Money
	Total    Money
}

// Compute sums the line totals and applies tax expressed in basis points.
func Compute(items []Item, taxBps int) Summary {
	var subtotal Money
	for _, it := range items {
		subtotal += it.lineTotal()
	}
	tax := subtotal * Money(taxBps) / 10000
	return Summary{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}
