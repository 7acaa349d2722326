package domain

// Summary captures the aggregated monetary result of pricing a composition.
type Summary struct {
	TotalMinor  int64
	ActiveCount int
}

// Summarize derives the live total and active charm count from the current
// composition: base price (zero when none is selected) plus the price of
// every occupied slot. The function is pure; callers recompute after every
// mutation instead of caching.
func Summarize(c *Composition) Summary {
	if c == nil {
		return Summary{}
	}
	var total int64
	if base, ok := c.Base(); ok {
		total += base.PriceMinor
	}
	count := 0
	for _, slot := range c.Slots() {
		if slot.Placement == nil {
			continue
		}
		total += slot.Placement.Item.PriceMinor
		count++
	}
	return Summary{TotalMinor: total, ActiveCount: count}
}
