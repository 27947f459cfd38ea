package ordering

import "sort"

// Rebalance renumbers items to Gap, 2*Gap, ... in position order. Items with
// equal positions keep their input order.
func (e *Engine) Rebalance(items []Item) []Update {
	sorted := sortedCopy(items)
	return e.renumber(sorted)
}

func (e *Engine) renumber(ordered []Item) []Update {
	updates := make([]Update, len(ordered))
	for i, item := range ordered {
		updates[i] = Update{ID: item.ID, Position: e.cfg.Gap * float64(i+1)}
	}
	return updates
}

func sortedCopy(items []Item) []Item {
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}
