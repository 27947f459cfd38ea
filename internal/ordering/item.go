package ordering

// Item is one entry of a container's sequence.
type Item struct {
	ID       string
	Position float64
}

// Update assigns a new position to an item. For a transfer it also places the
// item in the destination container.
type Update struct {
	ID       string
	Position float64
}

func indexOf(items []Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func without(items []Item, index int) []Item {
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:index]...)
	return append(out, items[index+1:]...)
}
