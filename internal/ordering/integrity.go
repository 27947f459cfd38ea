package ordering

import (
	"fmt"
	"math"
)

// CheckSequence rejects sequences a store must never return: duplicate ids,
// duplicate positions and non-finite positions.
func CheckSequence(items []Item) error {
	ids := make(map[string]struct{}, len(items))
	positions := make(map[float64]string, len(items))
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%w: empty item id", ErrCorruptSequence)
		}
		if _, ok := ids[item.ID]; ok {
			return fmt.Errorf("%w: duplicate item id %q", ErrCorruptSequence, item.ID)
		}
		ids[item.ID] = struct{}{}
		if math.IsNaN(item.Position) || math.IsInf(item.Position, 0) {
			return fmt.Errorf("%w: non-finite position for %q", ErrCorruptSequence, item.ID)
		}
		if other, ok := positions[item.Position]; ok {
			return fmt.Errorf("%w: %q and %q share position %v", ErrCorruptSequence, other, item.ID, item.Position)
		}
		positions[item.Position] = item.ID
	}
	return nil
}
