package ordering

import (
	"fmt"
	"math"
	"sort"
)

// Transfer is the result of moving an item between containers. Source holds
// the items left behind, with their positions untouched; Updates apply to the
// destination container.
type Transfer struct {
	Source  []Item
	Updates []Update
}

// ResolveMove places movedID at the slot a raw target position falls into:
// after every other item whose position is below target. It returns no update
// when the item already occupies that slot, a single update in the common
// case, and a full renumbering of the container when the neighbours are too
// close to split.
func (e *Engine) ResolveMove(seq []Item, movedID string, target float64) ([]Update, error) {
	if err := CheckSequence(seq); err != nil {
		return nil, err
	}
	idx := indexOf(seq, movedID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, movedID)
	}
	if math.IsNaN(target) || math.IsInf(target, 0) || target < 0 {
		return nil, fmt.Errorf("%w: position %v", ErrInvalidTarget, target)
	}

	current := seq[idx].Position
	remainder := sortedCopy(without(seq, idx))
	slot := sort.Search(len(remainder), func(i int) bool {
		return remainder[i].Position >= target
	})
	return e.place(remainder, movedID, slot, &current), nil
}

// ResolveMoveToIndex places movedID so that it ends up at index within the
// container, counting the other items only.
func (e *Engine) ResolveMoveToIndex(seq []Item, movedID string, index int) ([]Update, error) {
	if err := CheckSequence(seq); err != nil {
		return nil, err
	}
	idx := indexOf(seq, movedID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, movedID)
	}
	if index < 0 || index > len(seq)-1 {
		return nil, fmt.Errorf("%w: index %d outside 0..%d", ErrInvalidTarget, index, len(seq)-1)
	}

	current := seq[idx].Position
	remainder := sortedCopy(without(seq, idx))
	return e.place(remainder, movedID, index, &current), nil
}

// ResolveInsert positions a new item at index, 0 being the head and len(seq)
// the tail.
func (e *Engine) ResolveInsert(seq []Item, newID string, index int) ([]Update, error) {
	if err := CheckSequence(seq); err != nil {
		return nil, err
	}
	if newID == "" {
		return nil, fmt.Errorf("%w: empty item id", ErrInvalidTarget)
	}
	if indexOf(seq, newID) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrItemExists, newID)
	}
	if index < 0 || index > len(seq) {
		return nil, fmt.Errorf("%w: index %d outside 0..%d", ErrInvalidTarget, index, len(seq))
	}
	return e.place(sortedCopy(seq), newID, index, nil), nil
}

// ResolveTransfer moves itemID out of source and into dest at index. The
// source container needs no writes.
func (e *Engine) ResolveTransfer(source, dest []Item, itemID string, index int) (Transfer, error) {
	if err := CheckSequence(source); err != nil {
		return Transfer{}, err
	}
	idx := indexOf(source, itemID)
	if idx < 0 {
		return Transfer{}, fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	updates, err := e.ResolveInsert(dest, itemID, index)
	if err != nil {
		return Transfer{}, err
	}
	return Transfer{
		Source:  without(source, idx),
		Updates: updates,
	}, nil
}

// place computes the writes needed to put id at slot within the sorted
// remainder. current is the item's present position, nil for a new item.
func (e *Engine) place(remainder []Item, id string, slot int, current *float64) []Update {
	var prev, next *float64
	if slot > 0 {
		p := remainder[slot-1].Position
		prev = &p
	}
	if slot < len(remainder) {
		n := remainder[slot].Position
		next = &n
	}

	if current != nil && within(*current, prev, next) {
		return nil
	}

	placement := e.Calculate(prev, next)
	if placement.OK() {
		return []Update{{ID: id, Position: placement.Position}}
	}

	ordered := make([]Item, 0, len(remainder)+1)
	ordered = append(ordered, remainder[:slot]...)
	ordered = append(ordered, Item{ID: id})
	ordered = append(ordered, remainder[slot:]...)
	return e.renumber(ordered)
}

func within(position float64, prev, next *float64) bool {
	if prev != nil && position <= *prev {
		return false
	}
	if next != nil && position >= *next {
		return false
	}
	return true
}
