// Package position computes gap-based ordering values for sibling lists.
//
// Siblings under one parent (columns on a board, cards in a column) carry
// integer positions spaced Gap apart. Inserting between two siblings takes
// the floor midpoint of their positions, so most reorders rewrite a single
// row. When two neighbors leave no integer strictly between them the
// computation reports ErrCollision and the caller must rebalance the whole
// sibling list before retrying.
package position

import "errors"

const (
	// Gap is the spacing unit between adjacent siblings.
	Gap = 1000

	// MinGap is the smallest gap that still admits a distinct midpoint.
	MinGap = 1
)

// ErrCollision reports that two neighboring positions leave no room for a
// midpoint. It is a signal to rebalance and retry, never a user-facing error.
var ErrCollision = errors.New("position: no integer between neighboring positions")

// Item is one positioned sibling in a parent's ordering space.
type Item struct {
	ID       string
	Position int
}

// Update pairs an item with its recomputed position after a rebalance.
type Update struct {
	ID       string
	Position int
}

// Append returns the position for a new item added after every existing
// sibling. The slice must be ordered by position ascending; it may be empty.
func Append(siblings []Item) int {
	if len(siblings) == 0 {
		return Gap
	}
	return siblings[len(siblings)-1].Position + Gap
}

// Plan computes the position the item movedID should take to occupy
// targetIndex within siblings. The slice is the current order, moved item
// included, sorted by position ascending; targetIndex is interpreted against
// that same list and clamped to its bounds.
//
// Moving an item to its current slot, or moving the only item in a list,
// returns the item's current position unchanged; callers can compare and skip
// the write. A head insertion tries lowest-Gap, then floor(lowest/2); if even
// that collapses to zero the result is ErrCollision. Positions are therefore
// always >= 1.
func Plan(siblings []Item, movedID string, targetIndex int) (int, error) {
	current := -1
	for i := range siblings {
		if siblings[i].ID == movedID {
			current = i
			break
		}
	}
	if current == -1 {
		return 0, errors.New("position: moved item is not in the sibling list")
	}

	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > len(siblings)-1 {
		targetIndex = len(siblings) - 1
	}
	if targetIndex == current || len(siblings) == 1 {
		return siblings[current].Position, nil
	}

	// Neighbors that straddle the new slot once the moved item has
	// conceptually left its old one.
	var lower, upper *Item
	if targetIndex > current {
		lower = &siblings[targetIndex]
		if targetIndex+1 < len(siblings) {
			upper = &siblings[targetIndex+1]
		}
	} else {
		upper = &siblings[targetIndex]
		if targetIndex-1 >= 0 {
			lower = &siblings[targetIndex-1]
		}
	}

	switch {
	case lower == nil:
		return headPosition(upper.Position)
	case upper == nil:
		return lower.Position + Gap, nil
	default:
		return midpoint(lower.Position, upper.Position)
	}
}

func headPosition(lowest int) (int, error) {
	if candidate := lowest - Gap; candidate >= MinGap {
		return candidate, nil
	}
	if candidate := lowest / 2; candidate >= MinGap {
		return candidate, nil
	}
	return 0, ErrCollision
}

func midpoint(lower, upper int) (int, error) {
	mid := (lower + upper) / 2
	if mid <= lower || mid >= upper {
		return 0, ErrCollision
	}
	return mid, nil
}

// Rebalance assigns evenly spaced positions Gap, 2*Gap, 3*Gap, ... to the
// items in their current order. It is idempotent: a list already spaced at
// multiples of Gap maps to the same values. The caller must persist the
// returned updates as one atomic batch.
func Rebalance(siblings []Item) []Update {
	updates := make([]Update, len(siblings))
	for i, item := range siblings {
		updates[i] = Update{ID: item.ID, Position: (i + 1) * Gap}
	}
	return updates
}
