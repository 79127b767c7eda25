// Package binpack implements the constant-volume greedy bin-packing
// policy the Picker uses to partition catalog records into bundles: items
// sorted by size descending, placed into the first bin with room,
// opening a new bin only when none admits the item. No bin-packing
// library appears anywhere in the retrieved example pack, so this is a
// small hand-written algorithm package rather than a wrapped dependency
// (see DESIGN.md).
package binpack

import "sort"

// Item is anything with a size, ready to be packed into a bin.
type Item[T any] struct {
	Size  int64
	Value T
}

// ToConstantVolume partitions items into bins whose summed Size is at
// most capacity, using first-fit-decreasing: items are sorted by Size
// descending, then each is placed into the first existing bin with
// enough remaining room, opening a new bin only when none admits it.
// A single item larger than capacity occupies its own bin. The
// ordering of items is stable with respect to ties (original index),
// so the result is deterministic for a given input slice.
func ToConstantVolume[T any](items []Item[T], capacity int64) [][]Item[T] {
	if len(items) == 0 {
		return nil
	}

	ordered := make([]Item[T], len(items))
	copy(ordered, items)
	indices := make([]int, len(ordered))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return ordered[indices[a]].Size > ordered[indices[b]].Size
	})

	var bins [][]Item[T]
	remaining := make([]int64, 0)

	for _, idx := range indices {
		item := ordered[idx]
		placed := false
		for b := range bins {
			if remaining[b] >= item.Size {
				bins[b] = append(bins[b], item)
				remaining[b] -= item.Size
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, []Item[T]{item})
			remaining = append(remaining, capacity-item.Size)
		}
	}

	return bins
}
