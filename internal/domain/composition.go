package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity indicates a non-positive slot capacity.
	ErrInvalidCapacity = errors.New("composition: capacity must be at least 1")
	// ErrIndexOutOfRange indicates a slot index outside [0, capacity).
	ErrIndexOutOfRange = errors.New("composition: slot index out of range")
	// ErrSlotOccupied indicates an attempt to place into a non-empty slot.
	ErrSlotOccupied = errors.New("composition: slot already occupied")
	// ErrEmptySlot indicates an operation that requires an occupied slot.
	ErrEmptySlot = errors.New("composition: slot is empty")
)

// Composition is the fixed-length, positionally addressed slot store. Slots
// never shift: a placement stays at its index until explicitly removed,
// relocated, or truncated away by a confirmed resize. The zero value is not
// usable; construct with NewComposition.
type Composition struct {
	capacity int
	slots    []*Placement
	base     *CatalogItem
}

// NewComposition builds an all-empty composition with the given capacity.
func NewComposition(capacity int) (*Composition, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Composition{
		capacity: capacity,
		slots:    make([]*Placement, capacity),
	}, nil
}

// Capacity returns the current number of slots.
func (c *Composition) Capacity() int { return c.capacity }

// SelectBase sets the bracelet being customised. Existing placements are
// kept; changing the base never clears slots.
func (c *Composition) SelectBase(item CatalogItem) {
	dup := item
	c.base = &dup
}

// Base returns the selected bracelet, if any.
func (c *Composition) Base() (CatalogItem, bool) {
	if c.base == nil {
		return CatalogItem{}, false
	}
	return *c.base, true
}

// Get returns the placement at index, or occupied=false when the slot is
// empty.
func (c *Composition) Get(index int) (Placement, bool, error) {
	if index < 0 || index >= c.capacity {
		return Placement{}, false, fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfRange, index, c.capacity)
	}
	if c.slots[index] == nil {
		return Placement{}, false, nil
	}
	return *c.slots[index], true, nil
}

// Set writes the slot at index, overwriting whatever is there. Pass nil to
// empty the slot. Higher-level occupancy rules live in the engine; Set is
// the raw primitive.
func (c *Composition) Set(index int, p *Placement) error {
	if index < 0 || index >= c.capacity {
		return fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfRange, index, c.capacity)
	}
	if p == nil {
		c.slots[index] = nil
		return nil
	}
	dup := *p
	c.slots[index] = &dup
	return nil
}

// FirstEmpty returns the lowest-indexed empty slot. The left-to-right scan
// is what makes default placement order deterministic.
func (c *Composition) FirstEmpty() (int, bool) {
	for i, slot := range c.slots {
		if slot == nil {
			return i, true
		}
	}
	return 0, false
}

// FindPlacement locates the slot holding the given placement id.
func (c *Composition) FindPlacement(placementID string) (int, bool) {
	for i, slot := range c.slots {
		if slot != nil && slot.ID == placementID {
			return i, true
		}
	}
	return 0, false
}

// OccupiedCount returns the number of non-empty slots.
func (c *Composition) OccupiedCount() int {
	count := 0
	for _, slot := range c.slots {
		if slot != nil {
			count++
		}
	}
	return count
}

// Resize grows or shrinks the slot store. Growing pads with empty slots.
// Shrinking truncates from the tail; when any truncated slot is occupied,
// confirmDestructive decides whether to proceed. When it declines, the
// composition is untouched, resized is false, and discarded reports how
// many placements the truncation would have dropped.
func (c *Composition) Resize(newCapacity int, confirmDestructive func() bool) (discarded int, resized bool, err error) {
	if newCapacity < 1 {
		return 0, false, fmt.Errorf("%w: got %d", ErrInvalidCapacity, newCapacity)
	}
	if newCapacity == c.capacity {
		return 0, true, nil
	}
	if newCapacity > c.capacity {
		grown := make([]*Placement, newCapacity)
		copy(grown, c.slots)
		c.slots = grown
		c.capacity = newCapacity
		return 0, true, nil
	}

	doomed := 0
	for _, slot := range c.slots[newCapacity:] {
		if slot != nil {
			doomed++
		}
	}
	if doomed > 0 {
		if confirmDestructive == nil || !confirmDestructive() {
			return doomed, false, nil
		}
	}
	c.slots = c.slots[:newCapacity:newCapacity]
	c.capacity = newCapacity
	return doomed, true, nil
}

// Relocate moves the placement at source into target. An empty target
// receives the placement and the source empties; an occupied target swaps
// with the source. Source and target being equal is a no-op.
func (c *Composition) Relocate(source, target int) (RelocateOutcome, error) {
	if source < 0 || source >= c.capacity {
		return "", fmt.Errorf("%w: source %d, capacity %d", ErrIndexOutOfRange, source, c.capacity)
	}
	if target < 0 || target >= c.capacity {
		return "", fmt.Errorf("%w: target %d, capacity %d", ErrIndexOutOfRange, target, c.capacity)
	}
	if c.slots[source] == nil {
		return "", fmt.Errorf("%w: source %d", ErrEmptySlot, source)
	}
	if source == target {
		return RelocateUnchanged, nil
	}
	if c.slots[target] == nil {
		c.slots[target] = c.slots[source]
		c.slots[source] = nil
		return RelocateMoved, nil
	}
	c.slots[source], c.slots[target] = c.slots[target], c.slots[source]
	return RelocateSwapped, nil
}

// Clear empties every slot. The base selection is kept.
func (c *Composition) Clear() {
	for i := range c.slots {
		c.slots[i] = nil
	}
}

// Slots returns an ordered snapshot of every slot, empty ones included.
func (c *Composition) Slots() []Slot {
	out := make([]Slot, c.capacity)
	for i, slot := range c.slots {
		out[i] = Slot{Index: i}
		if slot != nil {
			dup := *slot
			out[i].Placement = &dup
		}
	}
	return out
}
