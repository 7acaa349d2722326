package domain

import (
	"strings"
	"time"
)

// CatalogItem is a purchasable product normalised from the shop catalog.
// The same shape serves both bracelets (bases) and charms; bases simply
// carry no tags. Items are immutable once loaded.
type CatalogItem struct {
	ID          int64
	VariantID   int64
	Title       string
	PriceMinor  int64
	ImageURL    string
	Handle      string
	Tags        []string
	Available   bool
	Description string
}

// HasTag reports whether the item carries the given tag, case-insensitively.
func (i CatalogItem) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return true
	}
	for _, t := range i.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Placement records one physical occupancy of a slot by a charm. The ID is
// unique for the lifetime of the placement, so two slots holding the same
// catalog charm remain distinguishable.
type Placement struct {
	ID   string
	Item CatalogItem
}

// Slot is a read-only snapshot of one position in a composition.
type Slot struct {
	Index     int
	Placement *Placement
}

// Occupied reports whether the slot holds a placement.
func (s Slot) Occupied() bool { return s.Placement != nil }

// RelocateOutcome describes what a relocate operation did.
type RelocateOutcome string

const (
	// RelocateUnchanged means source and target were the same slot.
	RelocateUnchanged RelocateOutcome = "unchanged"
	// RelocateMoved means the placement moved into an empty target slot.
	RelocateMoved RelocateOutcome = "moved"
	// RelocateSwapped means source and target exchanged their placements.
	RelocateSwapped RelocateOutcome = "swapped"
)

// Session owns one composition for the lifetime of a builder page. It
// replaces the page-global builder object of the storefront script; the
// service layer serialises mutations per session.
type Session struct {
	ID          string
	Composition *Composition
	Submitting  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
