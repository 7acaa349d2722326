// Package services contains the application services behind the bracelet
// builder API: catalog loading, composition editing, and cart submission.
package services

import (
	"context"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
)

// CatalogItemView is the read model for a catalog product exposed to clients.
type CatalogItemView struct {
	ID           int64    `json:"id"`
	VariantID    int64    `json:"variantId"`
	Title        string   `json:"title"`
	PriceMinor   int64    `json:"priceMinor"`
	PriceDisplay string   `json:"priceDisplay"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Handle       string   `json:"handle"`
	Tags         []string `json:"tags,omitempty"`
	Available    bool     `json:"available"`
	Description  string   `json:"description,omitempty"`
}

// SlotView is the read model for one position of a composition.
type SlotView struct {
	Index       int              `json:"index"`
	Occupied    bool             `json:"occupied"`
	PlacementID string           `json:"placementId,omitempty"`
	Item        *CatalogItemView `json:"item,omitempty"`
}

// SummaryView carries the live total for the current composition.
type SummaryView struct {
	TotalMinor   int64  `json:"totalMinor"`
	TotalDisplay string `json:"totalDisplay"`
	Currency     string `json:"currency"`
	ActiveCount  int    `json:"activeCount"`
}

// SessionView is the full read model of a builder session.
type SessionView struct {
	ID         string           `json:"id"`
	Capacity   int              `json:"capacity"`
	Base       *CatalogItemView `json:"base,omitempty"`
	Slots      []SlotView       `json:"slots"`
	Summary    SummaryView      `json:"summary"`
	Submitting bool             `json:"submitting"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// RelocateResult reports what a relocate did alongside the refreshed session.
type RelocateResult struct {
	Outcome domain.RelocateOutcome `json:"outcome"`
	Session SessionView            `json:"session"`
}

// SubmissionResult describes a completed cart submission and the redirect
// hints the storefront applies afterwards.
type SubmissionResult struct {
	ItemCount     int           `json:"itemCount"`
	CartCount     int           `json:"cartCount"`
	RedirectURL   string        `json:"redirectUrl"`
	RedirectDelay time.Duration `json:"-"`
}

// CatalogStatus reports whether the catalog is usable and any persistent
// setup problems detected while loading it.
type CatalogStatus struct {
	Loaded        bool      `json:"loaded"`
	BraceletCount int       `json:"braceletCount"`
	CharmCount    int       `json:"charmCount"`
	Notices       []string  `json:"notices,omitempty"`
	LoadedAt      time.Time `json:"loadedAt"`
}

// CreateSessionCommand opens a builder session. A zero capacity selects the
// configured default.
type CreateSessionCommand struct {
	Capacity int
}

// SelectBaseCommand picks the bracelet being customised.
type SelectBaseCommand struct {
	SessionID  string
	BraceletID int64
}

// AssignCommand places a charm into the first empty slot.
type AssignCommand struct {
	SessionID string
	CharmID   int64
}

// AssignAtCommand places a charm into a specific empty slot.
type AssignAtCommand struct {
	SessionID string
	CharmID   int64
	Slot      int
}

// RemoveAtCommand empties a specific slot.
type RemoveAtCommand struct {
	SessionID string
	Slot      int
}

// RemovePlacementCommand removes a placement wherever it currently sits.
type RemovePlacementCommand struct {
	SessionID   string
	PlacementID string
}

// RelocateCommand moves or swaps a placement between two slots.
type RelocateCommand struct {
	SessionID string
	Source    int
	Target    int
}

// ResizeCommand changes the slot capacity. Confirmed acknowledges that
// shrinking may discard placements.
type ResizeCommand struct {
	SessionID string
	Capacity  int
	Confirmed bool
}

// ClearCommand empties every slot. Confirmed acknowledges the loss when any
// slot is occupied.
type ClearCommand struct {
	SessionID string
	Confirmed bool
}

// BuilderService owns session lifecycle and composition editing.
type BuilderService interface {
	CreateSession(ctx context.Context, cmd CreateSessionCommand) (SessionView, error)
	GetSession(ctx context.Context, sessionID string) (SessionView, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SelectBase(ctx context.Context, cmd SelectBaseCommand) (SessionView, error)
	Assign(ctx context.Context, cmd AssignCommand) (SessionView, error)
	AssignAt(ctx context.Context, cmd AssignAtCommand) (SessionView, error)
	RemoveAt(ctx context.Context, cmd RemoveAtCommand) (SessionView, error)
	RemovePlacement(ctx context.Context, cmd RemovePlacementCommand) (SessionView, error)
	Relocate(ctx context.Context, cmd RelocateCommand) (RelocateResult, error)
	Resize(ctx context.Context, cmd ResizeCommand) (SessionView, error)
	Clear(ctx context.Context, cmd ClearCommand) (SessionView, error)
	Summary(ctx context.Context, sessionID string) (SummaryView, error)
	LineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	BeginSubmit(ctx context.Context, sessionID string) error
	EndSubmit(ctx context.Context, sessionID string) error
}

// CatalogService loads and serves the bracelet and charm catalogs.
type CatalogService interface {
	Load(ctx context.Context) error
	Bracelets(ctx context.Context) ([]CatalogItemView, error)
	Charms(ctx context.Context, tag string) ([]CatalogItemView, error)
	FindBracelet(ctx context.Context, id int64) (domain.CatalogItem, error)
	FindCharm(ctx context.Context, id int64) (domain.CatalogItem, error)
	Status(ctx context.Context) CatalogStatus
}

// SubmissionService pushes a finished composition into the shop cart.
type SubmissionService interface {
	Submit(ctx context.Context, sessionID string) (SubmissionResult, error)
	CartCount(ctx context.Context) (int, error)
}
