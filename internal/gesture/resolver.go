// Package gesture interprets pointer-drag and touch-drag event sequences
// reported by the storefront into discrete composition commands. The
// resolver never touches slot state itself; it only calls the builder
// service and reports the result.
package gesture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/services"
)

// DragThresholdPx is the movement delta, per axis, past which a touch
// stops being a tap and becomes a drag.
const DragThresholdPx = 10.0

// tapCooldown keeps the dragging flag raised briefly after a drag ends so
// the synthetic click that follows a touch release is not read as a tap.
const tapCooldown = 100 * time.Millisecond

var (
	errResolverEngineRequired = errors.New("gesture resolver: engine is required")
	errResolverClockRequired  = errors.New("gesture resolver: clock is required")
)

// ErrInvalidPayload indicates a malformed drag payload.
var ErrInvalidPayload = errors.New("gesture resolver: invalid payload")

// ErrNoActiveGesture indicates a move or release without a preceding start.
var ErrNoActiveGesture = errors.New("gesture resolver: no active gesture")

// PayloadKind discriminates what a drag carries.
type PayloadKind string

const (
	// NewFromLibrary drags a charm out of the accessory library.
	NewFromLibrary PayloadKind = "new_from_library"
	// RelocateExisting drags a placement already on the bracelet.
	RelocateExisting PayloadKind = "relocate_existing"
)

// Payload describes what is being dragged. It lives only between
// gesture start and gesture end.
type Payload struct {
	Kind        PayloadKind `json:"kind"`
	CharmID     int64       `json:"charmId,omitempty"`
	SourceIndex int         `json:"sourceIndex,omitempty"`
}

func (p Payload) validate() error {
	switch p.Kind {
	case NewFromLibrary:
		if p.CharmID == 0 {
			return fmt.Errorf("%w: charm id is required", ErrInvalidPayload)
		}
	case RelocateExisting:
		if p.SourceIndex < 0 {
			return fmt.Errorf("%w: source index %d", ErrInvalidPayload, p.SourceIndex)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidPayload, p.Kind)
	}
	return nil
}

// Point is a coordinate in device-independent pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned region of the storefront layout.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Region is one node of the layout tree the client reports for hit
// testing. Slot is -1 for purely structural nodes; a release landing in
// a structural node resolves to the nearest ancestor that is a slot.
type Region struct {
	Bounds   Rect     `json:"bounds"`
	Slot     int      `json:"slot"`
	Children []Region `json:"children,omitempty"`
}

// HitTest resolves a point to a slot index by descending into the
// deepest containing region and walking back up to the nearest slot.
func (r Region) HitTest(p Point) (int, bool) {
	if !r.Bounds.contains(p) {
		return 0, false
	}
	for _, child := range r.Children {
		if slot, ok := child.HitTest(p); ok {
			return slot, true
		}
	}
	if r.Slot >= 0 {
		return r.Slot, true
	}
	return 0, false
}

// OutcomeKind classifies how a gesture resolved.
type OutcomeKind string

const (
	// OutcomeTap means the touch never crossed the drag threshold; the
	// caller's tap handler owns it.
	OutcomeTap OutcomeKind = "tap"
	// OutcomeAssigned means a library charm landed in a slot.
	OutcomeAssigned OutcomeKind = "assigned"
	// OutcomeMoved means a placement moved to an empty slot.
	OutcomeMoved OutcomeKind = "moved"
	// OutcomeSwapped means two placements exchanged slots.
	OutcomeSwapped OutcomeKind = "swapped"
	// OutcomeIgnored means the release landed outside any slot.
	OutcomeIgnored OutcomeKind = "ignored"
	// OutcomeRejected means the engine refused the command; Message
	// carries the user-facing reason and state is unchanged.
	OutcomeRejected OutcomeKind = "rejected"
)

// Outcome reports the result of a completed gesture.
type Outcome struct {
	Kind    OutcomeKind          `json:"kind"`
	Session services.SessionView `json:"session"`
	Message string               `json:"message,omitempty"`
}

type compositionEngine interface {
	AssignAt(ctx context.Context, cmd services.AssignAtCommand) (services.SessionView, error)
	Relocate(ctx context.Context, cmd services.RelocateCommand) (services.RelocateResult, error)
}

type phase int

const (
	phaseIdle phase = iota
	phaseArmed
	phaseDragging
)

type gestureState struct {
	phase       phase
	origin      Point
	payload     Payload
	lastDragEnd time.Time
}

// ResolverDeps wires the composition engine and clock.
type ResolverDeps struct {
	Engine      compositionEngine
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	ThresholdPx float64
	Cooldown    time.Duration
}

// Resolver tracks one in-flight gesture per session.
type Resolver struct {
	engine    compositionEngine
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	threshold float64
	cooldown  time.Duration

	mu       sync.Mutex
	gestures map[string]*gestureState
}

// NewResolver constructs a Resolver enforcing dependency validation.
func NewResolver(deps ResolverDeps) (*Resolver, error) {
	if deps.Engine == nil {
		return nil, errResolverEngineRequired
	}
	if deps.Clock == nil {
		return nil, errResolverClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	threshold := deps.ThresholdPx
	if threshold <= 0 {
		threshold = DragThresholdPx
	}
	cooldown := deps.Cooldown
	if cooldown <= 0 {
		cooldown = tapCooldown
	}

	return &Resolver{
		engine:    deps.Engine,
		now:       deps.Clock,
		logger:    logger,
		threshold: threshold,
		cooldown:  cooldown,
		gestures:  make(map[string]*gestureState),
	}, nil
}

// TouchStart arms a gesture at the given origin.
func (r *Resolver) TouchStart(sessionID string, payload Payload, origin Point) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidPayload)
	}
	if err := payload.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.stateLocked(sessionID)
	state.phase = phaseArmed
	state.origin = origin
	state.payload = payload
	return nil
}

// TouchMove feeds a movement sample. It reports whether the gesture is
// now a drag; while it returns false the underlying tap handler may
// still fire.
func (r *Resolver) TouchMove(sessionID string, p Point) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.gestures[sessionID]
	if !ok || state.phase == phaseIdle {
		return false, ErrNoActiveGesture
	}
	if state.phase == phaseDragging {
		return true, nil
	}
	if exceeds(state.origin, p, r.threshold) {
		state.phase = phaseDragging
	}
	return state.phase == phaseDragging, nil
}

// TouchEnd completes a touch gesture at the release point. A release
// that never crossed the threshold resolves as a tap and is not routed
// to the engine; a drag release is hit-tested against the layout and
// dispatched exactly like a pointer drop.
func (r *Resolver) TouchEnd(ctx context.Context, sessionID string, release Point, layout Region) (Outcome, error) {
	r.mu.Lock()
	state, ok := r.gestures[sessionID]
	if !ok || state.phase == phaseIdle {
		r.mu.Unlock()
		return Outcome{}, ErrNoActiveGesture
	}
	payload := state.payload
	wasDragging := state.phase == phaseDragging || exceeds(state.origin, release, r.threshold)
	state.phase = phaseIdle
	if wasDragging {
		state.lastDragEnd = r.now()
	}
	r.mu.Unlock()

	if !wasDragging {
		return Outcome{Kind: OutcomeTap}, nil
	}

	slot, ok := layout.HitTest(release)
	if !ok {
		return Outcome{Kind: OutcomeIgnored}, nil
	}
	return r.dispatch(ctx, sessionID, payload, slot), nil
}

// PointerDrop resolves a pointer-based drag released over a slot.
func (r *Resolver) PointerDrop(ctx context.Context, sessionID string, payload Payload, slot int) (Outcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Outcome{}, fmt.Errorf("%w: session id is required", ErrInvalidPayload)
	}
	if err := payload.validate(); err != nil {
		return Outcome{}, err
	}
	return r.dispatch(ctx, sessionID, payload, slot), nil
}

// PointerDropOutside resolves a pointer drag released outside any slot.
func (r *Resolver) PointerDropOutside(sessionID string, payload Payload) (Outcome, error) {
	if err := payload.validate(); err != nil {
		return Outcome{}, err
	}
	_ = sessionID
	return Outcome{Kind: OutcomeIgnored}, nil
}

// IsDragging reports whether tap handlers must stay suppressed for the
// session: during a drag, and for a short cooldown after one ends.
func (r *Resolver) IsDragging(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.gestures[sessionID]
	if !ok {
		return false
	}
	if state.phase == phaseDragging {
		return true
	}
	if state.lastDragEnd.IsZero() {
		return false
	}
	return r.now().Sub(state.lastDragEnd) < r.cooldown
}

func (r *Resolver) dispatch(ctx context.Context, sessionID string, payload Payload, slot int) Outcome {
	switch payload.Kind {
	case NewFromLibrary:
		view, err := r.engine.AssignAt(ctx, services.AssignAtCommand{
			SessionID: sessionID,
			CharmID:   payload.CharmID,
			Slot:      slot,
		})
		if err != nil {
			return r.rejected(ctx, sessionID, payload, err)
		}
		return Outcome{Kind: OutcomeAssigned, Session: view}
	case RelocateExisting:
		result, err := r.engine.Relocate(ctx, services.RelocateCommand{
			SessionID: sessionID,
			Source:    payload.SourceIndex,
			Target:    slot,
		})
		if err != nil {
			return r.rejected(ctx, sessionID, payload, err)
		}
		kind := OutcomeMoved
		switch result.Outcome {
		case domain.RelocateSwapped:
			kind = OutcomeSwapped
		case domain.RelocateUnchanged:
			kind = OutcomeIgnored
		}
		return Outcome{Kind: kind, Session: result.Session}
	}
	return Outcome{Kind: OutcomeIgnored}
}

func (r *Resolver) rejected(ctx context.Context, sessionID string, payload Payload, err error) Outcome {
	r.logger(ctx, "gesture.rejected", map[string]any{
		"sessionID": sessionID,
		"kind":      string(payload.Kind),
		"error":     err.Error(),
	})
	return Outcome{Kind: OutcomeRejected, Message: err.Error()}
}

// Forget drops any gesture state held for a session. Called when the
// session itself is deleted.
func (r *Resolver) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gestures, sessionID)
}

func (r *Resolver) stateLocked(sessionID string) *gestureState {
	state, ok := r.gestures[sessionID]
	if !ok {
		state = &gestureState{}
		r.gestures[sessionID] = state
	}
	return state
}

func exceeds(origin, p Point, threshold float64) bool {
	dx := p.X - origin.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - origin.Y
	if dy < 0 {
		dy = -dy
	}
	return dx > threshold || dy > threshold
}
