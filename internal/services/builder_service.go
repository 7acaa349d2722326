package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/platform/money"
	"github.com/stellare-shop/builder/internal/repositories"
)

var (
	errBuilderSessionsRequired = errors.New("builder service: session repository is required")
	errBuilderCatalogRequired  = errors.New("builder service: catalog is required")
	errBuilderClockRequired    = errors.New("builder service: clock is required")
)

// ErrBuilderInvalidInput indicates the caller supplied invalid input.
var ErrBuilderInvalidInput = errors.New("builder service: invalid input")

// ErrSessionNotFound indicates the builder session does not exist or expired.
var ErrSessionNotFound = errors.New("builder service: session not found")

// ErrItemNotFound indicates the referenced catalog item is unknown.
var ErrItemNotFound = errors.New("builder service: catalog item not found")

// ErrNoBaseSelected indicates an operation that requires a bracelet selection.
var ErrNoBaseSelected = errors.New("builder service: no bracelet selected")

// ErrCompositionFull indicates every slot is occupied.
var ErrCompositionFull = errors.New("builder service: composition is full")

// ErrCapacityExceeded indicates a requested capacity above the configured maximum.
var ErrCapacityExceeded = errors.New("builder service: capacity exceeds maximum")

// ErrSubmitInFlight indicates the session is mid-submission and must not be mutated.
var ErrSubmitInFlight = errors.New("builder service: submission in flight")

// ErrConfirmationRequired indicates a destructive operation awaiting explicit confirmation.
var ErrConfirmationRequired = errors.New("builder service: confirmation required")

// ConfirmationRequiredError carries how many placements the declined
// operation would discard, so clients can phrase the prompt.
type ConfirmationRequiredError struct {
	WouldDiscard int
}

// Error implements the error interface.
func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%v: would discard %d placement(s)", ErrConfirmationRequired, e.WouldDiscard)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *ConfirmationRequiredError) Unwrap() error { return ErrConfirmationRequired }

type catalogFinder interface {
	FindBracelet(ctx context.Context, id int64) (domain.CatalogItem, error)
	FindCharm(ctx context.Context, id int64) (domain.CatalogItem, error)
}

// BuilderServiceDeps wires the session store and catalog lookups.
type BuilderServiceDeps struct {
	Sessions        repositories.SessionRepository
	Catalog         catalogFinder
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
	DefaultCapacity int
	MaxCapacity     int
	Currency        string
}

type builderService struct {
	sessions repositories.SessionRepository
	catalog  catalogFinder
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)

	defaultCapacity int
	maxCapacity     int
	currency        string

	locks sync.Map // session id -> *sync.Mutex
}

// NewBuilderService constructs a BuilderService enforcing dependency validation.
func NewBuilderService(deps BuilderServiceDeps) (BuilderService, error) {
	if deps.Sessions == nil {
		return nil, errBuilderSessionsRequired
	}
	if deps.Catalog == nil {
		return nil, errBuilderCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errBuilderClockRequired
	}

	defaultCapacity := deps.DefaultCapacity
	if defaultCapacity < 1 {
		defaultCapacity = 16
	}
	maxCapacity := deps.MaxCapacity
	if maxCapacity < defaultCapacity {
		maxCapacity = defaultCapacity
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "HNL"
	}
	if _, err := money.FormatMinor(0, currency); err != nil {
		return nil, fmt.Errorf("builder service: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &builderService{
		sessions:        deps.Sessions,
		catalog:         deps.Catalog,
		now:             func() time.Time { return deps.Clock().UTC() },
		newID:           idGen,
		logger:          logger,
		defaultCapacity: defaultCapacity,
		maxCapacity:     maxCapacity,
		currency:        currency,
	}, nil
}

// CreateSession opens a fresh session with an all-empty composition.
func (s *builderService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (SessionView, error) {
	capacity := cmd.Capacity
	if capacity == 0 {
		capacity = s.defaultCapacity
	}
	if capacity < 1 {
		return SessionView{}, fmt.Errorf("%w: capacity %d", ErrBuilderInvalidInput, capacity)
	}
	if capacity > s.maxCapacity {
		return SessionView{}, fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, capacity, s.maxCapacity)
	}

	composition, err := domain.NewComposition(capacity)
	if err != nil {
		return SessionView{}, fmt.Errorf("%w: %v", ErrBuilderInvalidInput, err)
	}

	now := s.now()
	session := &domain.Session{
		ID:          s.newID(),
		Composition: composition,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return SessionView{}, s.translateRepoError(err)
	}

	s.logger(ctx, "builder.session_created", map[string]any{
		"sessionID": session.ID,
		"capacity":  capacity,
	})
	return s.view(session), nil
}

// GetSession returns the current state of a session.
func (s *builderService) GetSession(ctx context.Context, sessionID string) (SessionView, error) {
	var view SessionView
	err := s.withSession(ctx, sessionID, false, func(session *domain.Session) error {
		view = s.view(session)
		return nil
	})
	return view, err
}

// DeleteSession discards the session.
func (s *builderService) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrBuilderInvalidInput
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return s.translateRepoError(err)
	}
	s.locks.Delete(sessionID)
	return nil
}

// SelectBase assigns the bracelet being customised. Placements survive a
// change of base.
func (s *builderService) SelectBase(ctx context.Context, cmd SelectBaseCommand) (SessionView, error) {
	if cmd.BraceletID == 0 {
		return SessionView{}, fmt.Errorf("%w: bracelet id is required", ErrBuilderInvalidInput)
	}
	item, err := s.catalog.FindBracelet(ctx, cmd.BraceletID)
	if err != nil {
		return SessionView{}, err
	}

	var view SessionView
	err = s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		session.Composition.SelectBase(item)
		view = s.view(session)
		return nil
	})
	return view, err
}

// Assign places a charm into the first empty slot, scanning left to right.
func (s *builderService) Assign(ctx context.Context, cmd AssignCommand) (SessionView, error) {
	item, err := s.lookupCharm(ctx, cmd.CharmID)
	if err != nil {
		return SessionView{}, err
	}

	var view SessionView
	err = s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		if _, ok := session.Composition.Base(); !ok {
			return ErrNoBaseSelected
		}
		index, ok := session.Composition.FirstEmpty()
		if !ok {
			return ErrCompositionFull
		}
		if err := session.Composition.Set(index, &domain.Placement{ID: s.newID(), Item: item}); err != nil {
			return err
		}
		view = s.view(session)
		return nil
	})
	return view, err
}

// AssignAt places a charm into a specific slot. Occupied targets are refused
// so a tap cannot silently overwrite an earlier choice.
func (s *builderService) AssignAt(ctx context.Context, cmd AssignAtCommand) (SessionView, error) {
	item, err := s.lookupCharm(ctx, cmd.CharmID)
	if err != nil {
		return SessionView{}, err
	}

	var view SessionView
	err = s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		if _, ok := session.Composition.Base(); !ok {
			return ErrNoBaseSelected
		}
		_, occupied, err := session.Composition.Get(cmd.Slot)
		if err != nil {
			return err
		}
		if occupied {
			return fmt.Errorf("%w: slot %d", domain.ErrSlotOccupied, cmd.Slot)
		}
		if err := session.Composition.Set(cmd.Slot, &domain.Placement{ID: s.newID(), Item: item}); err != nil {
			return err
		}
		view = s.view(session)
		return nil
	})
	return view, err
}

// RemoveAt empties the slot at the given index.
func (s *builderService) RemoveAt(ctx context.Context, cmd RemoveAtCommand) (SessionView, error) {
	var view SessionView
	err := s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		_, occupied, err := session.Composition.Get(cmd.Slot)
		if err != nil {
			return err
		}
		if !occupied {
			return fmt.Errorf("%w: slot %d", domain.ErrEmptySlot, cmd.Slot)
		}
		if err := session.Composition.Set(cmd.Slot, nil); err != nil {
			return err
		}
		view = s.view(session)
		return nil
	})
	return view, err
}

// RemovePlacement removes a placement by id wherever it sits.
func (s *builderService) RemovePlacement(ctx context.Context, cmd RemovePlacementCommand) (SessionView, error) {
	placementID := strings.TrimSpace(cmd.PlacementID)
	if placementID == "" {
		return SessionView{}, fmt.Errorf("%w: placement id is required", ErrBuilderInvalidInput)
	}

	var view SessionView
	err := s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		index, ok := session.Composition.FindPlacement(placementID)
		if !ok {
			return fmt.Errorf("%w: placement %s", ErrItemNotFound, placementID)
		}
		if err := session.Composition.Set(index, nil); err != nil {
			return err
		}
		view = s.view(session)
		return nil
	})
	return view, err
}

// Relocate moves or swaps a placement between slots.
func (s *builderService) Relocate(ctx context.Context, cmd RelocateCommand) (RelocateResult, error) {
	var result RelocateResult
	err := s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		outcome, err := session.Composition.Relocate(cmd.Source, cmd.Target)
		if err != nil {
			return err
		}
		result = RelocateResult{Outcome: outcome, Session: s.view(session)}
		return nil
	})
	return result, err
}

// Resize changes the slot capacity. Shrinking past occupied slots requires
// the command to be confirmed; a declined shrink reports how many placements
// would be lost.
func (s *builderService) Resize(ctx context.Context, cmd ResizeCommand) (SessionView, error) {
	if cmd.Capacity > s.maxCapacity {
		return SessionView{}, fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, cmd.Capacity, s.maxCapacity)
	}

	var view SessionView
	err := s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		confirm := func() bool { return cmd.Confirmed }
		discarded, resized, err := session.Composition.Resize(cmd.Capacity, confirm)
		if err != nil {
			return err
		}
		if !resized {
			return &ConfirmationRequiredError{WouldDiscard: discarded}
		}
		if discarded > 0 {
			s.logger(ctx, "builder.resize_discarded", map[string]any{
				"sessionID": session.ID,
				"discarded": discarded,
				"capacity":  cmd.Capacity,
			})
		}
		view = s.view(session)
		return nil
	})
	return view, err
}

// Clear empties every slot, keeping the base selection. Clearing a non-empty
// composition requires confirmation.
func (s *builderService) Clear(ctx context.Context, cmd ClearCommand) (SessionView, error) {
	var view SessionView
	err := s.withSession(ctx, cmd.SessionID, true, func(session *domain.Session) error {
		occupied := session.Composition.OccupiedCount()
		if occupied > 0 && !cmd.Confirmed {
			return &ConfirmationRequiredError{WouldDiscard: occupied}
		}
		session.Composition.Clear()
		view = s.view(session)
		return nil
	})
	return view, err
}

// Summary recomputes the running total for the session.
func (s *builderService) Summary(ctx context.Context, sessionID string) (SummaryView, error) {
	var view SummaryView
	err := s.withSession(ctx, sessionID, false, func(session *domain.Session) error {
		view = s.summaryView(session.Composition)
		return nil
	})
	return view, err
}

// LineItems flattens the composition into the cart payload.
func (s *builderService) LineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := s.withSession(ctx, sessionID, false, func(session *domain.Session) error {
		built, err := domain.BuildLineItems(session.Composition)
		if err != nil {
			if errors.Is(err, domain.ErrNoBase) {
				return ErrNoBaseSelected
			}
			return err
		}
		items = built
		return nil
	})
	return items, err
}

// BeginSubmit flags the session as mid-submission so concurrent submits and
// edits are refused until EndSubmit.
func (s *builderService) BeginSubmit(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, true, func(session *domain.Session) error {
		session.Submitting = true
		return nil
	})
}

// EndSubmit clears the in-flight flag regardless of the submission outcome.
func (s *builderService) EndSubmit(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrBuilderInvalidInput
	}
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return s.translateRepoError(err)
	}
	session.Submitting = false
	session.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// withSession serialises access to one session. Mutating calls are refused
// while a submission is in flight and bump UpdatedAt on success.
func (s *builderService) withSession(ctx context.Context, sessionID string, mutating bool, fn func(*domain.Session) error) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrBuilderInvalidInput)
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if mutating && session.Submitting {
		return ErrSubmitInFlight
	}

	if err := fn(session); err != nil {
		return err
	}
	if mutating {
		session.UpdatedAt = s.now()
		if err := s.sessions.Save(ctx, session); err != nil {
			return s.translateRepoError(err)
		}
	}
	return nil
}

func (s *builderService) lockFor(sessionID string) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (s *builderService) lookupCharm(ctx context.Context, charmID int64) (domain.CatalogItem, error) {
	if charmID == 0 {
		return domain.CatalogItem{}, fmt.Errorf("%w: charm id is required", ErrBuilderInvalidInput)
	}
	return s.catalog.FindCharm(ctx, charmID)
}

func (s *builderService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrSessionNotFound
		}
	}
	return err
}

func (s *builderService) view(session *domain.Session) SessionView {
	composition := session.Composition
	view := SessionView{
		ID:         session.ID,
		Capacity:   composition.Capacity(),
		Slots:      make([]SlotView, 0, composition.Capacity()),
		Summary:    s.summaryView(composition),
		Submitting: session.Submitting,
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
	}
	if base, ok := composition.Base(); ok {
		baseView := s.itemView(base)
		view.Base = &baseView
	}
	for _, slot := range composition.Slots() {
		slotView := SlotView{Index: slot.Index, Occupied: slot.Occupied()}
		if slot.Placement != nil {
			itemView := s.itemView(slot.Placement.Item)
			slotView.PlacementID = slot.Placement.ID
			slotView.Item = &itemView
		}
		view.Slots = append(view.Slots, slotView)
	}
	return view
}

func (s *builderService) summaryView(composition *domain.Composition) SummaryView {
	summary := domain.Summarize(composition)
	return SummaryView{
		TotalMinor:   summary.TotalMinor,
		TotalDisplay: s.formatPrice(summary.TotalMinor),
		Currency:     s.currency,
		ActiveCount:  summary.ActiveCount,
	}
}

func (s *builderService) itemView(item domain.CatalogItem) CatalogItemView {
	return newCatalogItemView(item, s.currency)
}

func (s *builderService) formatPrice(minor int64) string {
	return formatPriceMinor(minor, s.currency)
}
