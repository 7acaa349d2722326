package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
)

var testNow = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

type stubSessionRepo struct {
	sessions map[string]*domain.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*domain.Session)}
}

type stubRepoError struct {
	notFound bool
	conflict bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return false }

func (r *stubSessionRepo) Create(_ context.Context, session *domain.Session) error {
	if _, ok := r.sessions[session.ID]; ok {
		return &stubRepoError{conflict: true}
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, &stubRepoError{notFound: true}
	}
	return session, nil
}

func (r *stubSessionRepo) Save(_ context.Context, session *domain.Session) error {
	if _, ok := r.sessions[session.ID]; !ok {
		return &stubRepoError{notFound: true}
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *stubSessionRepo) Delete(_ context.Context, sessionID string) error {
	delete(r.sessions, sessionID)
	return nil
}

func (r *stubSessionRepo) CleanupExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

type stubCatalogFinder struct {
	bracelets map[int64]domain.CatalogItem
	charms    map[int64]domain.CatalogItem
}

func (c *stubCatalogFinder) FindBracelet(_ context.Context, id int64) (domain.CatalogItem, error) {
	item, ok := c.bracelets[id]
	if !ok {
		return domain.CatalogItem{}, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}
	return item, nil
}

func (c *stubCatalogFinder) FindCharm(_ context.Context, id int64) (domain.CatalogItem, error) {
	item, ok := c.charms[id]
	if !ok {
		return domain.CatalogItem{}, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
	}
	return item, nil
}

func testCatalogFinder() *stubCatalogFinder {
	return &stubCatalogFinder{
		bracelets: map[int64]domain.CatalogItem{
			100: {ID: 100, VariantID: 1000, Title: "Classic Gold", PriceMinor: 10000, Available: true},
			200: {ID: 200, VariantID: 2000, Title: "Sleek Silver", PriceMinor: 8000, Available: true},
		},
		charms: map[int64]domain.CatalogItem{
			1: {ID: 1, VariantID: 10, Title: "A", PriceMinor: 2000, Available: true},
			2: {ID: 2, VariantID: 20, Title: "B", PriceMinor: 1500, Available: true},
			3: {ID: 3, VariantID: 30, Title: "C", PriceMinor: 1000, Available: true},
		},
	}
}

func newTestBuilder(t *testing.T) (BuilderService, *stubSessionRepo) {
	t.Helper()
	repo := newStubSessionRepo()
	counter := 0
	service, err := NewBuilderService(BuilderServiceDeps{
		Sessions: repo,
		Catalog:  testCatalogFinder(),
		Clock:    func() time.Time { return testNow },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		},
		DefaultCapacity: 3,
		MaxCapacity:     6,
		Currency:        "HNL",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing builder service: %v", err)
	}
	return service, repo
}

func createSession(t *testing.T, service BuilderService, capacity int) SessionView {
	t.Helper()
	view, err := service.CreateSession(context.Background(), CreateSessionCommand{Capacity: capacity})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return view
}

func createSessionWithBase(t *testing.T, service BuilderService, capacity int) SessionView {
	t.Helper()
	view := createSession(t, service, capacity)
	view, err := service.SelectBase(context.Background(), SelectBaseCommand{SessionID: view.ID, BraceletID: 100})
	if err != nil {
		t.Fatalf("select base: %v", err)
	}
	return view
}

func TestCreateSessionDefaults(t *testing.T) {
	service, _ := newTestBuilder(t)
	view := createSession(t, service, 0)

	if view.Capacity != 3 {
		t.Fatalf("expected default capacity 3, got %d", view.Capacity)
	}
	if len(view.Slots) != 3 {
		t.Fatalf("expected 3 slot views, got %d", len(view.Slots))
	}
	for _, slot := range view.Slots {
		if slot.Occupied {
			t.Fatalf("slot %d occupied on a fresh session", slot.Index)
		}
	}
	if view.Summary.TotalMinor != 0 || view.Summary.ActiveCount != 0 {
		t.Fatalf("expected zero summary, got %+v", view.Summary)
	}
	if view.Summary.Currency != "HNL" {
		t.Fatalf("expected HNL, got %q", view.Summary.Currency)
	}
}

func TestCreateSessionRejectsOversizedCapacity(t *testing.T) {
	service, _ := newTestBuilder(t)
	if _, err := service.CreateSession(context.Background(), CreateSessionCommand{Capacity: 7}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := service.CreateSession(context.Background(), CreateSessionCommand{Capacity: -1}); !errors.Is(err, ErrBuilderInvalidInput) {
		t.Fatalf("expected ErrBuilderInvalidInput, got %v", err)
	}
}

func TestGetSessionUnknown(t *testing.T) {
	service, _ := newTestBuilder(t)
	if _, err := service.GetSession(context.Background(), "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAssignRequiresBase(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSession(t, service, 3)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); !errors.Is(err, ErrNoBaseSelected) {
		t.Fatalf("expected ErrNoBaseSelected, got %v", err)
	}
	if _, err := service.AssignAt(ctx, AssignAtCommand{SessionID: session.ID, CharmID: 1, Slot: 0}); !errors.Is(err, ErrNoBaseSelected) {
		t.Fatalf("expected ErrNoBaseSelected, got %v", err)
	}
}

func TestAssignFillsFirstEmptySlot(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	view, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !view.Slots[0].Occupied || view.Slots[0].Item.ID != 1 {
		t.Fatalf("expected charm in slot 0, got %+v", view.Slots[0])
	}

	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 2}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := service.RemoveAt(ctx, RemoveAtCommand{SessionID: session.ID, Slot: 0}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	view, err = service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 3})
	if err != nil {
		t.Fatalf("assign after removal: %v", err)
	}
	if view.Slots[0].Item == nil || view.Slots[0].Item.ID != 3 {
		t.Fatalf("expected freed slot reused first, got %+v", view.Slots[0])
	}
}

func TestAssignFullComposition(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: id}); err != nil {
			t.Fatalf("assign %d: %v", id, err)
		}
	}
	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); !errors.Is(err, ErrCompositionFull) {
		t.Fatalf("expected ErrCompositionFull, got %v", err)
	}
}

func TestAssignAtRefusesOccupiedSlot(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	if _, err := service.AssignAt(ctx, AssignAtCommand{SessionID: session.ID, CharmID: 1, Slot: 1}); err != nil {
		t.Fatalf("assign at: %v", err)
	}
	if _, err := service.AssignAt(ctx, AssignAtCommand{SessionID: session.ID, CharmID: 2, Slot: 1}); !errors.Is(err, domain.ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
	if _, err := service.AssignAt(ctx, AssignAtCommand{SessionID: session.ID, CharmID: 2, Slot: 9}); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestRemoveAtEmptySlot(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSession(t, service, 3)
	if _, err := service.RemoveAt(context.Background(), RemoveAtCommand{SessionID: session.ID, Slot: 0}); !errors.Is(err, domain.ErrEmptySlot) {
		t.Fatalf("expected ErrEmptySlot, got %v", err)
	}
}

func TestRemovePlacementByID(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	view, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	placementID := view.Slots[0].PlacementID

	view, err = service.RemovePlacement(ctx, RemovePlacementCommand{SessionID: session.ID, PlacementID: placementID})
	if err != nil {
		t.Fatalf("remove placement: %v", err)
	}
	if view.Slots[0].Occupied {
		t.Fatal("expected slot 0 emptied")
	}

	// Re-assigning an equal charm stamps a fresh placement id.
	view, err = service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1})
	if err != nil {
		t.Fatalf("assign again: %v", err)
	}
	if view.Slots[0].PlacementID == placementID {
		t.Fatal("expected a new placement id after remove and re-assign")
	}

	if _, err := service.RemovePlacement(ctx, RemovePlacementCommand{SessionID: session.ID, PlacementID: "ghost"}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestSelectBaseKeepsPlacements(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	view, err := service.SelectBase(ctx, SelectBaseCommand{SessionID: session.ID, BraceletID: 200})
	if err != nil {
		t.Fatalf("select base: %v", err)
	}
	if view.Base == nil || view.Base.Title != "Sleek Silver" {
		t.Fatalf("unexpected base: %+v", view.Base)
	}
	if !view.Slots[0].Occupied {
		t.Fatal("changing the base must keep placements")
	}

	if _, err := service.SelectBase(ctx, SelectBaseCommand{SessionID: session.ID, BraceletID: 999}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestRelocateMoveAndSwap(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 2}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	result, err := service.Relocate(ctx, RelocateCommand{SessionID: session.ID, Source: 0, Target: 2})
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if result.Outcome != domain.RelocateMoved {
		t.Fatalf("expected moved, got %s", result.Outcome)
	}
	if result.Session.Slots[0].Occupied || result.Session.Slots[2].Item.ID != 1 {
		t.Fatalf("unexpected slots after move: %+v", result.Session.Slots)
	}

	result, err = service.Relocate(ctx, RelocateCommand{SessionID: session.ID, Source: 1, Target: 2})
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if result.Outcome != domain.RelocateSwapped {
		t.Fatalf("expected swapped, got %s", result.Outcome)
	}
	if result.Session.Slots[1].Item.ID != 1 || result.Session.Slots[2].Item.ID != 2 {
		t.Fatalf("unexpected slots after swap: %+v", result.Session.Slots)
	}
}

func TestResizeConfirmationFlow(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 2)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: id}); err != nil {
			t.Fatalf("assign %d: %v", id, err)
		}
	}

	_, err := service.Resize(ctx, ResizeCommand{SessionID: session.ID, Capacity: 1})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	var confirmErr *ConfirmationRequiredError
	if !errors.As(err, &confirmErr) || confirmErr.WouldDiscard != 1 {
		t.Fatalf("expected 1 doomed placement, got %v", err)
	}

	view, err := service.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if view.Capacity != 2 || view.Summary.ActiveCount != 2 {
		t.Fatalf("declined resize must not change the session: %+v", view)
	}

	view, err = service.Resize(ctx, ResizeCommand{SessionID: session.ID, Capacity: 1, Confirmed: true})
	if err != nil {
		t.Fatalf("confirmed resize: %v", err)
	}
	if view.Capacity != 1 || view.Summary.ActiveCount != 1 {
		t.Fatalf("expected truncation to 1 slot, got %+v", view)
	}
	if view.Slots[0].Item.ID != 1 {
		t.Fatalf("expected surviving placement in slot 0, got %+v", view.Slots[0])
	}

	if _, err := service.Resize(ctx, ResizeCommand{SessionID: session.ID, Capacity: 10}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestClearConfirmationFlow(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := service.Clear(ctx, ClearCommand{SessionID: session.ID})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}

	view, err := service.Clear(ctx, ClearCommand{SessionID: session.ID, Confirmed: true})
	if err != nil {
		t.Fatalf("confirmed clear: %v", err)
	}
	if view.Summary.ActiveCount != 0 {
		t.Fatalf("expected empty composition, got %+v", view.Summary)
	}
	if view.Base == nil {
		t.Fatal("clear must keep the base selection")
	}

	// Clearing an already empty composition needs no confirmation.
	if _, err := service.Clear(ctx, ClearCommand{SessionID: session.ID}); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
}

func TestSummaryWorkedExample(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: id}); err != nil {
			t.Fatalf("assign %d: %v", id, err)
		}
	}
	if _, err := service.Relocate(ctx, RelocateCommand{SessionID: session.ID, Source: 0, Target: 2}); err != nil {
		t.Fatalf("relocate: %v", err)
	}

	summary, err := service.Summary(ctx, session.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalMinor != 13500 || summary.ActiveCount != 2 {
		t.Fatalf("expected 13500/2, got %+v", summary)
	}
	if !strings.Contains(summary.TotalDisplay, "135.00") {
		t.Fatalf("expected formatted total, got %q", summary.TotalDisplay)
	}

	again, err := service.Summary(ctx, session.ID)
	if err != nil {
		t.Fatalf("summary again: %v", err)
	}
	if again != summary {
		t.Fatalf("summary changed without a mutation: %+v vs %+v", again, summary)
	}

	items, err := service.LineItems(ctx, session.ID)
	if err != nil {
		t.Fatalf("line items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 line items, got %d", len(items))
	}
	if items[0].VariantID != 1000 {
		t.Fatalf("expected base first, got %+v", items[0])
	}
	if items[1].VariantID != 20 || items[1].Properties[domain.PropertyPosition] != "2" {
		t.Fatalf("expected charm B at position 2, got %+v", items[1])
	}
	if items[2].VariantID != 10 || items[2].Properties[domain.PropertyPosition] != "3" {
		t.Fatalf("expected charm A at position 3, got %+v", items[2])
	}
}

func TestLineItemsWithoutBase(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSession(t, service, 3)
	if _, err := service.LineItems(context.Background(), session.ID); !errors.Is(err, ErrNoBaseSelected) {
		t.Fatalf("expected ErrNoBaseSelected, got %v", err)
	}
}

func TestSubmitGuardBlocksMutations(t *testing.T) {
	service, _ := newTestBuilder(t)
	session := createSessionWithBase(t, service, 3)
	ctx := context.Background()

	if err := service.BeginSubmit(ctx, session.ID); err != nil {
		t.Fatalf("begin submit: %v", err)
	}
	if err := service.BeginSubmit(ctx, session.ID); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected mutation refused, got %v", err)
	}

	if err := service.EndSubmit(ctx, session.ID); err != nil {
		t.Fatalf("end submit: %v", err)
	}
	if _, err := service.Assign(ctx, AssignCommand{SessionID: session.ID, CharmID: 1}); err != nil {
		t.Fatalf("assign after end submit: %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	service, repo := newTestBuilder(t)
	session := createSession(t, service, 3)
	ctx := context.Background()

	if err := service.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.sessions[session.ID]; ok {
		t.Fatal("expected session removed from repository")
	}
	if _, err := service.GetSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
