package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
)

type stubComposition struct {
	lineItemsFunc   func(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	beginSubmitFunc func(ctx context.Context, sessionID string) error
	endSubmitFunc   func(ctx context.Context, sessionID string) error
}

func (s *stubComposition) LineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	return s.lineItemsFunc(ctx, sessionID)
}

func (s *stubComposition) BeginSubmit(ctx context.Context, sessionID string) error {
	if s.beginSubmitFunc == nil {
		return nil
	}
	return s.beginSubmitFunc(ctx, sessionID)
}

func (s *stubComposition) EndSubmit(ctx context.Context, sessionID string) error {
	if s.endSubmitFunc == nil {
		return nil
	}
	return s.endSubmitFunc(ctx, sessionID)
}

type stubCart struct {
	addBatchFunc  func(ctx context.Context, items []domain.LineItem) error
	addSingleFunc func(ctx context.Context, item domain.LineItem) error
	itemCountFunc func(ctx context.Context) (int, error)
}

func (s *stubCart) AddBatch(ctx context.Context, items []domain.LineItem) error {
	return s.addBatchFunc(ctx, items)
}

func (s *stubCart) AddSingle(ctx context.Context, item domain.LineItem) error {
	return s.addSingleFunc(ctx, item)
}

func (s *stubCart) ItemCount(ctx context.Context) (int, error) {
	if s.itemCountFunc == nil {
		return 0, nil
	}
	return s.itemCountFunc(ctx)
}

func submissionItems() []domain.LineItem {
	return []domain.LineItem{
		{VariantID: 1000, Quantity: 1, Properties: map[string]string{domain.PropertyCustomBracelet: "Yes"}},
		{VariantID: 10, Quantity: 1, Properties: map[string]string{domain.PropertyPosition: "1"}},
		{VariantID: 20, Quantity: 1, Properties: map[string]string{domain.PropertyPosition: "2"}},
	}
}

func newTestSubmission(t *testing.T, builder compositionSource, cart cartGateway) SubmissionService {
	t.Helper()
	service, err := NewSubmissionService(SubmissionServiceDeps{
		Builder: builder,
		Cart:    cart,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing submission service: %v", err)
	}
	return service
}

func TestSubmitBatchHappyPath(t *testing.T) {
	var batched []domain.LineItem
	var ended bool

	builder := &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return submissionItems(), nil
		},
		endSubmitFunc: func(_ context.Context, _ string) error {
			ended = true
			return nil
		},
	}
	cart := &stubCart{
		addBatchFunc: func(_ context.Context, items []domain.LineItem) error {
			batched = items
			return nil
		},
		addSingleFunc: func(_ context.Context, _ domain.LineItem) error {
			t.Fatal("single add must not be used when the batch succeeds")
			return nil
		},
		itemCountFunc: func(_ context.Context) (int, error) { return 5, nil },
	}

	result, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(batched) != 3 || batched[0].VariantID != 1000 {
		t.Fatalf("unexpected batch payload: %+v", batched)
	}
	if result.ItemCount != 3 || result.CartCount != 5 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.RedirectURL != "/cart" || result.RedirectDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected redirect defaults: %+v", result)
	}
	if !ended {
		t.Fatal("expected EndSubmit to run")
	}
}

func TestSubmitFallsBackToIndividualAdds(t *testing.T) {
	var singles []int64

	builder := &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return submissionItems(), nil
		},
	}
	cart := &stubCart{
		addBatchFunc: func(_ context.Context, _ []domain.LineItem) error {
			return errors.New("422 unprocessable")
		},
		addSingleFunc: func(_ context.Context, item domain.LineItem) error {
			singles = append(singles, item.VariantID)
			return nil
		},
		itemCountFunc: func(_ context.Context) (int, error) { return 3, nil },
	}

	result, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []int64{1000, 10, 20}
	if len(singles) != len(want) {
		t.Fatalf("expected %d individual adds, got %d", len(want), len(singles))
	}
	for i, id := range want {
		if singles[i] != id {
			t.Fatalf("expected composition order preserved, got %v", singles)
		}
	}
	if result.ItemCount != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSubmitAbortsOnFirstSingleFailure(t *testing.T) {
	var singles int
	var ended bool

	builder := &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return submissionItems(), nil
		},
		endSubmitFunc: func(_ context.Context, _ string) error {
			ended = true
			return nil
		},
	}
	cart := &stubCart{
		addBatchFunc: func(_ context.Context, _ []domain.LineItem) error {
			return errors.New("batch refused")
		},
		addSingleFunc: func(_ context.Context, _ domain.LineItem) error {
			singles++
			if singles == 2 {
				return errors.New("sold out")
			}
			return nil
		},
	}

	_, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if singles != 2 {
		t.Fatalf("expected abort after the failing item, got %d adds", singles)
	}
	if !ended {
		t.Fatal("expected EndSubmit to run despite the failure")
	}
}

func TestSubmitRequiresCharms(t *testing.T) {
	builder := &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return submissionItems()[:1], nil
		},
	}
	cart := &stubCart{
		addBatchFunc: func(_ context.Context, _ []domain.LineItem) error {
			t.Fatal("cart must not be touched without charms")
			return nil
		},
		addSingleFunc: func(_ context.Context, _ domain.LineItem) error { return nil },
	}

	if _, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1"); !errors.Is(err, ErrNoCharmsSelected) {
		t.Fatalf("expected ErrNoCharmsSelected, got %v", err)
	}
}

func TestSubmitPropagatesBuilderErrors(t *testing.T) {
	builder := &stubComposition{
		beginSubmitFunc: func(_ context.Context, _ string) error {
			return ErrSubmitInFlight
		},
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			t.Fatal("line items must not be read when begin fails")
			return nil, nil
		},
	}
	cart := &stubCart{
		addBatchFunc:  func(_ context.Context, _ []domain.LineItem) error { return nil },
		addSingleFunc: func(_ context.Context, _ domain.LineItem) error { return nil },
	}

	if _, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1"); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}

	builder = &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return nil, ErrNoBaseSelected
		},
	}
	if _, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1"); !errors.Is(err, ErrNoBaseSelected) {
		t.Fatalf("expected ErrNoBaseSelected, got %v", err)
	}
}

func TestSubmitCountFailureIsSoft(t *testing.T) {
	builder := &stubComposition{
		lineItemsFunc: func(_ context.Context, _ string) ([]domain.LineItem, error) {
			return submissionItems(), nil
		},
	}
	cart := &stubCart{
		addBatchFunc:  func(_ context.Context, _ []domain.LineItem) error { return nil },
		addSingleFunc: func(_ context.Context, _ domain.LineItem) error { return nil },
		itemCountFunc: func(_ context.Context) (int, error) { return 0, errors.New("timeout") },
	}

	result, err := newTestSubmission(t, builder, cart).Submit(context.Background(), "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CartCount != -1 {
		t.Fatalf("expected -1 cart count, got %d", result.CartCount)
	}
}
