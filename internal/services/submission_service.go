package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stellare-shop/builder/internal/domain"
)

const submissionMetricNamespace = "github.com/stellare-shop/builder/internal/services"

var (
	errSubmissionBuilderRequired = errors.New("submission service: builder is required")
	errSubmissionCartRequired    = errors.New("submission service: cart gateway is required")
)

// ErrNoCharmsSelected indicates a submission attempt with a bare bracelet.
var ErrNoCharmsSelected = errors.New("submission service: no charms selected")

// ErrSubmissionFailed indicates the shop cart refused the composition.
var ErrSubmissionFailed = errors.New("submission service: cart submission failed")

type compositionSource interface {
	LineItems(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	BeginSubmit(ctx context.Context, sessionID string) error
	EndSubmit(ctx context.Context, sessionID string) error
}

type cartGateway interface {
	AddBatch(ctx context.Context, items []domain.LineItem) error
	AddSingle(ctx context.Context, item domain.LineItem) error
	ItemCount(ctx context.Context) (int, error)
}

// SubmissionServiceDeps wires the builder and the shop cart gateway.
type SubmissionServiceDeps struct {
	Builder       compositionSource
	Cart          cartGateway
	Logger        func(context.Context, string, map[string]any)
	Meter         metric.Meter
	RedirectPath  string
	RedirectDelay time.Duration
}

type submissionService struct {
	builder       compositionSource
	cart          cartGateway
	logger        func(context.Context, string, map[string]any)
	submissions   metric.Int64Counter
	redirectPath  string
	redirectDelay time.Duration
}

// NewSubmissionService constructs a SubmissionService enforcing dependency validation.
func NewSubmissionService(deps SubmissionServiceDeps) (SubmissionService, error) {
	if deps.Builder == nil {
		return nil, errSubmissionBuilderRequired
	}
	if deps.Cart == nil {
		return nil, errSubmissionCartRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	redirectPath := deps.RedirectPath
	if redirectPath == "" {
		redirectPath = "/cart"
	}
	redirectDelay := deps.RedirectDelay
	if redirectDelay <= 0 {
		redirectDelay = 1500 * time.Millisecond
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(submissionMetricNamespace)
	}
	submissions, metricErr := meter.Int64Counter(
		"builder.submissions",
		metric.WithDescription("Count of cart submission attempts by outcome"),
	)
	if metricErr != nil {
		logger(context.Background(), "submission.metric_unavailable", map[string]any{
			"error": metricErr.Error(),
		})
	}

	return &submissionService{
		builder:       deps.Builder,
		cart:          deps.Cart,
		logger:        logger,
		submissions:   submissions,
		redirectPath:  redirectPath,
		redirectDelay: redirectDelay,
	}, nil
}

// Submit flattens the composition into cart line items and pushes them into
// the shop cart. The batch endpoint is tried first; when it refuses, each
// item is added individually in composition order, aborting on the first
// rejection so the shopper sees a consistent partial cart at worst.
func (s *submissionService) Submit(ctx context.Context, sessionID string) (SubmissionResult, error) {
	if err := s.builder.BeginSubmit(ctx, sessionID); err != nil {
		return SubmissionResult{}, err
	}
	defer func() {
		if err := s.builder.EndSubmit(ctx, sessionID); err != nil {
			s.logger(ctx, "submission.end_failed", map[string]any{
				"sessionID": sessionID,
				"error":     err.Error(),
			})
		}
	}()

	items, err := s.builder.LineItems(ctx, sessionID)
	if err != nil {
		s.recordOutcome(ctx, "rejected")
		return SubmissionResult{}, err
	}
	if len(items) < 2 {
		s.recordOutcome(ctx, "rejected")
		return SubmissionResult{}, ErrNoCharmsSelected
	}

	if err := s.cart.AddBatch(ctx, items); err != nil {
		s.logger(ctx, "submission.batch_failed", map[string]any{
			"sessionID": sessionID,
			"items":     len(items),
			"error":     err.Error(),
		})
		if err := s.addIndividually(ctx, sessionID, items); err != nil {
			s.recordOutcome(ctx, "failed")
			return SubmissionResult{}, err
		}
	}

	result := SubmissionResult{
		ItemCount:     len(items),
		CartCount:     -1,
		RedirectURL:   s.redirectPath,
		RedirectDelay: s.redirectDelay,
	}
	if count, err := s.cart.ItemCount(ctx); err != nil {
		s.logger(ctx, "submission.count_unavailable", map[string]any{
			"sessionID": sessionID,
			"error":     err.Error(),
		})
	} else {
		result.CartCount = count
	}

	s.logger(ctx, "submission.completed", map[string]any{
		"sessionID": sessionID,
		"items":     len(items),
		"cartCount": result.CartCount,
	})
	s.recordOutcome(ctx, "completed")
	return result, nil
}

func (s *submissionService) recordOutcome(ctx context.Context, outcome string) {
	if s.submissions == nil {
		return
	}
	s.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CartCount reads the current shop cart size.
func (s *submissionService) CartCount(ctx context.Context) (int, error) {
	return s.cart.ItemCount(ctx)
}

func (s *submissionService) addIndividually(ctx context.Context, sessionID string, items []domain.LineItem) error {
	for i, item := range items {
		if err := s.cart.AddSingle(ctx, item); err != nil {
			s.logger(ctx, "submission.item_failed", map[string]any{
				"sessionID": sessionID,
				"position":  i,
				"variantID": item.VariantID,
				"error":     err.Error(),
			})
			return fmt.Errorf("%w: item %d of %d: %v", ErrSubmissionFailed, i+1, len(items), err)
		}
	}
	return nil
}
