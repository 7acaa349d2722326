package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stellare-shop/builder/internal/domain"
)

var (
	errCatalogLoaderRequired = errors.New("catalog service: loader is required")
	errCatalogClockRequired  = errors.New("catalog service: clock is required")
)

// ErrCatalogUnavailable indicates the catalog has not been loaded or the
// requested collection is empty because of a shop misconfiguration.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

type collectionLoader interface {
	LoadCollection(ctx context.Context, handle string) ([]domain.CatalogItem, error)
}

// CatalogServiceDeps wires the feed loader and collection handles.
type CatalogServiceDeps struct {
	Loader          collectionLoader
	BraceletsHandle string
	CharmsHandle    string
	Currency        string
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

type catalogService struct {
	loader          collectionLoader
	braceletsHandle string
	charmsHandle    string
	currency        string
	now             func() time.Time
	logger          func(context.Context, string, map[string]any)

	mu        sync.RWMutex
	loaded    bool
	loadedAt  time.Time
	bracelets []domain.CatalogItem
	charms    []domain.CatalogItem
	notices   []string
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Loader == nil {
		return nil, errCatalogLoaderRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	braceletsHandle := strings.TrimSpace(deps.BraceletsHandle)
	if braceletsHandle == "" {
		braceletsHandle = "pulseras"
	}
	charmsHandle := strings.TrimSpace(deps.CharmsHandle)
	if charmsHandle == "" {
		charmsHandle = "colgantes-y-dijes"
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "HNL"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		loader:          deps.Loader,
		braceletsHandle: braceletsHandle,
		charmsHandle:    charmsHandle,
		currency:        currency,
		now:             func() time.Time { return deps.Clock().UTC() },
		logger:          logger,
	}, nil
}

// Load fetches both collections concurrently. A collection that fails to
// load yields an empty listing plus a persistent setup notice rather than
// failing the whole catalog, so the builder still renders whatever half is
// healthy.
func (s *catalogService) Load(ctx context.Context) error {
	var (
		bracelets []domain.CatalogItem
		charms    []domain.CatalogItem
		noticeMu  sync.Mutex
		notices   []string
	)

	addNotice := func(role, handle string, err error) {
		noticeMu.Lock()
		defer noticeMu.Unlock()
		notices = append(notices, fmt.Sprintf("%s collection %q is missing or misconfigured", role, handle))
		s.logger(ctx, "catalog.collection_failed", map[string]any{
			"collection": handle,
			"error":      err.Error(),
		})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		items, err := s.loader.LoadCollection(groupCtx, s.braceletsHandle)
		if err != nil {
			addNotice("bracelets", s.braceletsHandle, err)
			return nil
		}
		bracelets = items
		return nil
	})
	group.Go(func() error {
		items, err := s.loader.LoadCollection(groupCtx, s.charmsHandle)
		if err != nil {
			addNotice("charms", s.charmsHandle, err)
			return nil
		}
		charms = items
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	sort.Strings(notices)

	s.mu.Lock()
	s.loaded = true
	s.loadedAt = s.now()
	s.bracelets = bracelets
	s.charms = charms
	s.notices = notices
	s.mu.Unlock()

	s.logger(ctx, "catalog.loaded", map[string]any{
		"bracelets": len(bracelets),
		"charms":    len(charms),
		"notices":   len(notices),
	})
	return nil
}

// Bracelets lists every purchasable base bracelet.
func (s *catalogService) Bracelets(_ context.Context) ([]CatalogItemView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, fmt.Errorf("%w: catalog not loaded", ErrCatalogUnavailable)
	}
	return s.viewsLocked(s.bracelets, ""), nil
}

// Charms lists the charm collection, optionally narrowed to a tag. The tag
// filter is a read-only view; it never changes what is already placed.
func (s *catalogService) Charms(_ context.Context, tag string) ([]CatalogItemView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, fmt.Errorf("%w: catalog not loaded", ErrCatalogUnavailable)
	}
	return s.viewsLocked(s.charms, tag), nil
}

// FindBracelet resolves a base bracelet by product id.
func (s *catalogService) FindBracelet(_ context.Context, id int64) (domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.bracelets, id)
}

// FindCharm resolves a charm by product id.
func (s *catalogService) FindCharm(_ context.Context, id int64) (domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.charms, id)
}

// Status reports load state and any persistent setup notices.
func (s *catalogService) Status(_ context.Context) CatalogStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return CatalogStatus{
		Loaded:        s.loaded,
		BraceletCount: len(s.bracelets),
		CharmCount:    len(s.charms),
		Notices:       append([]string(nil), s.notices...),
		LoadedAt:      s.loadedAt,
	}
}

func (s *catalogService) findLocked(items []domain.CatalogItem, id int64) (domain.CatalogItem, error) {
	if !s.loaded {
		return domain.CatalogItem{}, fmt.Errorf("%w: catalog not loaded", ErrCatalogUnavailable)
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.CatalogItem{}, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
}

func (s *catalogService) viewsLocked(items []domain.CatalogItem, tag string) []CatalogItemView {
	views := make([]CatalogItemView, 0, len(items))
	for _, item := range items {
		if !item.HasTag(tag) {
			continue
		}
		views = append(views, newCatalogItemView(item, s.currency))
	}
	return views
}
