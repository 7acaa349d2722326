package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/services"
)

type stubCatalogService struct {
	braceletsFunc func(ctx context.Context) ([]services.CatalogItemView, error)
	charmsFunc    func(ctx context.Context, tag string) ([]services.CatalogItemView, error)
	statusFunc    func(ctx context.Context) services.CatalogStatus
}

func (s *stubCatalogService) Load(context.Context) error { return nil }

func (s *stubCatalogService) Bracelets(ctx context.Context) ([]services.CatalogItemView, error) {
	if s.braceletsFunc == nil {
		return nil, nil
	}
	return s.braceletsFunc(ctx)
}

func (s *stubCatalogService) Charms(ctx context.Context, tag string) ([]services.CatalogItemView, error) {
	if s.charmsFunc == nil {
		return nil, nil
	}
	return s.charmsFunc(ctx, tag)
}

func (s *stubCatalogService) FindBracelet(context.Context, int64) (domain.CatalogItem, error) {
	return domain.CatalogItem{}, nil
}

func (s *stubCatalogService) FindCharm(context.Context, int64) (domain.CatalogItem, error) {
	return domain.CatalogItem{}, nil
}

func (s *stubCatalogService) Status(ctx context.Context) services.CatalogStatus {
	if s.statusFunc == nil {
		return services.CatalogStatus{}
	}
	return s.statusFunc(ctx)
}

func newCatalogServer(t *testing.T, catalog services.CatalogService) *httptest.Server {
	t.Helper()
	h := NewCatalogHandlers(catalog)
	router := NewRouter(WithCatalogRoutes(h.Routes))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func charmViews(n int) []services.CatalogItemView {
	views := make([]services.CatalogItemView, 0, n)
	for i := 0; i < n; i++ {
		views = append(views, services.CatalogItemView{ID: int64(i + 1), Title: "Charm"})
	}
	return views
}

func TestListCharmsPaginates(t *testing.T) {
	catalog := &stubCatalogService{
		charmsFunc: func(_ context.Context, _ string) ([]services.CatalogItemView, error) {
			return charmViews(3), nil
		},
	}
	server := newCatalogServer(t, catalog)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/catalog/charms?pageSize=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var page catalogListResponse
	decodeBody(t, resp, &page)
	if len(page.Items) != 2 || page.Items[0].ID != 1 {
		t.Fatalf("unexpected first page: %+v", page.Items)
	}
	if page.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/catalog/charms?pageSize=2&pageToken="+page.NextPageToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var second catalogListResponse
	decodeBody(t, resp, &second)
	if len(second.Items) != 1 || second.Items[0].ID != 3 {
		t.Fatalf("unexpected second page: %+v", second.Items)
	}
	if second.NextPageToken != "" {
		t.Fatalf("expected no further pages, got token %q", second.NextPageToken)
	}
}

func TestListCharmsPassesTagThrough(t *testing.T) {
	var gotTag string
	catalog := &stubCatalogService{
		charmsFunc: func(_ context.Context, tag string) ([]services.CatalogItemView, error) {
			gotTag = tag
			return nil, nil
		},
	}
	server := newCatalogServer(t, catalog)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/catalog/charms?tag=celestial", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotTag != "celestial" {
		t.Fatalf("expected tag forwarded, got %q", gotTag)
	}
}

func TestListBraceletsUnavailable(t *testing.T) {
	catalog := &stubCatalogService{
		braceletsFunc: func(_ context.Context) ([]services.CatalogItemView, error) {
			return nil, services.ErrCatalogUnavailable
		},
	}
	server := newCatalogServer(t, catalog)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/catalog/bracelets", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &envelope)
	if envelope.Error != "catalog_unavailable" {
		t.Fatalf("unexpected error code %q", envelope.Error)
	}
}

func TestCatalogStatusEndpoint(t *testing.T) {
	loadedAt := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		statusFunc: func(_ context.Context) services.CatalogStatus {
			return services.CatalogStatus{
				Loaded:        true,
				BraceletCount: 4,
				CharmCount:    12,
				Notices:       []string{"charms collection \"colgantes-y-dijes\" is missing or misconfigured"},
				LoadedAt:      loadedAt,
			}
		},
	}
	server := newCatalogServer(t, catalog)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/catalog/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["loaded"] != true {
		t.Fatalf("expected loaded true, got %v", body["loaded"])
	}
	if body["braceletCount"].(float64) != 4 || body["charmCount"].(float64) != 12 {
		t.Fatalf("unexpected counts: %v", body)
	}
	if body["loadedAt"] != "2024-06-01T10:00:00Z" {
		t.Fatalf("unexpected loadedAt: %v", body["loadedAt"])
	}
	notices, ok := body["notices"].([]any)
	if !ok || len(notices) != 1 {
		t.Fatalf("expected one notice, got %v", body["notices"])
	}
}

func TestCartCountEndpoint(t *testing.T) {
	submissions := &stubSubmissionService{
		countFunc: func(_ context.Context) (int, error) { return 7, nil },
	}
	h := NewCartHandlers(submissions)
	router := NewRouter(WithCartRoutes(h.Routes))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/cart/count", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload cartCountResponse
	decodeBody(t, resp, &payload)
	if payload.Count != 7 {
		t.Fatalf("expected count 7, got %d", payload.Count)
	}
}
