package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouterUnknownRouteEnvelope(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/v1/nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var envelope struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error != errorNotFoundCode || envelope.Status != http.StatusNotFound {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestRouterUnconfiguredGroupReportsNotImplemented(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/v1/catalog/bracelets")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestRouterMountsConfiguredGroups(t *testing.T) {
	var hits []string
	registrar := func(name string) RouteRegistrar {
		return func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
				hits = append(hits, name)
				w.WriteHeader(http.StatusOK)
			})
		}
	}

	router := NewRouter(
		WithCatalogRoutes(registrar("catalog")),
		WithSessionRoutes(registrar("sessions")),
		WithCartRoutes(registrar("cart")),
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	for _, group := range []string{"catalog", "sessions", "cart"} {
		resp, err := http.Get(server.URL + "/api/v1/" + group + "/ping")
		if err != nil {
			t.Fatalf("%s request: %v", group, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", group, resp.StatusCode)
		}
	}
	if len(hits) != 3 {
		t.Fatalf("expected all groups hit, got %v", hits)
	}
}
