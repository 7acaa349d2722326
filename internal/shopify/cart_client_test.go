package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellare-shop/builder/internal/domain"
)

func newTestCartClient(t *testing.T, baseURL string) *CartClient {
	t.Helper()
	client, err := NewCartClient(CartClientConfig{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("new cart client: %v", err)
	}
	return client
}

func TestAddBatchPostsItemsArray(t *testing.T) {
	var received cartBatchPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cart/add.js" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestCartClient(t, server.URL)
	items := []domain.LineItem{
		{VariantID: 1000, Quantity: 1, Properties: map[string]string{domain.PropertyCustomBracelet: "Yes"}},
		{VariantID: 20, Quantity: 1, Properties: map[string]string{domain.PropertyPosition: "1"}},
	}
	if err := client.AddBatch(context.Background(), items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(received.Items))
	}
	if received.Items[0].ID != 1000 || received.Items[0].Properties[domain.PropertyCustomBracelet] != "Yes" {
		t.Fatalf("unexpected first item: %+v", received.Items[0])
	}
}

func TestAddBatchRejectsEmpty(t *testing.T) {
	client := newTestCartClient(t, "https://shop.example.com")
	if err := client.AddBatch(context.Background(), nil); !errors.Is(err, ErrCartRejected) {
		t.Fatalf("expected ErrCartRejected, got %v", err)
	}
}

func TestAddSinglePostsBareItem(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestCartClient(t, server.URL)
	err := client.AddSingle(context.Background(), domain.LineItem{VariantID: 42, Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, isBatch := received["items"]; isBatch {
		t.Fatal("single add must not use the batch envelope")
	}
	if received["id"] != float64(42) {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestAddBatchSurfacesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"description":"sold out"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestCartClient(t, server.URL)
	err := client.AddBatch(context.Background(), []domain.LineItem{{VariantID: 1, Quantity: 1}})
	if !errors.Is(err, ErrCartRejected) {
		t.Fatalf("expected ErrCartRejected, got %v", err)
	}
}

func TestItemCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart.js" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"item_count":5,"items":[]}`)
	}))
	defer server.Close()

	client := newTestCartClient(t, server.URL)
	count, err := client.ItemCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5, got %d", count)
	}
}

func TestItemCountNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestCartClient(t, server.URL)
	if _, err := client.ItemCount(context.Background()); err == nil {
		t.Fatal("expected error for non-OK status")
	}
}
