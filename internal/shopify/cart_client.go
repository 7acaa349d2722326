package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/platform/textutil"
)

// ErrCartRejected is returned when the cart endpoint refuses an add request.
var ErrCartRejected = errors.New("shopify: cart rejected items")

// CartClient talks to the storefront AJAX cart API.
type CartClient struct {
	baseURL string
	http    *http.Client
}

// CartClientConfig bundles the constructor parameters.
type CartClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewCartClient constructs a cart client for the given shop.
func NewCartClient(cfg CartClientConfig) (*CartClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shopify: cart client requires a base url")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &CartClient{baseURL: baseURL, http: httpClient}, nil
}

type cartLinePayload struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

type cartBatchPayload struct {
	Items []cartLinePayload `json:"items"`
}

// AddBatch submits every line item in a single cart request.
func (c *CartClient) AddBatch(ctx context.Context, items []domain.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrCartRejected)
	}
	payload := cartBatchPayload{Items: make([]cartLinePayload, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, toCartLine(item))
	}
	return c.postAdd(ctx, payload)
}

// AddSingle submits one line item using the bare single-item form of the add
// endpoint. Used as the per-item fallback when a batch add fails.
func (c *CartClient) AddSingle(ctx context.Context, item domain.LineItem) error {
	return c.postAdd(ctx, toCartLine(item))
}

func (c *CartClient) postAdd(ctx context.Context, body any) error {
	endpoint, err := url.JoinPath(c.baseURL, "cart", "add.js")
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", ErrCartRejected, resp.StatusCode, drainError(resp.Body))
	}
	return nil
}

// ItemCount reads the current cart size, used to verify additions landed.
func (c *CartClient) ItemCount(ctx context.Context) (int, error) {
	endpoint, err := url.JoinPath(c.baseURL, "cart.js")
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("shopify: cart status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload struct {
		ItemCount int `json:"item_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ItemCount, nil
}

func toCartLine(item domain.LineItem) cartLinePayload {
	return cartLinePayload{
		ID:         item.VariantID,
		Quantity:   item.Quantity,
		Properties: textutil.NormalizeStringMap(item.Properties),
	}
}
