// Package shopify talks to the storefront's public JSON endpoints: the
// collection product feeds and the AJAX cart API.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/platform/money"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 50
)

// ErrCollectionUnavailable is returned when the first page of a collection
// feed cannot be fetched, which usually means the collection handle is
// missing or misconfigured on the shop.
var ErrCollectionUnavailable = errors.New("shopify: collection unavailable")

// CatalogClient pages through collection product feeds.
type CatalogClient struct {
	baseURL   string
	pageSize  int
	http      *http.Client
	sanitizer *bluemonday.Policy
}

// CatalogClientConfig bundles the constructor parameters.
type CatalogClientConfig struct {
	BaseURL    string
	PageSize   int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewCatalogClient constructs a catalog client for the given shop.
func NewCatalogClient(cfg CatalogClientConfig) (*CatalogClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shopify: catalog client requires a base url")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &CatalogClient{
		baseURL:   baseURL,
		pageSize:  pageSize,
		http:      httpClient,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// LoadCollection fetches every page of the collection feed and returns the
// purchasable items. A failure on the first page means the collection is
// unusable and surfaces as ErrCollectionUnavailable; a failure on a later
// page is treated as the end of the feed, matching how the shop truncates
// deep pagination.
func (c *CatalogClient) LoadCollection(ctx context.Context, handle string) ([]domain.CatalogItem, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty collection handle", ErrCollectionUnavailable)
	}

	items := make([]domain.CatalogItem, 0, c.pageSize)
	for page := 1; ; page++ {
		products, err := c.fetchPage(ctx, handle, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("%w: %s: %v", ErrCollectionUnavailable, handle, err)
			}
			break
		}
		if len(products) == 0 {
			break
		}
		for _, product := range products {
			item, ok := c.mapProduct(product)
			if !ok {
				continue
			}
			items = append(items, item)
		}
		if len(products) < c.pageSize {
			break
		}
	}
	return items, nil
}

func (c *CatalogClient) fetchPage(ctx context.Context, handle string, page int) ([]productPayload, error) {
	endpoint, err := url.JoinPath(c.baseURL, "collections", handle, "products.json")
	if err != nil {
		return nil, err
	}
	endpoint += "?page=" + strconv.Itoa(page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shopify: collection %s page %d status %d: %s", handle, page, resp.StatusCode, drainError(resp.Body))
	}

	var payload productsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("shopify: collection %s page %d: %w", handle, page, err)
	}
	return payload.Products, nil
}

// mapProduct normalises one feed entry. Products without variants or not yet
// published are skipped; out-of-stock products are kept so shoppers can see
// them greyed out.
func (c *CatalogClient) mapProduct(p productPayload) (domain.CatalogItem, bool) {
	if len(p.Variants) == 0 || p.PublishedAt == nil || strings.TrimSpace(*p.PublishedAt) == "" {
		return domain.CatalogItem{}, false
	}
	variant := p.Variants[0]

	priceMinor, err := money.ParseDecimalMinor(variant.Price)
	if err != nil {
		return domain.CatalogItem{}, false
	}

	item := domain.CatalogItem{
		ID:          int64(p.ID),
		VariantID:   int64(variant.ID),
		Title:       strings.TrimSpace(p.Title),
		PriceMinor:  priceMinor,
		Handle:      strings.TrimSpace(p.Handle),
		Tags:        []string(p.Tags),
		Available:   variant.Available,
		Description: strings.TrimSpace(c.sanitizer.Sanitize(p.BodyHTML)),
	}
	if len(p.Images) > 0 {
		item.ImageURL = strings.TrimSpace(p.Images[0].Src)
	}
	if item.ID == 0 || item.VariantID == 0 {
		return domain.CatalogItem{}, false
	}
	return item, true
}

type productsPayload struct {
	Products []productPayload `json:"products"`
}

type productPayload struct {
	ID          flexibleID       `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	PublishedAt *string          `json:"published_at"`
	Tags        flexibleTags     `json:"tags"`
	Variants    []variantPayload `json:"variants"`
	Images      []imagePayload   `json:"images"`
}

type variantPayload struct {
	ID        flexibleID `json:"id"`
	Price     string     `json:"price"`
	Available bool       `json:"available"`
}

type imagePayload struct {
	Src string `json:"src"`
}

// flexibleID accepts both numeric and quoted identifiers; some feed proxies
// stringify large ids.
type flexibleID int64

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = 0
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("shopify: invalid id %s: %w", string(data), err)
	}
	*f = flexibleID(parsed)
	return nil
}

// flexibleTags accepts either a JSON array or the comma-separated string the
// older feed format emits.
type flexibleTags []string

func (f *flexibleTags) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		out := make([]string, 0, len(list))
		for _, tag := range list {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
		*f = out
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, tag := range parts {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	*f = out
	return nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
