package services

import (
	"fmt"

	"github.com/stellare-shop/builder/internal/domain"
	"github.com/stellare-shop/builder/internal/platform/money"
)

func newCatalogItemView(item domain.CatalogItem, currency string) CatalogItemView {
	return CatalogItemView{
		ID:           item.ID,
		VariantID:    item.VariantID,
		Title:        item.Title,
		PriceMinor:   item.PriceMinor,
		PriceDisplay: formatPriceMinor(item.PriceMinor, currency),
		ImageURL:     item.ImageURL,
		Handle:       item.Handle,
		Tags:         append([]string(nil), item.Tags...),
		Available:    item.Available,
		Description:  item.Description,
	}
}

func formatPriceMinor(minor int64, currency string) string {
	display, err := money.FormatMinor(minor, currency)
	if err != nil {
		return fmt.Sprintf("%d.%02d", minor/100, minor%100)
	}
	return display
}
