package domain

import (
	"errors"
	"strconv"
)

// Line-item property keys recognised by the storefront cart template.
// The leading underscore hides them from the customer-facing cart page.
const (
	PropertyCustomBracelet = "_Custom Bracelet"
	PropertyCharmsCount    = "_Charms Count"
	PropertyBraceletSize   = "_Bracelet Size"
	PropertyPartOfBracelet = "_Part of Custom Bracelet"
	PropertyPosition       = "_Position"
)

// ErrNoBase is returned when line items are requested before a base
// bracelet has been selected.
var ErrNoBase = errors.New("composition: no base selected")

// LineItem is one cart entry ready for submission to the storefront.
type LineItem struct {
	VariantID  int64             `json:"variantId"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties"`
}

// BuildLineItems flattens the composition into the cart payload: the base
// bracelet first, then every occupied slot in ascending slot order. Charm
// positions are reported 1-based so they read naturally on the order sheet.
func BuildLineItems(c *Composition) ([]LineItem, error) {
	if c == nil {
		return nil, ErrNoBase
	}
	base, ok := c.Base()
	if !ok {
		return nil, ErrNoBase
	}

	slots := c.Slots()
	charms := 0
	for _, slot := range slots {
		if slot.Placement != nil {
			charms++
		}
	}

	items := make([]LineItem, 0, charms+1)
	items = append(items, LineItem{
		VariantID: base.VariantID,
		Quantity:  1,
		Properties: map[string]string{
			PropertyCustomBracelet: "Yes",
			PropertyCharmsCount:    strconv.Itoa(charms),
			PropertyBraceletSize:   strconv.Itoa(c.Capacity()),
		},
	})
	for _, slot := range slots {
		if slot.Placement == nil {
			continue
		}
		items = append(items, LineItem{
			VariantID: slot.Placement.Item.VariantID,
			Quantity:  1,
			Properties: map[string]string{
				PropertyPartOfBracelet: base.Title,
				PropertyPosition:       strconv.Itoa(slot.Index + 1),
			},
		})
	}
	return items, nil
}
