// Package money converts between the shop catalog's decimal price strings
// and the integer minor units used everywhere inside the service.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrInvalidAmount indicates a price string that is not a plain decimal.
var ErrInvalidAmount = errors.New("money: invalid amount")

// ParseDecimalMinor parses a decimal price string such as "20.00" or "350"
// into minor units (cents). At most two fraction digits are accepted, which
// matches the catalog feed. Negative amounts are rejected.
func ParseDecimalMinor(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(value, "-") {
		return 0, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, value)
	}

	whole := value
	frac := ""
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		whole, frac = value[:dot], value[dot+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: too many fraction digits in %q", ErrInvalidAmount, value)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return units*100 + cents, nil
}

// FormatMinor renders minor units as a localised price string with the
// currency's narrow symbol, e.g. 13500 HNL -> "L135.00".
func FormatMinor(minor int64, currencyCode string) (string, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return "", fmt.Errorf("money: unknown currency %q: %w", currencyCode, err)
	}
	amount := unit.Amount(float64(minor) / 100)
	printer := message.NewPrinter(language.English)
	return printer.Sprintf("%v", currency.NarrowSymbol(amount)), nil
}
