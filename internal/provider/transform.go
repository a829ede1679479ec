package provider

import (
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// priceAliases is the fallback order for the price field across upstream
// schemas. Providers keep renaming this field between API versions; trying
// each alias tolerates the drift without dropping updates.
var priceAliases = []string{"price", "close", "last", "c", "rate"}

// priceFromFields resolves a price out of a loosely typed upstream object,
// walking the alias list in order.
func priceFromFields(fields map[string]any) (float64, bool) {
	for _, alias := range priceAliases {
		raw, ok := fields[alias]
		if !ok {
			continue
		}

		if value, ok := numericValue(raw); ok {
			return value, true
		}
	}

	return 0, false
}

// numericValue coerces an upstream JSON value to float64. Strings go through
// decimal to avoid locale/precision surprises on long quote strings.
func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		trimmed := strings.TrimSpace(strings.TrimSuffix(v, "%"))
		if trimmed == "" {
			return 0, false
		}

		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return 0, false
		}

		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

func optionalFloat(raw any) null.Float {
	if value, ok := numericValue(raw); ok {
		return null.FloatFrom(value)
	}

	return null.Float{}
}

// changeFromOpenClose derives 24h absolute and percent change from open and
// close quote strings.
func changeFromOpenClose(openRaw, closeRaw string) (change float64, percent float64, ok bool) {
	openPrice, err := decimal.NewFromString(strings.TrimSpace(openRaw))
	if err != nil {
		return 0, 0, false
	}

	closePrice, err := decimal.NewFromString(strings.TrimSpace(closeRaw))
	if err != nil {
		return 0, 0, false
	}

	diff := closePrice.Sub(openPrice)
	if openPrice.IsZero() {
		return diff.InexactFloat64(), 0, true
	}

	pct := diff.Div(openPrice).Mul(decimal.NewFromInt(100))

	return diff.InexactFloat64(), pct.InexactFloat64(), true
}
