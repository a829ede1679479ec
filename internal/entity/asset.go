package entity

import (
	"fmt"
	"math"
	"strings"

	"github.com/guregu/null/v6"
)

type Category string

const (
	CategoryCrypto      Category = "crypto"
	CategoryStocks      Category = "stocks"
	CategoryForex       Category = "forex"
	CategoryIndices     Category = "indices"
	CategoryCommodities Category = "commodities"
	CategoryMetals      Category = "metals"
)

// MaxChangePercent caps 24h percent change values. Upstream feeds
// occasionally report absurd magnitudes (>1000%); those are treated as
// corrupt and clamped instead of dropping an otherwise valid update.
const MaxChangePercent = 100.0

var AllCategories = []Category{
	CategoryCrypto,
	CategoryStocks,
	CategoryForex,
	CategoryIndices,
	CategoryCommodities,
	CategoryMetals,
}

func ParseCategory(raw string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range AllCategories {
		if c == normalized {
			return c, nil
		}
	}

	return "", fmt.Errorf("unknown category: %q", raw)
}

// Asset is the normalized cross-provider snapshot of one instrument.
// Exactly one exists per (provider, category, symbol); updates overwrite in
// place, no history is retained.
type Asset struct {
	ID               string            `json:"id"`
	Symbol           string            `json:"symbol"`
	Name             string            `json:"name,omitempty"`
	Category         Category          `json:"category"`
	Price            float64           `json:"price"`
	PriceLow24h      null.Float        `json:"price_low_24h"`
	PriceHigh24h     null.Float        `json:"price_high_24h"`
	Change24h        float64           `json:"change_24h"`
	ChangePercent24h float64           `json:"change_percent_24h"`
	Volume24h        null.Float        `json:"volume_24h"`
	Provider         string            `json:"provider"`
	UpdatedAt        int64             `json:"updated_at"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// AssetID builds the deterministic cache id for a category/symbol pair.
func AssetID(category Category, symbol string) string {
	return fmt.Sprintf("%s-%s", category, strings.ToUpper(strings.TrimSpace(symbol)))
}

// SplitAssetID recovers the category and symbol from a cache id. The symbol
// part may itself contain dashes, only the first separator is structural.
func SplitAssetID(id string) (Category, string, bool) {
	idx := strings.Index(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}

	category, err := ParseCategory(id[:idx])
	if err != nil {
		return "", "", false
	}

	return category, id[idx+1:], true
}

// ClampChangePercent caps the magnitude of a percent-change value at
// MaxChangePercent, preserving sign.
func ClampChangePercent(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	if value > MaxChangePercent {
		return MaxChangePercent
	}
	if value < -MaxChangePercent {
		return -MaxChangePercent
	}

	return value
}

func (a *Asset) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if _, err := ParseCategory(string(a.Category)); err != nil {
		return err
	}
	if math.IsNaN(a.Price) || math.IsInf(a.Price, 0) {
		return fmt.Errorf("asset %s price is not a finite number", a.Symbol)
	}

	return nil
}

// Normalize uppercases the symbol, derives the id and clamps the percent
// change. Called by connectors after transform and by the store before write.
func (a *Asset) Normalize() {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	a.ID = AssetID(a.Category, a.Symbol)
	a.ChangePercent24h = ClampChangePercent(a.ChangePercent24h)
}
