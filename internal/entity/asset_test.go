package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetID(t *testing.T) {
	assert.Equal(t, "crypto-BTCUSD", AssetID(CategoryCrypto, "btcusd"))
	assert.Equal(t, "stocks-AAPL", AssetID(CategoryStocks, "  aapl "))
}

func TestSplitAssetID(t *testing.T) {
	category, symbol, ok := SplitAssetID("crypto-BTCUSD")
	require.True(t, ok)
	assert.Equal(t, CategoryCrypto, category)
	assert.Equal(t, "BTCUSD", symbol)

	// symbol may itself contain a dash
	category, symbol, ok = SplitAssetID("forex-EUR-USD")
	require.True(t, ok)
	assert.Equal(t, CategoryForex, category)
	assert.Equal(t, "EUR-USD", symbol)

	_, _, ok = SplitAssetID("nonsense-BTCUSD")
	assert.False(t, ok)

	_, _, ok = SplitAssetID("crypto-")
	assert.False(t, ok)
}

func TestClampChangePercent(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{"within range", 42.5, 42.5},
		{"negative within range", -99.9, -99.9},
		{"glitch positive", 5000, 100},
		{"glitch negative", -5000, -100},
		{"boundary", 100, 100},
		{"just above", 100.01, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampChangePercent(tt.input))
		})
	}
}

func TestAssetValidate(t *testing.T) {
	asset := Asset{Symbol: "BTCUSD", Category: CategoryCrypto, Price: 40000}
	require.NoError(t, asset.Validate())

	missing := Asset{Category: CategoryCrypto, Price: 1}
	require.Error(t, missing.Validate())

	badCategory := Asset{Symbol: "X", Category: "bonds", Price: 1}
	require.Error(t, badCategory.Validate())
}

func TestAssetNormalize(t *testing.T) {
	asset := Asset{Symbol: " btcusd ", Category: CategoryCrypto, Price: 40000, ChangePercent24h: 1234}
	asset.Normalize()

	assert.Equal(t, "BTCUSD", asset.Symbol)
	assert.Equal(t, "crypto-BTCUSD", asset.ID)
	assert.Equal(t, 100.0, asset.ChangePercent24h)
}

func TestParseCategory(t *testing.T) {
	category, err := ParseCategory(" Crypto ")
	require.NoError(t, err)
	assert.Equal(t, CategoryCrypto, category)

	_, err = ParseCategory("bonds")
	require.Error(t, err)
}
