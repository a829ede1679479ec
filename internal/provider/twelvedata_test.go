package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwelveData(t *testing.T, baseURL string, symbols map[string][]string) *TwelveDataProvider {
	t.Helper()

	p, err := NewTwelveDataProvider(config.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Symbols: symbols,
	})
	require.NoError(t, err)

	return p.(*TwelveDataProvider)
}

func TestTwelveDataTransformBatch(t *testing.T) {
	p := newTestTwelveData(t, "", nil)

	body := []byte(`{
		"AAPL": {
			"symbol": "AAPL",
			"name": "Apple Inc",
			"close": "227.52",
			"open": "225.00",
			"high": "228.10",
			"low": "224.90",
			"volume": "41250000",
			"change": "2.52",
			"percent_change": "1.12"
		},
		"BOGUS": {"code": 404, "status": "error", "message": "symbol not found"},
		"MSFT": {"symbol": "MSFT", "volume": "100"}
	}`)

	assets := p.transform(body, entity.CategoryStocks, false)
	require.Len(t, assets, 1)

	asset := assets[0]
	assert.Equal(t, "stocks-AAPL", asset.ID)
	assert.Equal(t, "Apple Inc", asset.Name)
	assert.Equal(t, 227.52, asset.Price)
	assert.Equal(t, 2.52, asset.Change24h)
	assert.Equal(t, 1.12, asset.ChangePercent24h)
	assert.Equal(t, 41250000.0, asset.Volume24h.Float64)
	assert.Equal(t, ProviderTwelveData, asset.Provider)
}

func TestTwelveDataTransformSingle(t *testing.T) {
	p := newTestTwelveData(t, "", nil)

	body := []byte(`{"symbol":"EUR/USD","close":"1.0842","percent_change":"-0.15"}`)

	assets := p.transform(body, entity.CategoryForex, true)
	require.Len(t, assets, 1)
	assert.Equal(t, "forex-EUR/USD", assets[0].ID)
	assert.Equal(t, 1.0842, assets[0].Price)
	assert.Equal(t, -0.15, assets[0].ChangePercent24h)
}

func TestTwelveDataFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"AAPL": {"symbol": "AAPL", "close": "227.52"},
			"MSFT": {"symbol": "MSFT", "close": "430.10"}
		}`))
	}))
	defer server.Close()

	p := newTestTwelveData(t, server.URL, map[string][]string{
		"stocks": {"AAPL", "MSFT"},
	})

	assets, err := p.Fetch(context.Background(), entity.CategoryStocks)
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestTwelveDataFetchUnsupportedCategory(t *testing.T) {
	p := newTestTwelveData(t, "", nil)

	_, err := p.Fetch(context.Background(), entity.CategoryCrypto)
	require.ErrorIs(t, err, entity.ErrUnsupportedCategory)
}

func TestTwelveDataFetchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":429,"message":"rate limit"}`))
	}))
	defer server.Close()

	p := newTestTwelveData(t, server.URL, map[string][]string{"stocks": {"AAPL"}})

	_, err := p.Fetch(context.Background(), entity.CategoryStocks)
	require.Error(t, err)
}
