package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const metalPriceAPIDefaultBaseURL = "https://api.metalpriceapi.com"

// MetalPriceAPIProvider polls spot rates for metals and commodities. The
// upstream quotes rates as units-per-USD, so price is the inverted rate.
type MetalPriceAPIProvider struct {
	apiKey     string
	baseURL    string
	symbols    map[string][]string
	httpClient *http.Client
}

func NewMetalPriceAPIProvider(cfg config.ProviderConfig) (entity.Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("metalpriceapi provider requires api_key in config")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = metalPriceAPIDefaultBaseURL
	}

	return &MetalPriceAPIProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbols:    cfg.Symbols,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (p *MetalPriceAPIProvider) Name() string { return ProviderMetalPriceAPI }

func (p *MetalPriceAPIProvider) Categories() []entity.Category {
	return []entity.Category{entity.CategoryMetals, entity.CategoryCommodities}
}

func (p *MetalPriceAPIProvider) Mode() entity.ProviderMode { return entity.ProviderModePoll }

func (p *MetalPriceAPIProvider) Fetch(ctx context.Context, category entity.Category) ([]entity.Asset, error) {
	if !supportsCategory(p.Categories(), category) {
		return nil, fmt.Errorf("%w: %s does not serve %s", entity.ErrUnsupportedCategory, ProviderMetalPriceAPI, category)
	}

	symbols := p.symbols[string(category)]
	if len(symbols) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/v1/latest?api_key=%s&base=USD&currencies=%s",
		p.baseURL,
		url.QueryEscape(p.apiKey),
		url.QueryEscape(strings.Join(symbols, ",")),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metalpriceapi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Success   bool               `json:"success"`
		Error     map[string]any     `json:"error"`
		Timestamp int64              `json:"timestamp"`
		Base      string             `json:"base"`
		Rates     map[string]float64 `json:"rates"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("metalpriceapi parse failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	if resp.StatusCode >= http.StatusBadRequest || !payload.Success {
		return nil, fmt.Errorf("metalpriceapi request rejected: status=%d error=%v", resp.StatusCode, payload.Error)
	}

	updatedAt := payload.Timestamp * 1000
	if updatedAt <= 0 {
		updatedAt = time.Now().UnixMilli()
	}

	assets := make([]entity.Asset, 0, len(payload.Rates))
	for symbol, rate := range payload.Rates {
		if rate <= 0 {
			logrus.WithField("symbol", symbol).Debug("metalpriceapi rate skipped: non-positive")
			continue
		}

		price := decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate)).InexactFloat64()

		asset := entity.Asset{
			Symbol:    symbol,
			Category:  category,
			Price:     price,
			Provider:  ProviderMetalPriceAPI,
			UpdatedAt: updatedAt,
			Metadata:  map[string]string{"base": payload.Base},
		}
		asset.Normalize()

		if err := asset.Validate(); err != nil {
			logrus.Debugf("metalpriceapi rate skipped: %v", err)
			continue
		}

		assets = append(assets, asset)
	}

	return assets, nil
}
