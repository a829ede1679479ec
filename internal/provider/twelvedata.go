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
	"github.com/sirupsen/logrus"
)

const twelveDataDefaultBaseURL = "https://api.twelvedata.com"

// TwelveDataProvider polls batch quotes for stocks, forex and indices.
type TwelveDataProvider struct {
	apiKey     string
	baseURL    string
	symbols    map[string][]string
	httpClient *http.Client
}

func NewTwelveDataProvider(cfg config.ProviderConfig) (entity.Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("twelvedata provider requires api_key in config")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = twelveDataDefaultBaseURL
	}

	return &TwelveDataProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbols:    cfg.Symbols,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (p *TwelveDataProvider) Name() string { return ProviderTwelveData }

func (p *TwelveDataProvider) Categories() []entity.Category {
	return []entity.Category{entity.CategoryStocks, entity.CategoryForex, entity.CategoryIndices}
}

func (p *TwelveDataProvider) Mode() entity.ProviderMode { return entity.ProviderModePoll }

func (p *TwelveDataProvider) Fetch(ctx context.Context, category entity.Category) ([]entity.Asset, error) {
	if !supportsCategory(p.Categories(), category) {
		return nil, fmt.Errorf("%w: %s does not serve %s", entity.ErrUnsupportedCategory, ProviderTwelveData, category)
	}

	symbols := p.symbols[string(category)]
	if len(symbols) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s",
		p.baseURL,
		url.QueryEscape(strings.Join(symbols, ",")),
		url.QueryEscape(p.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twelvedata quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("twelvedata quote request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return p.transform(body, category, len(symbols) == 1), nil
}

// transform handles both response shapes: a single quote object when one
// symbol was requested, a symbol-keyed map otherwise. Individual malformed
// quotes are skipped, the rest of the batch survives.
func (p *TwelveDataProvider) transform(body []byte, category entity.Category, single bool) []entity.Asset {
	quotes := make(map[string]map[string]any)

	if single {
		var quote map[string]any
		if err := json.Unmarshal(body, &quote); err != nil {
			logrus.Debugf("twelvedata quote skipped: %v", err)
			return nil
		}
		if symbol, _ := quote["symbol"].(string); symbol != "" {
			quotes[symbol] = quote
		}
	} else {
		if err := json.Unmarshal(body, &quotes); err != nil {
			logrus.Debugf("twelvedata batch skipped: %v", err)
			return nil
		}
	}

	now := time.Now().UnixMilli()
	assets := make([]entity.Asset, 0, len(quotes))

	for symbol, quote := range quotes {
		if quote == nil {
			continue
		}

		// error objects come back inside the batch map for bad symbols
		if status, _ := quote["status"].(string); status == "error" {
			logrus.WithField("symbol", symbol).Debug("twelvedata quote skipped: upstream error entry")
			continue
		}

		price, ok := priceFromFields(quote)
		if !ok {
			logrus.WithField("symbol", symbol).Debug("twelvedata quote skipped: no price field")
			continue
		}

		change, _ := numericValue(quote["change"])
		percent, _ := numericValue(quote["percent_change"])
		name, _ := quote["name"].(string)

		asset := entity.Asset{
			Symbol:           symbol,
			Name:             name,
			Category:         category,
			Price:            price,
			PriceLow24h:      optionalFloat(quote["low"]),
			PriceHigh24h:     optionalFloat(quote["high"]),
			Change24h:        change,
			ChangePercent24h: percent,
			Volume24h:        optionalFloat(quote["volume"]),
			Provider:         ProviderTwelveData,
			UpdatedAt:        now,
		}
		asset.Normalize()

		if err := asset.Validate(); err != nil {
			logrus.Debugf("twelvedata quote skipped: %v", err)
			continue
		}

		assets = append(assets, asset)
	}

	return assets
}
