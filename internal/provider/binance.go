package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	binanceDefaultWSURL = "wss://stream.binance.com:9443/stream"
	binancePingInterval = 2 * time.Minute
)

// BinanceProvider streams crypto mini-tickers over the combined websocket
// endpoint. It holds exactly one session per Connect call; reconnection is
// the supervisor's job.
type BinanceProvider struct {
	wsURL   string
	symbols []string
}

func NewBinanceProvider(cfg config.ProviderConfig) (entity.Provider, error) {
	wsURL := strings.TrimSpace(cfg.WSURL)
	if wsURL == "" {
		wsURL = binanceDefaultWSURL
	}

	symbols := cfg.Symbols[string(entity.CategoryCrypto)]
	if len(symbols) == 0 {
		return nil, fmt.Errorf("binance provider requires crypto symbols in config")
	}

	return &BinanceProvider{wsURL: wsURL, symbols: symbols}, nil
}

func (p *BinanceProvider) Name() string { return ProviderBinance }

func (p *BinanceProvider) Categories() []entity.Category {
	return []entity.Category{entity.CategoryCrypto}
}

func (p *BinanceProvider) Mode() entity.ProviderMode { return entity.ProviderModePush }

func (p *BinanceProvider) Connect(ctx context.Context, onBatch func(assets []entity.Asset)) error {
	wsHost, err := url.Parse(p.wsURL)
	if err != nil {
		return fmt.Errorf("invalid binance ws url: %w", err)
	}

	logrus.Infof("connecting to %s", wsHost.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsHost.String(), nil)
	if err != nil {
		return fmt.Errorf("binance ws dial failed: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return nil
	})

	params := make([]string, 0, len(p.symbols))
	for _, symbol := range p.symbols {
		params = append(params, strings.ToLower(strings.TrimSpace(symbol))+"@miniTicker")
	}

	subscribe := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		_ = conn.Close()
		return fmt.Errorf("binance ws subscribe failed: %w", err)
	}

	stopPing := make(chan struct{})
	defer close(stopPing)

	go func(c *websocket.Conn) {
		ticker := time.NewTicker(binancePingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					logrus.Error(err)
					return
				}
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			}
		}
	}(conn)

	go func(c *websocket.Conn) {
		select {
		case <-ctx.Done():
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.Close()
		case <-stopPing:
		}
	}(conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("binance ws read failed: %w", err)
		}

		assets := p.transform(message)
		if len(assets) > 0 && onBatch != nil {
			onBatch(assets)
		}
	}
}

// transform maps one combined-stream frame to assets. Malformed frames are
// skipped, never fatal to the session.
func (p *BinanceProvider) transform(message []byte) []entity.Asset {
	var payload struct {
		Stream string `json:"stream"`
		Data   struct {
			Event     string `json:"e"`
			EventTime int64  `json:"E"`
			Symbol    string `json:"s"`
			Close     string `json:"c"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &payload); err != nil {
		logrus.Debugf("binance frame skipped: %v", err)
		return nil
	}

	if payload.Data.Event != "24hrMiniTicker" || payload.Data.Close == "" {
		return nil
	}

	price, ok := numericValue(payload.Data.Close)
	if !ok {
		logrus.WithField("symbol", payload.Data.Symbol).Debug("binance ticker skipped: unparseable close")
		return nil
	}

	change, percent, _ := changeFromOpenClose(payload.Data.Open, payload.Data.Close)

	asset := entity.Asset{
		Symbol:           payload.Data.Symbol,
		Category:         entity.CategoryCrypto,
		Price:            price,
		PriceLow24h:      optionalFloat(payload.Data.Low),
		PriceHigh24h:     optionalFloat(payload.Data.High),
		Change24h:        change,
		ChangePercent24h: percent,
		Volume24h:        optionalFloat(payload.Data.Volume),
		Provider:         ProviderBinance,
		UpdatedAt:        payload.Data.EventTime,
	}
	if asset.UpdatedAt == 0 {
		asset.UpdatedAt = time.Now().UnixMilli()
	}
	asset.Normalize()

	if err := asset.Validate(); err != nil {
		logrus.Debugf("binance ticker skipped: %v", err)
		return nil
	}

	return []entity.Asset{asset}
}
