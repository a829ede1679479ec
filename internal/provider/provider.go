package provider

import (
	"fmt"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
)

type Constructor func(cfg config.ProviderConfig) (entity.Provider, error)

// registry maps provider names to constructors. The set is closed at compile
// time; config selects from it at startup.
var registry = map[string]Constructor{
	ProviderBinance:       NewBinanceProvider,
	ProviderTwelveData:    NewTwelveDataProvider,
	ProviderMetalPriceAPI: NewMetalPriceAPIProvider,
}

const (
	ProviderBinance       = "binance"
	ProviderTwelveData    = "twelvedata"
	ProviderMetalPriceAPI = "metalpriceapi"
)

// New resolves a configured provider name against the registry.
func New(name string, cfg config.ProviderConfig) (entity.Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrProviderNotFound, name)
	}

	return ctor(cfg)
}

// Names lists every registered provider, used for config validation errors.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	return names
}

func supportsCategory(categories []entity.Category, category entity.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}

	return false
}
