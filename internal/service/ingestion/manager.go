package ingestion

import (
	"context"
	"fmt"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/ichie-benjamin/market-pulse/internal/provider"
	"github.com/sirupsen/logrus"
)

// Manager owns every supervisor and poller. The category-to-provider
// assignment table is built once here and treated as immutable configuration
// for the life of the process.
type Manager struct {
	store entity.AssetStore
	turbo entity.TurboSink

	assignments map[entity.Category]string
	providers   map[string]entity.Provider
	supervisors map[string]*Supervisor
	pollers     map[entity.Category]*Poller
}

func NewManager(cfg *config.EnvConfig, store entity.AssetStore, turbo entity.TurboSink) (*Manager, error) {
	m := &Manager{
		store:       store,
		turbo:       turbo,
		assignments: make(map[entity.Category]string),
		providers:   make(map[string]entity.Provider),
		supervisors: make(map[string]*Supervisor),
		pollers:     make(map[entity.Category]*Poller),
	}

	for rawCategory, providerName := range cfg.Assignments {
		category, err := entity.ParseCategory(rawCategory)
		if err != nil {
			return nil, fmt.Errorf("invalid assignment: %w", err)
		}

		p, ok := m.providers[providerName]
		if !ok {
			providerCfg, found := cfg.Providers[providerName]
			if !found {
				return nil, fmt.Errorf("assignment %s: provider %q has no config (registered: %v)", category, providerName, provider.Names())
			}

			p, err = provider.New(providerName, providerCfg)
			if err != nil {
				return nil, fmt.Errorf("assignment %s: %w", category, err)
			}
			m.providers[providerName] = p
		}

		if !providerServes(p, category) {
			return nil, fmt.Errorf("assignment %s -> %s: %w", category, providerName, entity.ErrUnsupportedCategory)
		}

		m.assignments[category] = providerName

		switch typed := p.(type) {
		case entity.PushProvider:
			if _, exists := m.supervisors[providerName]; !exists {
				m.supervisors[providerName] = NewSupervisor(typed, store, turbo, cfg.Ingestion)
			}
		case entity.PollProvider:
			m.pollers[category] = NewPoller(typed, category, store, turbo, cfg.Providers[providerName].PollInterval, cfg.Ingestion)
		default:
			return nil, fmt.Errorf("provider %q implements neither push nor poll", providerName)
		}
	}

	return m, nil
}

func providerServes(p entity.Provider, category entity.Category) bool {
	for _, c := range p.Categories() {
		if c == category {
			return true
		}
	}

	return false
}

func (m *Manager) Start(ctx context.Context) {
	for name, supervisor := range m.supervisors {
		logrus.Infof("starting supervisor for provider: %s", name)
		supervisor.Start(ctx)
	}

	for category, poller := range m.pollers {
		logrus.Infof("starting poller for category: %s", category)
		poller.Start(ctx)
	}
}

// Stop halts every supervisor and poller and blocks until their loops exit,
// so nothing writes to the store after Stop returns.
func (m *Manager) Stop() {
	for _, supervisor := range m.supervisors {
		supervisor.Stop()
	}
	for _, poller := range m.pollers {
		poller.Stop()
	}
}

// RefreshCategory forces an immediate poll for one category. Push categories
// have nothing to refresh; this is a no-op for them.
func (m *Manager) RefreshCategory(category entity.Category) error {
	if _, ok := m.assignments[category]; !ok {
		return fmt.Errorf("%w: no provider assigned to %s", entity.ErrProviderNotFound, category)
	}

	if poller, ok := m.pollers[category]; ok {
		poller.Refresh()
	}

	return nil
}

func (m *Manager) RefreshAll() {
	for _, poller := range m.pollers {
		poller.Refresh()
	}
}

// Health reports per category: assigned provider, whether at least one batch
// landed in the store, and whether the connection/polling is currently live.
func (m *Manager) Health() map[entity.Category]entity.CategoryHealth {
	health := make(map[entity.Category]entity.CategoryHealth, len(m.assignments))

	for category, providerName := range m.assignments {
		status := entity.CategoryHealth{Provider: providerName}

		if supervisor, ok := m.supervisors[providerName]; ok {
			status.Initialized = supervisor.Initialized()
			status.Live = supervisor.Live()
		}
		if poller, ok := m.pollers[category]; ok {
			status.Initialized = poller.Initialized()
			status.Live = poller.Live()
		}

		health[category] = status
	}

	return health
}
