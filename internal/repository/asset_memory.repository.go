package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/entity"
)

type memoryEntry struct {
	asset     entity.Asset
	expiresAt time.Time
}

// MemoryAssetStore is the in-process counterpart of RedisAssetStore, with the
// same write/index/notify semantics. Used for single-node deployments without
// redis and throughout the test suites.
type MemoryAssetStore struct {
	ttl time.Duration

	mu          sync.RWMutex
	entries     map[string]memoryEntry
	byCategory  map[entity.Category]map[string]struct{}
	bySymbol    map[string]map[string]struct{}
	subscribers []func(event entity.ChangeEvent)
	closed      bool
}

func NewMemoryAssetStore(ttl time.Duration) *MemoryAssetStore {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	return &MemoryAssetStore{
		ttl:        ttl,
		entries:    make(map[string]memoryEntry),
		byCategory: make(map[entity.Category]map[string]struct{}),
		bySymbol:   make(map[string]map[string]struct{}),
	}
}

func (s *MemoryAssetStore) Write(_ context.Context, assets []entity.Asset) ([]string, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	now := time.Now()
	ids := make([]string, 0, len(assets))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, entity.ErrStoreUnavailable
	}

	for i := range assets {
		asset := assets[i]
		asset.Normalize()
		if err := asset.Validate(); err != nil {
			continue
		}

		s.entries[asset.ID] = memoryEntry{asset: asset, expiresAt: now.Add(s.ttl)}

		if s.byCategory[asset.Category] == nil {
			s.byCategory[asset.Category] = make(map[string]struct{})
		}
		s.byCategory[asset.Category][asset.ID] = struct{}{}

		if s.bySymbol[asset.Symbol] == nil {
			s.bySymbol[asset.Symbol] = make(map[string]struct{})
		}
		s.bySymbol[asset.Symbol][asset.ID] = struct{}{}

		ids = append(ids, asset.ID)
	}
	subscribers := append([]func(event entity.ChangeEvent){}, s.subscribers...)
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil, nil
	}

	notify(subscribers, entity.ChangeEvent{Type: entity.ChangeTypeUpdate, IDs: ids})

	return ids, nil
}

func (s *MemoryAssetStore) Get(_ context.Context, id string) (*entity.Asset, bool, error) {
	s.mu.RLock()
	closed := s.closed
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if closed {
		return nil, false, entity.ErrStoreUnavailable
	}

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}

	asset := entry.asset

	return &asset, true, nil
}

func (s *MemoryAssetStore) GetMany(ctx context.Context, ids []string) ([]entity.Asset, error) {
	assets := make([]entity.Asset, 0, len(ids))
	for _, id := range ids {
		asset, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			assets = append(assets, *asset)
		}
	}

	return assets, nil
}

func (s *MemoryAssetStore) GetByCategory(ctx context.Context, category entity.Category) ([]entity.Asset, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, entity.ErrStoreUnavailable
	}
	ids := make([]string, 0, len(s.byCategory[category]))
	for id := range s.byCategory[category] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	return s.GetMany(ctx, ids)
}

func (s *MemoryAssetStore) GetBySymbols(ctx context.Context, symbols []string) ([]entity.Asset, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, entity.ErrStoreUnavailable
	}
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		normalized := strings.ToUpper(strings.TrimSpace(symbol))
		for id := range s.bySymbol[normalized] {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	return s.GetMany(ctx, ids)
}

func (s *MemoryAssetStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.ErrStoreUnavailable
	}
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.entries = make(map[string]memoryEntry)
	s.byCategory = make(map[entity.Category]map[string]struct{})
	s.bySymbol = make(map[string]map[string]struct{})
	subscribers := append([]func(event entity.ChangeEvent){}, s.subscribers...)
	s.mu.Unlock()

	notify(subscribers, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

func (s *MemoryAssetStore) ClearCategory(_ context.Context, category entity.Category) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.ErrStoreUnavailable
	}
	ids := make([]string, 0, len(s.byCategory[category]))
	for id := range s.byCategory[category] {
		ids = append(ids, id)
		s.removeLocked(id)
	}
	delete(s.byCategory, category)
	subscribers := append([]func(event entity.ChangeEvent){}, s.subscribers...)
	s.mu.Unlock()

	notify(subscribers, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

func (s *MemoryAssetStore) ClearAsset(_ context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.ErrStoreUnavailable
	}
	s.removeLocked(id)
	subscribers := append([]func(event entity.ChangeEvent){}, s.subscribers...)
	s.mu.Unlock()

	notify(subscribers, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: []string{id}})

	return nil
}

func (s *MemoryAssetStore) ClearBySymbol(_ context.Context, symbol string) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entity.ErrStoreUnavailable
	}
	ids := make([]string, 0, len(s.bySymbol[normalized]))
	for id := range s.bySymbol[normalized] {
		ids = append(ids, id)
		s.removeLocked(id)
	}
	subscribers := append([]func(event entity.ChangeEvent){}, s.subscribers...)
	s.mu.Unlock()

	notify(subscribers, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

// removeLocked deletes an entry and prunes both indexes. Caller holds the lock.
func (s *MemoryAssetStore) removeLocked(id string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}

	delete(s.entries, id)

	if set := s.byCategory[entry.asset.Category]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byCategory, entry.asset.Category)
		}
	}
	if set := s.bySymbol[entry.asset.Symbol]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.bySymbol, entry.asset.Symbol)
		}
	}
}

func (s *MemoryAssetStore) Subscribe(_ context.Context, fn func(event entity.ChangeEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entity.ErrStoreUnavailable
	}

	s.subscribers = append(s.subscribers, fn)

	return nil
}

func (s *MemoryAssetStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.subscribers = nil

	return nil
}

func notify(subscribers []func(event entity.ChangeEvent), event entity.ChangeEvent) {
	if len(event.IDs) == 0 {
		return
	}

	for _, fn := range subscribers {
		fn(event)
	}
}
