package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/constant"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisAssetStore keeps the latest asset snapshot per id under a TTL'd key,
// maintains category and symbol index sets, and broadcasts change events on a
// Pub/Sub channel. The channel doubles as the cross-instance fan-out.
type RedisAssetStore struct {
	client *redis.Client
	cfg    config.CacheConfig
	pubsub *redis.PubSub
}

func NewRedisAssetStore(client *redis.Client, cfg config.CacheConfig) *RedisAssetStore {
	return &RedisAssetStore{client: client, cfg: cfg}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", entity.ErrStoreUnavailable, op, err)
}

// Write upserts the batch, refreshes TTLs and indexes, then publishes a
// single change event for the batch. The event goes out only after the
// pipeline has been applied, so a subscriber re-reading the store observes
// the update.
func (s *RedisAssetStore) Write(ctx context.Context, assets []entity.Asset) ([]string, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(assets))
	pipe := s.client.TxPipeline()

	for i := range assets {
		asset := assets[i]
		asset.Normalize()
		if err := asset.Validate(); err != nil {
			logrus.Debugf("asset write skipped: %v", err)
			continue
		}

		payload, err := json.Marshal(asset)
		if err != nil {
			logrus.Debugf("asset write skipped: %v", err)
			continue
		}

		pipe.Set(ctx, constant.AssetKey(s.cfg.KeyPrefix, asset.ID), payload, s.cfg.TTL)
		pipe.SAdd(ctx, constant.CategoryIndexKey(s.cfg.KeyPrefix, string(asset.Category)), asset.ID)
		pipe.SAdd(ctx, constant.SymbolIndexKey(s.cfg.KeyPrefix, asset.Symbol), asset.ID)
		ids = append(ids, asset.ID)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("write", err)
	}

	s.publish(ctx, entity.ChangeEvent{Type: entity.ChangeTypeUpdate, IDs: ids})

	return ids, nil
}

func (s *RedisAssetStore) Get(ctx context.Context, id string) (*entity.Asset, bool, error) {
	raw, err := s.client.Get(ctx, constant.AssetKey(s.cfg.KeyPrefix, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, storeErr("get", err)
	}

	var asset entity.Asset
	if err := json.Unmarshal([]byte(raw), &asset); err != nil {
		return nil, false, storeErr("get", err)
	}

	return &asset, true, nil
}

// GetMany resolves ids in one MGET; missing or expired ids are silently
// omitted.
func (s *RedisAssetStore) GetMany(ctx context.Context, ids []string) ([]entity.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, constant.AssetKey(s.cfg.KeyPrefix, id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr("get_many", err)
	}

	assets := make([]entity.Asset, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var asset entity.Asset
		if err := json.Unmarshal([]byte(raw), &asset); err != nil {
			continue
		}

		assets = append(assets, asset)
	}

	return assets, nil
}

func (s *RedisAssetStore) GetByCategory(ctx context.Context, category entity.Category) ([]entity.Asset, error) {
	idxKey := constant.CategoryIndexKey(s.cfg.KeyPrefix, string(category))
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, storeErr("get_by_category", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	assets, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.pruneIndex(ctx, idxKey, ids, assets)

	return assets, nil
}

func (s *RedisAssetStore) GetBySymbols(ctx context.Context, symbols []string) ([]entity.Asset, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		keys = append(keys, constant.SymbolIndexKey(s.cfg.KeyPrefix, symbol))
	}

	ids, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr("get_by_symbols", err)
	}

	return s.GetMany(ctx, ids)
}

// pruneIndex drops ids whose primary entry expired from the index set, so
// index membership converges back to live entries.
func (s *RedisAssetStore) pruneIndex(ctx context.Context, idxKey string, ids []string, found []entity.Asset) {
	if len(found) == len(ids) {
		return
	}

	live := make(map[string]struct{}, len(found))
	for _, asset := range found {
		live[asset.ID] = struct{}{}
	}

	stale := make([]any, 0, len(ids)-len(found))
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, idxKey, stale...).Err(); err != nil {
			logrus.Debugf("index prune failed: %v", err)
		}
	}
}

func (s *RedisAssetStore) ClearAll(ctx context.Context) error {
	ids := make([]string, 0)
	pipe := s.client.TxPipeline()

	for _, category := range entity.AllCategories {
		idxKey := constant.CategoryIndexKey(s.cfg.KeyPrefix, string(category))
		members, err := s.client.SMembers(ctx, idxKey).Result()
		if err != nil {
			return storeErr("clear_all", err)
		}

		for _, id := range members {
			pipe.Del(ctx, constant.AssetKey(s.cfg.KeyPrefix, id))
			if _, symbol, ok := entity.SplitAssetID(id); ok {
				pipe.Del(ctx, constant.SymbolIndexKey(s.cfg.KeyPrefix, symbol))
			}
			ids = append(ids, id)
		}
		pipe.Del(ctx, idxKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("clear_all", err)
	}

	s.publish(ctx, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

func (s *RedisAssetStore) ClearCategory(ctx context.Context, category entity.Category) error {
	idxKey := constant.CategoryIndexKey(s.cfg.KeyPrefix, string(category))
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return storeErr("clear_category", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, constant.AssetKey(s.cfg.KeyPrefix, id))
		if _, symbol, ok := entity.SplitAssetID(id); ok {
			pipe.SRem(ctx, constant.SymbolIndexKey(s.cfg.KeyPrefix, symbol), id)
		}
	}
	pipe.Del(ctx, idxKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("clear_category", err)
	}

	s.publish(ctx, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

func (s *RedisAssetStore) ClearAsset(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, constant.AssetKey(s.cfg.KeyPrefix, id))

	if category, symbol, ok := entity.SplitAssetID(id); ok {
		pipe.SRem(ctx, constant.CategoryIndexKey(s.cfg.KeyPrefix, string(category)), id)
		pipe.SRem(ctx, constant.SymbolIndexKey(s.cfg.KeyPrefix, symbol), id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("clear_asset", err)
	}

	s.publish(ctx, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: []string{id}})

	return nil
}

func (s *RedisAssetStore) ClearBySymbol(ctx context.Context, symbol string) error {
	idxKey := constant.SymbolIndexKey(s.cfg.KeyPrefix, symbol)
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return storeErr("clear_by_symbol", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, constant.AssetKey(s.cfg.KeyPrefix, id))
		if category, _, ok := entity.SplitAssetID(id); ok {
			pipe.SRem(ctx, constant.CategoryIndexKey(s.cfg.KeyPrefix, string(category)), id)
		}
	}
	pipe.Del(ctx, idxKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("clear_by_symbol", err)
	}

	s.publish(ctx, entity.ChangeEvent{Type: entity.ChangeTypeClear, IDs: ids})

	return nil
}

// Subscribe starts a Pub/Sub receive loop dispatching every change event to
// fn. The loop ends when ctx is cancelled or the store is closed.
func (s *RedisAssetStore) Subscribe(ctx context.Context, fn func(event entity.ChangeEvent)) error {
	channel := constant.EventChannel(s.cfg.KeyPrefix)
	s.pubsub = s.client.Subscribe(ctx, channel)

	if _, err := s.pubsub.Receive(ctx); err != nil {
		return storeErr("subscribe", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-s.pubsub.Channel():
				if !ok {
					return
				}

				var event entity.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logrus.Errorf("change event parse failed: %v", err)
					continue
				}

				fn(event)
			}
		}
	}()

	return nil
}

func (s *RedisAssetStore) publish(ctx context.Context, event entity.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.Errorf("change event marshal failed: %v", err)
		return
	}

	if err := s.client.Publish(ctx, constant.EventChannel(s.cfg.KeyPrefix), payload).Err(); err != nil {
		logrus.Errorf("change event publish failed: %v", err)
	}
}

func (s *RedisAssetStore) Close() error {
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}

	return s.client.Close()
}
