package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAsset(category entity.Category, symbol string, price float64) entity.Asset {
	return entity.Asset{
		Symbol:    symbol,
		Category:  category,
		Price:     price,
		Provider:  "test",
		UpdatedAt: time.Now().UnixMilli(),
	}
}

func TestMemoryStoreWriteAndGet(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	ids, err := store.Write(ctx, []entity.Asset{testAsset(entity.CategoryCrypto, "btcusd", 104000)})
	require.NoError(t, err)
	require.Equal(t, []string{"crypto-BTCUSD"}, ids)

	asset, ok, err := store.Get(ctx, "crypto-BTCUSD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSD", asset.Symbol)
	assert.Equal(t, 104000.0, asset.Price)

	_, ok, err = store.Get(ctx, "crypto-NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreWriteClampsPercent(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	first := testAsset(entity.CategoryCrypto, "BTCUSD", 1)
	first.ChangePercent24h = 5000
	second := testAsset(entity.CategoryCrypto, "BTCUSD", 1)
	second.ChangePercent24h = -5000

	_, err := store.Write(ctx, []entity.Asset{first})
	require.NoError(t, err)
	asset, _, _ := store.Get(ctx, "crypto-BTCUSD")
	assert.Equal(t, 100.0, asset.ChangePercent24h)

	_, err = store.Write(ctx, []entity.Asset{second})
	require.NoError(t, err)
	asset, _, _ = store.Get(ctx, "crypto-BTCUSD")
	assert.Equal(t, -100.0, asset.ChangePercent24h)
}

func TestMemoryStoreWriteSkipsInvalid(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)

	ids, err := store.Write(context.Background(), []entity.Asset{
		testAsset(entity.CategoryCrypto, "BTCUSD", 104000),
		{Category: entity.CategoryCrypto, Price: 1}, // no symbol
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"crypto-BTCUSD"}, ids)
}

func TestMemoryStoreIndexesIdempotent(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	asset := testAsset(entity.CategoryCrypto, "BTCUSD", 104000)
	for i := 0; i < 3; i++ {
		asset.Price += float64(i)
		_, err := store.Write(ctx, []entity.Asset{asset})
		require.NoError(t, err)
	}

	byCategory, err := store.GetByCategory(ctx, entity.CategoryCrypto)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	bySymbol, err := store.GetBySymbols(ctx, []string{"btcusd"})
	require.NoError(t, err)
	require.Len(t, bySymbol, 1)
}

func TestMemoryStoreGetByCategory(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	_, err := store.Write(ctx, []entity.Asset{
		testAsset(entity.CategoryCrypto, "BTCUSD", 104000),
		testAsset(entity.CategoryCrypto, "ETHUSD", 3900),
		testAsset(entity.CategoryStocks, "AAPL", 227),
	})
	require.NoError(t, err)

	crypto, err := store.GetByCategory(ctx, entity.CategoryCrypto)
	require.NoError(t, err)
	assert.Len(t, crypto, 2)

	stocks, err := store.GetByCategory(ctx, entity.CategoryStocks)
	require.NoError(t, err)
	assert.Len(t, stocks, 1)

	forex, err := store.GetByCategory(ctx, entity.CategoryForex)
	require.NoError(t, err)
	assert.Empty(t, forex)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryAssetStore(20 * time.Millisecond)
	ctx := context.Background()

	_, err := store.Write(ctx, []entity.Asset{testAsset(entity.CategoryCrypto, "BTCUSD", 104000)})
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "crypto-BTCUSD")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok, err = store.Get(ctx, "crypto-BTCUSD")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must read as absent")
}

func TestMemoryStoreClearNotifications(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	var events []entity.ChangeEvent
	require.NoError(t, store.Subscribe(ctx, func(event entity.ChangeEvent) {
		events = append(events, event)
	}))

	_, err := store.Write(ctx, []entity.Asset{
		testAsset(entity.CategoryCrypto, "BTCUSD", 104000),
		testAsset(entity.CategoryStocks, "AAPL", 227),
	})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, entity.ChangeTypeUpdate, events[0].Type)
	assert.ElementsMatch(t, []string{"crypto-BTCUSD", "stocks-AAPL"}, events[0].IDs)

	require.NoError(t, store.ClearCategory(ctx, entity.CategoryCrypto))
	require.Len(t, events, 2)
	assert.Equal(t, entity.ChangeTypeClear, events[1].Type)
	assert.Equal(t, []string{"crypto-BTCUSD"}, events[1].IDs)

	remaining, err := store.GetByCategory(ctx, entity.CategoryStocks)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMemoryStoreClearBySymbol(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	ctx := context.Background()

	_, err := store.Write(ctx, []entity.Asset{
		testAsset(entity.CategoryCrypto, "BTCUSD", 104000),
		testAsset(entity.CategoryStocks, "AAPL", 227),
	})
	require.NoError(t, err)

	require.NoError(t, store.ClearBySymbol(ctx, "btcusd"))

	_, ok, err := store.Get(ctx, "crypto-BTCUSD")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(ctx, "stocks-AAPL")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreClosedRejectsWrites(t *testing.T) {
	store := NewMemoryAssetStore(time.Minute)
	require.NoError(t, store.Close())

	_, err := store.Write(context.Background(), []entity.Asset{testAsset(entity.CategoryCrypto, "BTCUSD", 1)})
	require.ErrorIs(t, err, entity.ErrStoreUnavailable)

	err = store.Subscribe(context.Background(), func(entity.ChangeEvent) {})
	require.ErrorIs(t, err, entity.ErrStoreUnavailable)
}
