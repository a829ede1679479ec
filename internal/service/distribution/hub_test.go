package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/ichie-benjamin/market-pulse/internal/constant"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/ichie-benjamin/market-pulse/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	IDs   []string        `json:"ids"`
}

func recvFrame(t *testing.T, c *Client) decodedFrame {
	t.Helper()

	select {
	case payload := <-c.Send():
		var frame decodedFrame
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return decodedFrame{}
	}
}

func recvAssets(t *testing.T, c *Client) (string, []entity.Asset) {
	t.Helper()

	frame := recvFrame(t, c)
	var assets []entity.Asset
	require.NoError(t, json.Unmarshal(frame.Data, &assets))

	return frame.Event, assets
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()

	select {
	case payload := <-c.Send():
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(t *testing.T) (*Hub, *repository.MemoryAssetStore) {
	t.Helper()

	store := repository.NewMemoryAssetStore(time.Minute)
	hub := NewHub(store)
	require.NoError(t, hub.Run(context.Background()))

	return hub, store
}

func writeAssets(t *testing.T, store *repository.MemoryAssetStore, assets ...entity.Asset) {
	t.Helper()

	_, err := store.Write(context.Background(), assets)
	require.NoError(t, err)
}

func asset(category entity.Category, symbol string, price float64) entity.Asset {
	return entity.Asset{
		Symbol:    symbol,
		Category:  category,
		Price:     price,
		Provider:  "test",
		UpdatedAt: time.Now().UnixMilli(),
	}
}

func TestHubFanOutAllAndCategory(t *testing.T) {
	hub, store := newTestHub(t)

	allClient := NewClient("all", 8)
	cryptoClient := NewClient("crypto", 8)
	stocksClient := NewClient("stocks", 8)

	hub.SubscribeAll(allClient)
	hub.SubscribeCategory(cryptoClient, entity.CategoryCrypto)
	hub.SubscribeCategory(stocksClient, entity.CategoryStocks)

	writeAssets(t, store, asset(entity.CategoryCrypto, "BTCUSD", 104000))

	event, assets := recvAssets(t, allClient)
	assert.Equal(t, constant.StreamEventUpdate, event)
	require.Len(t, assets, 1)
	assert.Equal(t, "crypto-BTCUSD", assets[0].ID)

	_, assets = recvAssets(t, cryptoClient)
	require.Len(t, assets, 1)
	assert.Equal(t, "crypto-BTCUSD", assets[0].ID)

	// a stocks subscriber never sees a crypto-only batch
	assertNoFrame(t, stocksClient)
}

func TestHubMixedBatchCategorySlices(t *testing.T) {
	hub, store := newTestHub(t)

	allClient := NewClient("all", 8)
	cryptoClient := NewClient("crypto", 8)

	hub.SubscribeAll(allClient)
	hub.SubscribeCategory(cryptoClient, entity.CategoryCrypto)

	writeAssets(t, store,
		asset(entity.CategoryCrypto, "BTCUSD", 104000),
		asset(entity.CategoryStocks, "AAPL", 227),
	)

	_, assets := recvAssets(t, allClient)
	assert.Len(t, assets, 2)

	_, assets = recvAssets(t, cryptoClient)
	require.Len(t, assets, 1)
	assert.Equal(t, entity.CategoryCrypto, assets[0].Category)
}

func TestHubSymbolSubscription(t *testing.T) {
	hub, store := newTestHub(t)

	writeAssets(t, store, asset(entity.CategoryCrypto, "BTCUSD", 104000))

	c := NewClient("sym", 8)
	hub.SubscribeSymbols(context.Background(), c, []string{"btcusd"})

	// snapshot arrives on subscribe
	event, assets := recvAssets(t, c)
	assert.Equal(t, constant.StreamEventUpdate, event)
	require.Len(t, assets, 1)
	assert.Equal(t, 104000.0, assets[0].Price)

	// incremental push on the next write, trimmed to the subscribed symbol
	writeAssets(t, store,
		asset(entity.CategoryCrypto, "BTCUSD", 104500),
		asset(entity.CategoryCrypto, "ETHUSD", 3900),
	)

	_, assets = recvAssets(t, c)
	require.Len(t, assets, 1)
	assert.Equal(t, "BTCUSD", assets[0].Symbol)
	assert.Equal(t, 104500.0, assets[0].Price)
}

func TestHubTurboIndependentOfStore(t *testing.T) {
	// nil store: turbo delivery must work with no cache at all
	hub := NewHub(nil)
	require.NoError(t, hub.Run(context.Background()))

	c := NewClient("turbo", 8)
	hub.RegisterTurbo(c, []string{"BTCUSD", "ETHUSD"})

	hub.PublishTurbo([]entity.Asset{
		asset(entity.CategoryCrypto, "BTCUSD", 104000),
		asset(entity.CategoryCrypto, "SOLUSD", 150), // not registered
		asset(entity.CategoryCrypto, "ETHUSD", 3900),
		asset(entity.CategoryCrypto, "BTCUSD", 104001),
	})

	wantSymbols := []string{"BTCUSD", "ETHUSD", "BTCUSD"}
	wantPrices := []float64{104000, 3900, 104001}

	for i, want := range wantSymbols {
		frame := recvFrame(t, c)
		assert.Equal(t, constant.StreamEventTurbo, frame.Event)

		var got entity.Asset
		require.NoError(t, json.Unmarshal(frame.Data, &got))
		assert.Equal(t, want, got.Symbol)
		assert.Equal(t, wantPrices[i], got.Price)
	}

	assertNoFrame(t, c)
}

func TestHubTurboIndependentOfSubscriptions(t *testing.T) {
	hub, store := newTestHub(t)

	c := NewClient("turbo-only", 8)
	hub.RegisterTurbo(c, []string{"BTCUSD"})

	// turbo registration alone does not opt into standard-path updates
	writeAssets(t, store, asset(entity.CategoryCrypto, "BTCUSD", 104000))
	assertNoFrame(t, c)

	hub.PublishTurbo([]entity.Asset{asset(entity.CategoryCrypto, "BTCUSD", 104001)})
	frame := recvFrame(t, c)
	assert.Equal(t, constant.StreamEventTurbo, frame.Event)
}

func TestHubRemovalBroadcast(t *testing.T) {
	hub, store := newTestHub(t)

	c := NewClient("both", 8)
	hub.SubscribeAll(c)
	hub.SubscribeCategory(c, entity.CategoryCrypto)

	writeAssets(t, store, asset(entity.CategoryCrypto, "BTCUSD", 104000))
	recvFrame(t, c) // update via the all set
	recvFrame(t, c) // update via the category set

	require.NoError(t, store.ClearAsset(context.Background(), "crypto-BTCUSD"))

	frame := recvFrame(t, c)
	assert.Equal(t, constant.StreamEventRemoved, frame.Event)
	assert.Equal(t, []string{"crypto-BTCUSD"}, frame.IDs)

	// overlapping all+category membership still yields exactly one frame
	assertNoFrame(t, c)
}

func TestHubUnsubscribeAll(t *testing.T) {
	hub, store := newTestHub(t)

	c := NewClient("gone", 8)
	hub.SubscribeAll(c)
	hub.SubscribeCategory(c, entity.CategoryCrypto)
	hub.SubscribeSymbols(context.Background(), c, []string{"BTCUSD"})
	hub.RegisterTurbo(c, []string{"BTCUSD"})

	clients, turboSymbols := hub.Stats()
	assert.Equal(t, 1, clients)
	assert.Equal(t, 1, turboSymbols)

	hub.UnsubscribeAll(c)

	clients, turboSymbols = hub.Stats()
	assert.Zero(t, clients)
	assert.Zero(t, turboSymbols)

	writeAssets(t, store, asset(entity.CategoryCrypto, "BTCUSD", 104000))
	hub.PublishTurbo([]entity.Asset{asset(entity.CategoryCrypto, "BTCUSD", 104001)})
	assertNoFrame(t, c)
}

func TestHubCloseDropsClients(t *testing.T) {
	hub, _ := newTestHub(t)

	c := NewClient("doomed", 8)
	hub.SubscribeAll(c)

	hub.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}

	// closed hub refuses new subscriptions
	late := NewClient("late", 8)
	hub.SubscribeAll(late)
	clients, _ := hub.Stats()
	assert.Zero(t, clients)
}

func TestClientEnqueueDropsWhenFull(t *testing.T) {
	c := NewClient("slow", 1)

	assert.True(t, c.Enqueue([]byte("one")))
	assert.False(t, c.Enqueue([]byte("two")), "full mailbox drops instead of blocking")

	assert.Equal(t, []byte("one"), <-c.Send())

	c.Close()
	assert.False(t, c.Enqueue([]byte("three")))
}
