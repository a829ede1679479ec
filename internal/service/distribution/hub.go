package distribution

import (
	"context"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/ichie-benjamin/market-pulse/internal/constant"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/sirupsen/logrus"
)

// Frame is the client-facing wire envelope.
type Frame struct {
	Event string   `json:"event"`
	Data  any      `json:"data,omitempty"`
	IDs   []string `json:"ids,omitempty"`
}

type clientSubs struct {
	all        bool
	categories map[entity.Category]struct{}
	symbols    map[string]struct{}
	turbo      map[string]struct{}
}

// Hub routes store change notifications and turbo-path batches to subscribed
// clients. Standard-path updates are resolved back through the store; turbo
// delivery never touches the store, so it keeps working through a cache
// outage.
type Hub struct {
	store entity.AssetStore

	mu         sync.RWMutex
	all        map[*Client]struct{}
	byCategory map[entity.Category]map[*Client]struct{}
	bySymbol   map[string]map[*Client]struct{}
	turbo      map[string]map[*Client]struct{}
	subs       map[*Client]*clientSubs
	closed     bool
}

func NewHub(store entity.AssetStore) *Hub {
	return &Hub{
		store:      store,
		all:        make(map[*Client]struct{}),
		byCategory: make(map[entity.Category]map[*Client]struct{}),
		bySymbol:   make(map[string]map[*Client]struct{}),
		turbo:      make(map[string]map[*Client]struct{}),
		subs:       make(map[*Client]*clientSubs),
	}
}

// Run attaches the hub to the store's change notifications.
func (h *Hub) Run(ctx context.Context) error {
	if h.store == nil {
		return nil
	}

	return h.store.Subscribe(ctx, h.handleChange)
}

func (h *Hub) ensureSubs(c *Client) *clientSubs {
	subs, ok := h.subs[c]
	if !ok {
		subs = &clientSubs{
			categories: make(map[entity.Category]struct{}),
			symbols:    make(map[string]struct{}),
			turbo:      make(map[string]struct{}),
		}
		h.subs[c] = subs
	}

	return subs
}

func (h *Hub) SubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.all[c] = struct{}{}
	h.ensureSubs(c).all = true
}

func (h *Hub) SubscribeCategory(c *Client, category entity.Category) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if h.byCategory[category] == nil {
		h.byCategory[category] = make(map[*Client]struct{})
	}
	h.byCategory[category][c] = struct{}{}
	h.ensureSubs(c).categories[category] = struct{}{}
}

// SubscribeSymbols registers for incremental pushes on the listed symbols and
// delivers the current snapshot from the store right away.
func (h *Hub) SubscribeSymbols(ctx context.Context, c *Client, symbols []string) {
	normalized := normalizeSymbols(symbols)
	if len(normalized) == 0 {
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	subs := h.ensureSubs(c)
	for _, symbol := range normalized {
		if h.bySymbol[symbol] == nil {
			h.bySymbol[symbol] = make(map[*Client]struct{})
		}
		h.bySymbol[symbol][c] = struct{}{}
		subs.symbols[symbol] = struct{}{}
	}
	h.mu.Unlock()

	if h.store == nil {
		return
	}

	snapshot, err := h.store.GetBySymbols(ctx, normalized)
	if err != nil {
		logrus.Errorf("symbol snapshot failed: %v", err)
		return
	}
	if len(snapshot) > 0 {
		c.Enqueue(marshalFrame(Frame{Event: constant.StreamEventUpdate, Data: snapshot}))
	}
}

// RegisterTurbo adds the client to the low-latency registry for the listed
// symbols, independent of its ordinary subscriptions.
func (h *Hub) RegisterTurbo(c *Client, symbols []string) {
	normalized := normalizeSymbols(symbols)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	subs := h.ensureSubs(c)
	for _, symbol := range normalized {
		if h.turbo[symbol] == nil {
			h.turbo[symbol] = make(map[*Client]struct{})
		}
		h.turbo[symbol][c] = struct{}{}
		subs.turbo[symbol] = struct{}{}
	}
}

// UnsubscribeAll removes the client from every set it ever joined, turbo
// included. Called once on disconnect.
func (h *Hub) UnsubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[c]
	if !ok {
		return
	}

	delete(h.all, c)
	for category := range subs.categories {
		if set := h.byCategory[category]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byCategory, category)
			}
		}
	}
	for symbol := range subs.symbols {
		if set := h.bySymbol[symbol]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.bySymbol, symbol)
			}
		}
	}
	for symbol := range subs.turbo {
		if set := h.turbo[symbol]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.turbo, symbol)
			}
		}
	}
	delete(h.subs, c)
}

// PublishTurbo delivers a batch straight from ingestion to turbo-registered
// clients. Caller order per symbol is preserved: each supervisor feeds
// sequentially and every client mailbox is FIFO.
func (h *Hub) PublishTurbo(assets []entity.Asset) {
	for i := range assets {
		asset := assets[i]

		h.mu.RLock()
		set := h.turbo[asset.Symbol]
		if len(set) == 0 {
			h.mu.RUnlock()
			continue
		}
		targets := make([]*Client, 0, len(set))
		for c := range set {
			targets = append(targets, c)
		}
		h.mu.RUnlock()

		payload := marshalFrame(Frame{Event: constant.StreamEventTurbo, Data: asset})
		for _, c := range targets {
			c.Enqueue(payload)
		}
	}
}

// handleChange reacts to one store notification: resolves the affected
// records, groups them by category and fans the result out.
func (h *Hub) handleChange(event entity.ChangeEvent) {
	if len(event.IDs) == 0 {
		return
	}

	if event.Type == entity.ChangeTypeClear {
		h.broadcastRemoval(event.IDs)
		return
	}

	assets, err := h.store.GetMany(context.Background(), event.IDs)
	if err != nil {
		logrus.Errorf("change resolve failed: %v", err)
		return
	}
	if len(assets) == 0 {
		return
	}

	byCategory := make(map[entity.Category][]entity.Asset)
	for _, asset := range assets {
		byCategory[asset.Category] = append(byCategory[asset.Category], asset)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.all) > 0 {
		payload := marshalFrame(Frame{Event: constant.StreamEventUpdate, Data: assets})
		for c := range h.all {
			c.Enqueue(payload)
		}
	}

	for category, subset := range byCategory {
		set := h.byCategory[category]
		if len(set) == 0 {
			continue
		}

		payload := marshalFrame(Frame{Event: constant.StreamEventUpdate, Data: subset})
		for c := range set {
			c.Enqueue(payload)
		}
	}

	// symbol subscribers get only their own slice of the batch
	perClient := make(map[*Client][]entity.Asset)
	for _, asset := range assets {
		for c := range h.bySymbol[asset.Symbol] {
			perClient[c] = append(perClient[c], asset)
		}
	}
	for c, subset := range perClient {
		c.Enqueue(marshalFrame(Frame{Event: constant.StreamEventUpdate, Data: subset}))
	}
}

func (h *Hub) broadcastRemoval(ids []string) {
	payload := marshalFrame(Frame{Event: constant.StreamEventRemoved, IDs: ids})

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	deliver := func(c *Client) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		c.Enqueue(payload)
	}

	for c := range h.all {
		deliver(c)
	}
	for _, id := range ids {
		category, symbol, ok := entity.SplitAssetID(id)
		if !ok {
			continue
		}
		for c := range h.byCategory[category] {
			deliver(c)
		}
		for c := range h.bySymbol[symbol] {
			deliver(c)
		}
	}
}

// Close drops every client. New subscriptions are refused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.subs))
	for c := range h.subs {
		clients = append(clients, c)
	}
	h.all = make(map[*Client]struct{})
	h.byCategory = make(map[entity.Category]map[*Client]struct{})
	h.bySymbol = make(map[string]map[*Client]struct{})
	h.turbo = make(map[string]map[*Client]struct{})
	h.subs = make(map[*Client]*clientSubs)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// Stats is surfaced by the health endpoint.
func (h *Hub) Stats() (clients int, turboSymbols int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs), len(h.turbo)
}

func normalizeSymbols(symbols []string) []string {
	normalized := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		trimmed := strings.ToUpper(strings.TrimSpace(symbol))
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}

	return normalized
}

func marshalFrame(frame Frame) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		logrus.Errorf("frame marshal failed: %v", err)
		return nil
	}

	return payload
}
