package entity

import "context"

type ProviderMode string

const (
	ProviderModePush ProviderMode = "push"
	ProviderModePoll ProviderMode = "poll"
)

// Provider is one upstream market data integration. A provider only
// translates upstream payloads into assets; connection lifecycle, retries and
// backoff belong to the ingestion supervisor, never to the provider itself.
type Provider interface {
	Name() string
	Categories() []Category
	Mode() ProviderMode
}

// PushProvider maintains a single persistent upstream session. Connect blocks
// until the session ends, delivering every transformed batch through onBatch.
// It must not reconnect on its own: it returns the terminal error and lets
// the supervisor decide.
type PushProvider interface {
	Provider
	Connect(ctx context.Context, onBatch func(assets []Asset)) error
}

// PollProvider answers one-shot fetches for a single category.
type PollProvider interface {
	Provider
	Fetch(ctx context.Context, category Category) ([]Asset, error)
}

// TurboSink receives assets straight from ingestion, bypassing the cache.
type TurboSink interface {
	PublishTurbo(assets []Asset)
}
