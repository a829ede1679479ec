package entity

import "context"

type ChangeType string

const (
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeClear  ChangeType = "clear"
)

// ChangeEvent is published on the store's broadcast channel after every
// durable write or clear; subscribers that re-read the store on receipt are
// guaranteed to observe the change.
type ChangeEvent struct {
	Type ChangeType `json:"type"`
	IDs  []string   `json:"ids"`
}

// AssetStore is the shared state cache holding latest-known assets plus
// category/symbol indexes and the change-notification channel.
type AssetStore interface {
	Write(ctx context.Context, assets []Asset) ([]string, error)
	Get(ctx context.Context, id string) (*Asset, bool, error)
	GetMany(ctx context.Context, ids []string) ([]Asset, error)
	GetByCategory(ctx context.Context, category Category) ([]Asset, error)
	GetBySymbols(ctx context.Context, symbols []string) ([]Asset, error)
	ClearAll(ctx context.Context) error
	ClearCategory(ctx context.Context, category Category) error
	ClearAsset(ctx context.Context, id string) error
	ClearBySymbol(ctx context.Context, symbol string) error
	Subscribe(ctx context.Context, fn func(event ChangeEvent)) error
	Close() error
}

// CategoryHealth is the per-category status surfaced by the health endpoint.
type CategoryHealth struct {
	Provider    string `json:"provider"`
	Initialized bool   `json:"initialized"`
	Live        bool   `json:"live"`
}
