package emission

import "context"

// Mutator changes an event in place. It reports whether anything changed; the
// store commits only changed events and discards the copy on error.
type Mutator func(e *Event) (changed bool, err error)

// Store is the persistence interface for assets and events.
//
// Update serializes mutators per event ID: at most one Mutator runs against a given
// event at a time, and a Mutator always sees the latest committed state.
type Store interface {
	ListAssets(ctx context.Context) ([]Asset, error)
	GetAsset(ctx context.Context, siteID string) (*Asset, bool, error)
	PutAsset(ctx context.Context, a *Asset) error

	List(ctx context.Context) ([]*Event, error)
	Get(ctx context.Context, id string) (*Event, bool, error)
	Create(ctx context.Context, e *Event) (created bool, err error)
	Update(ctx context.Context, id string, fn Mutator) (*Event, error)
}
