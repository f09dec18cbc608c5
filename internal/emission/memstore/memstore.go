// Package memstore provides an in-memory implementation of emission.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// Store holds assets and events in memory. Suitable for dev/testing.
type Store struct {
	mu     sync.RWMutex
	assets map[string]emission.Asset  // site ID -> asset
	events map[string]*emission.Event // event ID -> event
	order  []string                   // event IDs in creation order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		assets: make(map[string]emission.Asset),
		events: make(map[string]*emission.Event),
	}
}

// ListAssets returns every asset ordered by site ID.
func (s *Store) ListAssets(_ context.Context) ([]emission.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]emission.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

// GetAsset retrieves an asset by site ID. Returns a copy.
func (s *Store) GetAsset(_ context.Context, siteID string) (*emission.Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[siteID]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

// PutAsset inserts or replaces an asset.
func (s *Store) PutAsset(_ context.Context, a *emission.Asset) error {
	if a.SiteID == "" {
		return &emission.ValidationError{Field: "site_id", Reason: "missing"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.SiteID] = *a
	return nil
}

// List returns copies of every event in creation order.
func (s *Store) List(_ context.Context) ([]*emission.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*emission.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id].Clone())
	}
	return out, nil
}

// Get retrieves an event by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*emission.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

// Create stores a copy of a new event. An existing ID is left untouched and
// reported as created=false.
func (s *Store) Create(_ context.Context, e *emission.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return false, nil
	}
	s.events[e.ID] = e.Clone()
	s.order = append(s.order, e.ID)
	return true, nil
}

// Update runs fn against a copy of the event under the write lock and commits the
// copy when fn reports a change.
func (s *Store) Update(_ context.Context, id string, fn emission.Mutator) (*emission.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %q: %w", id, emission.ErrNotFound)
	}
	cp := cur.Clone()
	changed, err := fn(cp)
	if err != nil {
		return nil, err
	}
	if changed {
		s.events[id] = cp.Clone()
	}
	return cp, nil
}
