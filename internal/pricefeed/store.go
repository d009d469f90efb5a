// internal/pricefeed/store.go
package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// Store holds the latest price table. Readers always get a snapshot copy,
// so a refresh never changes a table somebody is iterating.
type Store struct {
	mu        sync.RWMutex
	prices    types.PriceTable
	updatedAt time.Time
	fetching  bool
}

func NewStore() *Store {
	return &Store{}
}

// Prices returns a copy of the current table.
func (s *Store) Prices() types.PriceTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(types.PriceTable(nil), s.prices...)
}

// UpdatedAt is the time of the last successful refresh.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Fetching reports whether a refresh is in flight.
func (s *Store) Fetching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetching
}

// Set replaces the table.
func (s *Store) Set(prices types.PriceTable) {
	cp := append(types.PriceTable(nil), prices...)
	s.mu.Lock()
	s.prices = cp
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Refresh fetches a new table through f. On failure the previous table is
// kept and the error returned.
func (s *Store) Refresh(ctx context.Context, f Fetcher) (types.PriceTable, error) {
	prices, _, err := s.refresh(ctx, func(ctx context.Context) (types.PriceTable, int, error) {
		prices, err := f.Fetch(ctx)
		return prices, 0, err
	})
	return prices, err
}

func (s *Store) refresh(ctx context.Context, fetch func(context.Context) (types.PriceTable, int, error)) (types.PriceTable, int, error) {
	s.mu.Lock()
	s.fetching = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetching = false
		s.mu.Unlock()
	}()

	prices, dropped, err := fetch(ctx)
	if err != nil {
		return nil, 0, err
	}
	s.Set(prices)
	return prices, dropped, nil
}
