// Package engine holds the per-symbol state store and the alert
// evaluation logic. The evaluator is pure; persistence and broadcast
// belong to the caller.
package engine

import (
	"sync"
	"time"

	"github.com/tickwatch/tickwatch/internal/models"
)

const (
	// syntheticBand is the ±fraction of the first price used to invent a
	// reference band when the first tick carries no high/low hint.
	syntheticBand = 0.01

	// defaultAverageVolume stands in when the first observed volume is
	// zero, keeping relative volume well-defined.
	defaultAverageVolume = 1.0
)

// Store owns all mutable per-symbol state. The map is guarded by an
// RWMutex; each entry carries its own mutex so updates for different
// symbols proceed independently while updates for one symbol serialize.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state *models.SymbolState
}

// NewStore returns an empty store. Entries are created lazily on first
// tick and never destroyed during the process lifetime.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// GetOrInit returns the state for symbol, creating it from the tick's
// fields on first observation. The second return reports whether the
// entry was just initialized; a newly initialized symbol is a baseline
// sample only and must not be evaluated for alerts.
//
// The returned release function unlocks the per-symbol entry and must be
// called once the caller has finished updating the state.
func (s *Store) GetOrInit(symbol string, tick models.Tick) (state *models.SymbolState, initialized bool, release func()) {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if e, ok = s.entries[symbol]; !ok {
			e = &entry{state: initState(symbol, tick)}
			s.entries[symbol] = e
			initialized = true
		}
		s.mu.Unlock()
	}

	e.mu.Lock()
	return e.state, initialized, e.mu.Unlock
}

// initState builds the baseline sample for a symbol from its first tick,
// applying the synthetic defaults for absent high/low and zero volume.
func initState(symbol string, tick models.Tick) *models.SymbolState {
	refHigh, refLow := tick.High, tick.Low
	if refHigh <= 0 || refLow <= 0 {
		refHigh = tick.Price * (1 + syntheticBand)
		refLow = tick.Price * (1 - syntheticBand)
	}

	avgVolume := tick.Volume
	if avgVolume <= 0 {
		avgVolume = defaultAverageVolume
	}

	return &models.SymbolState{
		Symbol:        symbol,
		PreviousPrice: tick.Price,
		CurrentPrice:  tick.Price,
		ReferenceHigh: refHigh,
		ReferenceLow:  refLow,
		Volume:        tick.Volume,
		AverageVolume: avgVolume,
		UpdatedAt:     time.Now(),
	}
}

// Get returns a copy of the state for symbol, if present. Intended for
// inspection and tests, not for updates.
func (s *Store) Get(symbol string) (models.SymbolState, bool) {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()
	if !ok {
		return models.SymbolState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state, true
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
