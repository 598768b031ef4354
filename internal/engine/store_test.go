package engine

import (
	"sync"
	"testing"

	"github.com/tickwatch/tickwatch/internal/models"
)

func TestGetOrInitSyntheticDefaults(t *testing.T) {
	store := NewStore()

	// First tick without high/low or volume: the band is synthesized at
	// ±1% of the price and average volume falls back to the default.
	tick := models.Tick{Token: "738561", Price: 200}
	state, initialized, release := store.GetOrInit("RELIANCE", tick)
	release()

	if !initialized {
		t.Fatal("first observation should initialize")
	}
	if state.ReferenceHigh != 202 || state.ReferenceLow != 198 {
		t.Errorf("synthetic band = (%v, %v), want (202, 198)", state.ReferenceHigh, state.ReferenceLow)
	}
	if state.AverageVolume != defaultAverageVolume {
		t.Errorf("average volume = %v, want default %v", state.AverageVolume, defaultAverageVolume)
	}

	// RelativeVolume stays well-defined even with the zero first volume.
	if state.AverageVolume <= 0 {
		t.Error("average volume must be positive to avoid division by zero")
	}
}

func TestGetOrInitReturnsExisting(t *testing.T) {
	store := NewStore()

	tick := models.Tick{Token: "738561", Price: 100, Volume: 1000, High: 110, Low: 90}
	first, initialized, release := store.GetOrInit("RELIANCE", tick)
	release()
	if !initialized {
		t.Fatal("expected initialization")
	}

	second, initialized, release := store.GetOrInit("RELIANCE", models.Tick{Token: "738561", Price: 105})
	release()
	if initialized {
		t.Fatal("second observation must not re-initialize")
	}
	if first != second {
		t.Error("expected the same state entry on subsequent observations")
	}
	if store.Len() != 1 {
		t.Errorf("store tracks %d symbols, want 1", store.Len())
	}
}

func TestStoreConcurrentSymbols(t *testing.T) {
	store := NewStore()
	symbols := []string{"RELIANCE", "TCS", "HDFCBANK", "INFY"}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tick := models.Tick{Price: 100 + float64(i), Volume: 1000}
				state, _, release := store.GetOrInit(symbol, tick)
				state.CurrentPrice = tick.Price
				release()
			}
		}(symbol)
	}
	wg.Wait()

	if store.Len() != len(symbols) {
		t.Errorf("store tracks %d symbols, want %d", store.Len(), len(symbols))
	}
}
