package engine

import (
	"testing"
	"time"

	"github.com/tickwatch/tickwatch/internal/models"
)

var testRules = Rules{
	RelativeVolumeMin: 2.0,
	ChangePercentMin:  1.0,
	Cooldown:          5 * time.Minute,
}

// feedTick pushes one tick through the store and evaluator the way the
// supervisor does: initialization samples are never evaluated.
func feedTick(t *testing.T, store *Store, rules Rules, tick models.Tick, now time.Time) *models.Alert {
	t.Helper()
	state, initialized, release := store.GetOrInit("RELIANCE", tick)
	defer release()
	if initialized {
		return nil
	}
	return Evaluate(state, tick, rules, now)
}

// passingTick qualifies on volume and change percent against testRules
// for a state initialized with high=100, low=90 (midpoint 95).
func passingTick(price, volume float64) models.Tick {
	return models.Tick{Token: "738561", Price: price, Volume: volume, High: 100, Low: 90}
}

func TestEdgeCrossRequiresTransition(t *testing.T) {
	store := NewStore()
	now := time.Now()

	// First tick initializes the baseline: refHigh=100, avgVolume=1000.
	if a := feedTick(t, store, testRules, passingTick(99, 1000), now); a != nil {
		t.Fatal("initialization sample must not fire")
	}

	// Still below the reference high: no alert.
	if a := feedTick(t, store, testRules, passingTick(99.5, 5000), now.Add(time.Second)); a != nil {
		t.Fatal("price below reference high must not fire")
	}

	// Crosses 100 with passing volume and change percent: fires.
	a := feedTick(t, store, testRules, passingTick(101, 5000), now.Add(2*time.Second))
	if a == nil {
		t.Fatal("edge-cross with passing thresholds should fire")
	}
	if a.Symbol != "RELIANCE" || a.Price != 101 {
		t.Errorf("unexpected alert %+v", a)
	}
	if a.Criteria == "" {
		t.Error("alert criteria description must name the thresholds")
	}
}

func TestAlreadyAboveNeverFires(t *testing.T) {
	store := NewStore()
	now := time.Now()

	// Initializes already above the reference high.
	feedTick(t, store, testRules, passingTick(101, 1000), now)

	// Stays above: no recorded transition from at-or-below, so no alert.
	if a := feedTick(t, store, testRules, passingTick(102, 5000), now.Add(time.Second)); a != nil {
		t.Fatal("symbol already above reference high must not fire without a transition")
	}
}

func TestConjunctiveGatingIsStrict(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		first    models.Tick
		tick     models.Tick
		wantFire bool
	}{
		{
			// Against avgVolume 1000 the 2.0 threshold needs volume > 2000.
			name:     "relative volume exactly at threshold",
			first:    passingTick(99, 1000),
			tick:     passingTick(101, 2000),
			wantFire: false,
		},
		{
			name:     "relative volume just above threshold",
			first:    passingTick(99, 1000),
			tick:     passingTick(101, 2001),
			wantFire: true,
		},
		{
			// Band (100, 99) puts the midpoint at 99.5, so a bare cross to
			// 100.01 is only +0.51% and fails the 1% change gate.
			name:     "change percent below threshold",
			first:    models.Tick{Token: "738561", Price: 99, Volume: 1000, High: 100, Low: 99},
			tick:     models.Tick{Token: "738561", Price: 100.01, Volume: 5000, High: 100, Low: 99},
			wantFire: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			feedTick(t, store, testRules, tt.first, now)
			a := feedTick(t, store, testRules, tt.tick, now.Add(time.Second))
			if (a != nil) != tt.wantFire {
				t.Errorf("fired = %v, want %v", a != nil, tt.wantFire)
			}
		})
	}
}

func TestChangePercentStrictBoundary(t *testing.T) {
	store := NewStore()
	now := time.Now()

	// Band (100.5, 99.5) puts the midpoint at exactly 100.
	rules := Rules{RelativeVolumeMin: 2.0, ChangePercentMin: 1.0, Cooldown: time.Minute}
	first := models.Tick{Token: "738561", Price: 100, Volume: 1000, High: 100.5, Low: 99.5}
	feedTick(t, store, rules, first, now)

	// Midpoint 100: price 101 is exactly +1.0%, equality must not fire.
	atBoundary := models.Tick{Token: "738561", Price: 101, Volume: 5000, High: 100.5, Low: 99.5}
	if a := feedTick(t, store, rules, atBoundary, now.Add(time.Second)); a != nil {
		t.Fatal("change percent equal to threshold must not fire")
	}
}

func TestCooldownSuppression(t *testing.T) {
	store := NewStore()
	start := time.Now()

	feedTick(t, store, testRules, passingTick(99, 1000), start)

	firedAt := start.Add(time.Second)
	if a := feedTick(t, store, testRules, passingTick(101, 5000), firedAt); a == nil {
		t.Fatal("expected initial firing")
	}

	// Dip back below, then qualify again inside the cooldown window.
	feedTick(t, store, testRules, passingTick(99, 5000), firedAt.Add(time.Second))
	within := firedAt.Add(testRules.Cooldown - time.Millisecond)
	if a := feedTick(t, store, testRules, passingTick(101, 5000), within); a != nil {
		t.Fatal("alert inside cooldown window must be suppressed")
	}

	// Dip and qualify again after the cooldown has elapsed.
	feedTick(t, store, testRules, passingTick(99, 5000), firedAt.Add(testRules.Cooldown))
	after := firedAt.Add(testRules.Cooldown + time.Millisecond)
	if a := feedTick(t, store, testRules, passingTick(101, 5000), after); a == nil {
		t.Fatal("alert after cooldown must fire")
	}
}

func TestFirstTickOnlyInitializes(t *testing.T) {
	store := NewStore()

	// Extreme first tick: would pass every threshold if evaluated.
	tick := models.Tick{Token: "738561", Price: 500, Volume: 1e9, High: 100, Low: 90}
	if a := feedTick(t, store, testRules, tick, time.Now()); a != nil {
		t.Fatal("first tick for a symbol must never produce an alert")
	}

	state, ok := store.Get("RELIANCE")
	if !ok {
		t.Fatal("first tick should create state")
	}
	if state.ReferenceHigh != 100 || state.ReferenceLow != 90 {
		t.Errorf("reference band = (%v, %v), want (100, 90)", state.ReferenceHigh, state.ReferenceLow)
	}
	if state.AverageVolume != 1e9 {
		t.Errorf("average volume = %v, want 1e9", state.AverageVolume)
	}
}

func TestBaselinesAreImmutable(t *testing.T) {
	store := NewStore()
	now := time.Now()

	feedTick(t, store, testRules, passingTick(99, 1000), now)

	// Later ticks carry different session high/low and volume; the
	// reference band and average volume must not move.
	later := models.Tick{Token: "738561", Price: 99.5, Volume: 4000, High: 140, Low: 60}
	feedTick(t, store, testRules, later, now.Add(time.Second))

	state, _ := store.Get("RELIANCE")
	if state.ReferenceHigh != 100 || state.ReferenceLow != 90 {
		t.Errorf("reference band moved to (%v, %v)", state.ReferenceHigh, state.ReferenceLow)
	}
	if state.AverageVolume != 1000 {
		t.Errorf("average volume moved to %v", state.AverageVolume)
	}
	if state.RelativeVolume != 4 {
		t.Errorf("relative volume = %v, want 4", state.RelativeVolume)
	}
}
