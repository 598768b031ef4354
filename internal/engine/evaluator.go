package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tickwatch/tickwatch/internal/models"
)

// Rules is the process-wide alert rule configuration. Loaded once at
// startup, read-only afterward.
type Rules struct {
	RelativeVolumeMin float64
	ChangePercentMin  float64
	Cooldown          time.Duration
}

// Evaluate applies a tick to its symbol's state and decides whether an
// alert fires. The caller must hold the symbol's entry lock (see
// Store.GetOrInit); ticks for one symbol must be applied in arrival
// order because the edge-cross check compares consecutive samples.
//
// An alert fires only when all of the following hold on the updated
// state, with strict comparisons throughout:
//
//   - the price crossed the reference high on this tick
//     (previous ≤ high, current > high), not merely stayed above it;
//   - relative volume exceeds the configured minimum;
//   - change percent from the fixed midpoint exceeds the minimum;
//   - the per-symbol cooldown has elapsed since the last firing.
//
// Evaluate mutates state in place and performs no I/O.
func Evaluate(state *models.SymbolState, tick models.Tick, rules Rules, now time.Time) *models.Alert {
	state.PreviousPrice = state.CurrentPrice
	state.CurrentPrice = tick.Price
	state.Volume = tick.Volume
	state.UpdatedAt = now

	state.RelativeVolume = state.Volume / state.AverageVolume

	midpoint := state.Midpoint()
	if midpoint > 0 {
		state.ChangePercent = (state.CurrentPrice - midpoint) / midpoint * 100
	}

	crossed := state.PreviousPrice <= state.ReferenceHigh && state.CurrentPrice > state.ReferenceHigh
	if !crossed {
		return nil
	}
	if state.RelativeVolume <= rules.RelativeVolumeMin {
		return nil
	}
	if state.ChangePercent <= rules.ChangePercentMin {
		return nil
	}
	if now.Sub(state.LastAlertAt) < rules.Cooldown {
		return nil
	}

	state.LastAlertAt = now
	return &models.Alert{
		ID:     uuid.New().String(),
		Symbol: state.Symbol,
		Price:  state.CurrentPrice,
		Criteria: fmt.Sprintf(
			"crossed reference high %.2f with relative volume %.2f > %.2f and change %.2f%% > %.2f%%",
			state.ReferenceHigh, state.RelativeVolume, rules.RelativeVolumeMin,
			state.ChangePercent, rules.ChangePercentMin,
		),
		FiredAt:        now,
		RelativeVolume: state.RelativeVolume,
		ChangePercent:  state.ChangePercent,
	}
}
