package models

import (
	"time"
)

// SymbolState holds the rolling per-symbol model. ReferenceHigh,
// ReferenceLow, and AverageVolume are captured once at first-tick
// initialization and never refreshed afterward; PreviousPrice always
// holds CurrentPrice as of the prior tick, giving the two-sample window
// the edge-cross detection needs.
type SymbolState struct {
	Symbol string

	PreviousPrice float64
	CurrentPrice  float64

	ReferenceHigh float64
	ReferenceLow  float64

	Volume        float64
	AverageVolume float64

	RelativeVolume float64
	ChangePercent  float64

	LastAlertAt time.Time
	UpdatedAt   time.Time
}

// Midpoint returns the fixed anchor used for change-percent calculation.
func (s *SymbolState) Midpoint() float64 {
	return (s.ReferenceHigh + s.ReferenceLow) / 2
}

// Alert is the write-once record produced when a symbol fires.
type Alert struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Criteria string    `json:"criteria"`
	FiredAt  time.Time `json:"fired_at"`

	RelativeVolume float64 `json:"relative_volume"`
	ChangePercent  float64 `json:"change_percent"`
}
