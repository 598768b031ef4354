package models

import "time"

// Tick is a single market data update for one instrument as delivered by
// the upstream feed. High and Low are session hints and may be zero.
type Tick struct {
	Token  string  `json:"instrument_token"`
	Price  float64 `json:"last_price"`
	Volume float64 `json:"volume"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`

	ReceivedAt time.Time `json:"-"`
}
