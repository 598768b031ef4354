// Package models defines the core domain entities: instruments, ticks,
// per-symbol rolling state, and alert records.
package models

import (
	"errors"
	"fmt"
)

// Instrument pairs an upstream-assigned token with a display symbol.
type Instrument struct {
	Token  string `mapstructure:"token" json:"token"`
	Symbol string `mapstructure:"symbol" json:"symbol"`
}

// Validate checks instrument field constraints.
func (i Instrument) Validate() error {
	if i.Token == "" {
		return errors.New("instrument token must not be empty")
	}
	if i.Symbol == "" {
		return errors.New("instrument symbol must not be empty")
	}
	return nil
}

// Directory is a fixed token→symbol mapping built once from the
// configured watchlist. No instrument is added or removed at runtime.
type Directory struct {
	bySymbol map[string]string
	byToken  map[string]string
	tokens   []string
}

// NewDirectory builds a directory from the watchlist. Duplicate tokens or
// symbols are rejected; the mapping must stay a bijection.
func NewDirectory(watchlist []Instrument) (*Directory, error) {
	d := &Directory{
		byToken:  make(map[string]string, len(watchlist)),
		bySymbol: make(map[string]string, len(watchlist)),
		tokens:   make([]string, 0, len(watchlist)),
	}
	for _, inst := range watchlist {
		if err := inst.Validate(); err != nil {
			return nil, fmt.Errorf("invalid instrument: %w", err)
		}
		if _, ok := d.byToken[inst.Token]; ok {
			return nil, fmt.Errorf("duplicate instrument token: %s", inst.Token)
		}
		if _, ok := d.bySymbol[inst.Symbol]; ok {
			return nil, fmt.Errorf("duplicate instrument symbol: %s", inst.Symbol)
		}
		d.byToken[inst.Token] = inst.Symbol
		d.bySymbol[inst.Symbol] = inst.Token
		d.tokens = append(d.tokens, inst.Token)
	}
	if len(d.tokens) == 0 {
		return nil, errors.New("watchlist must contain at least one instrument")
	}
	return d, nil
}

// Resolve returns the symbol for an upstream token.
func (d *Directory) Resolve(token string) (string, bool) {
	symbol, ok := d.byToken[token]
	return symbol, ok
}

// Tokens returns every watched token in watchlist order, for subscription.
func (d *Directory) Tokens() []string {
	out := make([]string, len(d.tokens))
	copy(out, d.tokens)
	return out
}

// Len returns the number of watched instruments.
func (d *Directory) Len() int {
	return len(d.tokens)
}
