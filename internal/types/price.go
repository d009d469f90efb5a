// internal/types/price.go
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenPrice is one row of the external USD price feed.
type TokenPrice struct {
	Contract string `json:"contract"`
	Price    string `json:"price"`
	Symbol   string `json:"symbol"`
}

// Decimal parses the price.
func (p TokenPrice) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price for %s: %w", p.Contract, err)
	}
	return d, nil
}

// PriceTable is a read-only snapshot of the price feed.
type PriceTable []TokenPrice

// Lookup returns the last entry for contract. Later rows override earlier
// ones, matching how the feed is folded on the client.
func (t PriceTable) Lookup(contract string) (TokenPrice, bool) {
	var (
		found TokenPrice
		ok    bool
	)
	for _, p := range t {
		if p.Contract == contract {
			found, ok = p, true
		}
	}
	return found, ok
}

// Valid returns only the rows whose price parses, dropping the rest.
// The second value counts the dropped rows.
func (t PriceTable) Valid() (PriceTable, int) {
	out := make(PriceTable, 0, len(t))
	dropped := 0
	for _, p := range t {
		if p.Contract == "" {
			dropped++
			continue
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			dropped++
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}
