// Package analytics aggregates order events into process-local counters.
// The state is not persisted and resets on restart.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// SKUCount is the quantity tallied for one normalized sku.
type SKUCount struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// State is the running aggregate owned by one consumer loop.
type State struct {
	Orders  int
	Revenue decimal.Decimal
	SKUs    map[string]int
}

// NewState returns an empty aggregate.
func NewState() *State {
	return &State{SKUs: make(map[string]int)}
}

// Apply folds one event into s. Items with an empty sku or a non-positive quantity
// count towards the order but not towards the sku tally.
func (s *State) Apply(ev *order.Event) {
	if ev == nil {
		return
	}
	if s.SKUs == nil {
		s.SKUs = make(map[string]int)
	}

	s.Orders++
	s.Revenue = s.Revenue.Add(decimal.NewFromFloat(ev.Total))

	for _, it := range ev.Items {
		sku := order.NormalizeSKU(it.SKU)
		if sku == "" || it.Qty <= 0 {
			continue
		}
		s.SKUs[sku] += it.Qty
	}
}

// Summary is a point-in-time view of State.
type Summary struct {
	Orders  int
	Revenue decimal.Decimal
	Top     []SKUCount
}

// Summarize reports the order count, revenue rounded to cents and the k skus with the
// highest quantity. Ties are broken by sku so the result is deterministic.
func Summarize(s *State, k int) Summary {
	sum := Summary{Orders: s.Orders, Revenue: s.Revenue.RoundBank(2)}

	counts := make([]SKUCount, 0, len(s.SKUs))
	for sku, qty := range s.SKUs {
		counts = append(counts, SKUCount{SKU: sku, Qty: qty})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Qty != counts[j].Qty {
			return counts[i].Qty > counts[j].Qty
		}
		return counts[i].SKU < counts[j].SKU
	})

	if k < 0 {
		k = 0
	}
	if k < len(counts) {
		counts = counts[:k]
	}
	sum.Top = counts
	return sum
}
