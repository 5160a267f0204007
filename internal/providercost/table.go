// Package providercost holds the static mapping from AI provider identifiers
// to the credits charged per invocation.
package providercost

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/thinktestai/thinktest/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("provider.cost",
	fx.Provide(NewFromPricing),
)

var ErrInvalidCost = errors.New("invalid_provider_cost")

// Entry is one row of the cost table.
type Entry struct {
	Provider string          `json:"provider"`
	Cost     decimal.Decimal `json:"cost"`
}

// Table is read-only after construction. The zero value is not usable.
type Table struct {
	costs       map[string]decimal.Decimal
	defaultCost decimal.Decimal
}

// New copies costs into an immutable table. defaultCost is charged for
// providers missing from costs and must be positive.
func New(costs map[string]decimal.Decimal, defaultCost decimal.Decimal) (*Table, error) {
	if !defaultCost.IsPositive() {
		return nil, fmt.Errorf("%w: default cost must be positive", ErrInvalidCost)
	}
	copied := make(map[string]decimal.Decimal, len(costs))
	for provider, cost := range costs {
		key := normalize(provider)
		if key == "" {
			return nil, fmt.Errorf("%w: empty provider identifier", ErrInvalidCost)
		}
		if !cost.IsPositive() {
			return nil, fmt.Errorf("%w: cost for %s must be positive", ErrInvalidCost, key)
		}
		copied[key] = cost
	}
	return &Table{costs: copied, defaultCost: defaultCost}, nil
}

func NewFromPricing(p config.Pricing) (*Table, error) {
	return New(p.Costs, p.DefaultCost)
}

// Cost returns the credits charged for one invocation of provider.
func (t *Table) Cost(provider string) decimal.Decimal {
	if cost, ok := t.costs[normalize(provider)]; ok {
		return cost
	}
	return t.defaultCost
}

func (t *Table) Known(provider string) bool {
	_, ok := t.costs[normalize(provider)]
	return ok
}

func (t *Table) DefaultCost() decimal.Decimal {
	return t.defaultCost
}

// Entries lists the configured providers sorted by identifier.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.costs))
	for provider, cost := range t.costs {
		out = append(out, Entry{Provider: provider, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
