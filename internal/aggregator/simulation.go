package aggregator

import (
	"fmt"

	"github.com/dvloznov/quantoda/internal/domain"
)

// Simulation holds the what-if state for one analysis: the immutable item
// list plus a transient active flag per item. Totals are recomputed
// synchronously on every change.
type Simulation struct {
	items    []domain.SubscriptionItem
	active   []bool
	baseline Totals
}

// NewSimulation starts a simulation with every item active.
func NewSimulation(items []domain.SubscriptionItem) *Simulation {
	active := make([]bool, len(items))
	for i := range active {
		active[i] = true
	}
	return &Simulation{
		items:    items,
		active:   active,
		baseline: sum(items, nil),
	}
}

// NewSimulationWithFlags starts a simulation from a full set of active
// flags, one per item.
func NewSimulationWithFlags(items []domain.SubscriptionItem, active []bool) (*Simulation, error) {
	if len(active) != len(items) {
		return nil, fmt.Errorf("NewSimulationWithFlags: got %d flags for %d items", len(active), len(items))
	}
	flags := make([]bool, len(active))
	copy(flags, active)
	return &Simulation{
		items:    items,
		active:   flags,
		baseline: sum(items, nil),
	}, nil
}

// Toggle flips the active flag of item i and returns the new totals.
func (s *Simulation) Toggle(i int) (Totals, error) {
	if err := s.check(i); err != nil {
		return Totals{}, err
	}
	s.active[i] = !s.active[i]
	return s.Totals(), nil
}

// SetActive sets the active flag of item i and returns the new totals.
func (s *Simulation) SetActive(i int, active bool) (Totals, error) {
	if err := s.check(i); err != nil {
		return Totals{}, err
	}
	s.active[i] = active
	return s.Totals(), nil
}

// Active reports whether item i is included.
func (s *Simulation) Active(i int) bool {
	return i >= 0 && i < len(s.active) && s.active[i]
}

// Totals returns the totals for the currently active items.
func (s *Simulation) Totals() Totals {
	return sum(s.items, s.active)
}

// Savings returns how much less is spent per month and per year compared
// with keeping every subscription.
func (s *Simulation) Savings() (monthly, yearly float64) {
	current := s.Totals()
	return s.baseline.TotalMonthly - current.TotalMonthly, s.baseline.TotalYearly - current.TotalYearly
}

func (s *Simulation) check(i int) error {
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("item index %d out of range [0,%d)", i, len(s.items))
	}
	return nil
}
