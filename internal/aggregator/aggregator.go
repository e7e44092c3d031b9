// Package aggregator derives totals and category breakdowns from the
// subscription items returned by the classifier.
package aggregator

import (
	"fmt"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/shopspring/decimal"
)

var monthsPerYear = decimal.NewFromInt(12)

// Totals is the derived view over a set of (active) items.
type Totals struct {
	TotalMonthly      float64                `json:"totalMonthly"`
	TotalYearly       float64                `json:"totalYearly"`
	ActiveCount       int                    `json:"activeCount"`
	CategoryBreakdown []domain.CategoryTotal `json:"categoryBreakdown"`
}

// Aggregate builds the authoritative AnalysisResult for items.
// Totals are always recomputed from the items; whatever totals the
// classifier reported are ignored here.
func Aggregate(items []domain.SubscriptionItem, insights []string) domain.AnalysisResult {
	t := sum(items, nil)

	if items == nil {
		items = []domain.SubscriptionItem{}
	}
	if insights == nil {
		insights = []string{}
	}

	return domain.AnalysisResult{
		TotalMonthly:      t.TotalMonthly,
		TotalYearly:       t.TotalYearly,
		SubscriptionCount: len(items),
		Items:             items,
		Insights:          insights,
		CategoryBreakdown: t.CategoryBreakdown,
	}
}

// RecomputeWithExclusions applies the Aggregate formula to the items whose
// active flag is true. active must have one flag per item.
func RecomputeWithExclusions(items []domain.SubscriptionItem, active []bool) (Totals, error) {
	if len(active) != len(items) {
		return Totals{}, fmt.Errorf("RecomputeWithExclusions: got %d flags for %d items", len(active), len(items))
	}
	return sum(items, active), nil
}

// CategoryRollup sums the raw amount of each category, in order of the
// first item of that category. Amounts are not normalized to monthly.
func CategoryRollup(items []domain.SubscriptionItem) []domain.CategoryTotal {
	return sum(items, nil).CategoryBreakdown
}

// MonthlyAmount returns the monthly equivalent of one item.
func MonthlyAmount(item domain.SubscriptionItem) float64 {
	return monthly(item).InexactFloat64()
}

func monthly(item domain.SubscriptionItem) decimal.Decimal {
	amount := decimal.NewFromFloat(item.Amount)
	if item.Frequency == domain.FrequencyYearly {
		return amount.Div(monthsPerYear)
	}
	return amount
}

func yearly(item domain.SubscriptionItem) decimal.Decimal {
	amount := decimal.NewFromFloat(item.Amount)
	if item.Frequency == domain.FrequencyYearly {
		return amount
	}
	return amount.Mul(monthsPerYear)
}

// sum is the single O(n) pass shared by every aggregation. A nil active
// slice means every item counts.
func sum(items []domain.SubscriptionItem, active []bool) Totals {
	totalMonthly := decimal.Zero
	totalYearly := decimal.Zero
	count := 0

	order := make([]string, 0)
	byCategory := make(map[string]decimal.Decimal)

	for i, item := range items {
		if active != nil && !active[i] {
			continue
		}
		count++
		totalMonthly = totalMonthly.Add(monthly(item))
		totalYearly = totalYearly.Add(yearly(item))

		current, seen := byCategory[item.Category]
		if !seen {
			order = append(order, item.Category)
			current = decimal.Zero
		}
		byCategory[item.Category] = current.Add(decimal.NewFromFloat(item.Amount))
	}

	breakdown := make([]domain.CategoryTotal, 0, len(order))
	for _, category := range order {
		breakdown = append(breakdown, domain.CategoryTotal{
			Category: category,
			Amount:   byCategory[category].InexactFloat64(),
		})
	}

	return Totals{
		TotalMonthly:      totalMonthly.InexactFloat64(),
		TotalYearly:       totalYearly.InexactFloat64(),
		ActiveCount:       count,
		CategoryBreakdown: breakdown,
	}
}
