package history

import (
	"sort"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
)

// TrendPoint is one analysis on the chronological spending line.
type TrendPoint struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	TotalMonthly      float64   `json:"totalMonthly"`
	SubscriptionCount int       `json:"subscriptionCount"`
	// Delta is the change in monthly spend vs the previous analysis.
	Delta float64 `json:"delta"`
}

// Trend summarizes how monthly spending evolved across analyses.
type Trend struct {
	Points []TrendPoint `json:"points"`
	// TotalSavings is first minus last monthly total; negative means spend grew.
	TotalSavings float64 `json:"totalSavings"`
	Saving       bool    `json:"saving"`
}

// BuildTrend orders records oldest first and computes deltas.
func BuildTrend(records []domain.HistoryRecord) Trend {
	sorted := make([]domain.HistoryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	points := make([]TrendPoint, 0, len(sorted))
	for i, r := range sorted {
		p := TrendPoint{
			ID:                r.ID,
			CreatedAt:         r.CreatedAt,
			TotalMonthly:      r.TotalMonthly,
			SubscriptionCount: r.SubscriptionCount,
		}
		if i > 0 {
			p.Delta = r.TotalMonthly - sorted[i-1].TotalMonthly
		}
		points = append(points, p)
	}

	t := Trend{Points: points}
	if len(points) > 0 {
		t.TotalSavings = points[0].TotalMonthly - points[len(points)-1].TotalMonthly
		t.Saving = t.TotalSavings > 0
	}
	return t
}

// Comparison is the difference between two analyses.
type Comparison struct {
	From         string   `json:"from"`
	To           string   `json:"to"`
	DeltaMonthly float64  `json:"deltaMonthly"`
	DeltaYearly  float64  `json:"deltaYearly"`
	Added        []string `json:"added"`
	Removed      []string `json:"removed"`
}

// Compare reports what changed from one analysis to another. Items are
// matched by name.
func Compare(from, to domain.HistoryRecord) Comparison {
	before := make(map[string]bool, len(from.Items))
	for _, it := range from.Items {
		before[it.Name] = true
	}
	after := make(map[string]bool, len(to.Items))
	for _, it := range to.Items {
		after[it.Name] = true
	}

	c := Comparison{
		From:         from.ID,
		To:           to.ID,
		DeltaMonthly: to.TotalMonthly - from.TotalMonthly,
		DeltaYearly:  to.TotalYearly - from.TotalYearly,
		Added:        []string{},
		Removed:      []string{},
	}
	for _, it := range to.Items {
		if !before[it.Name] {
			c.Added = append(c.Added, it.Name)
		}
	}
	for _, it := range from.Items {
		if !after[it.Name] {
			c.Removed = append(c.Removed, it.Name)
		}
	}
	return c
}
