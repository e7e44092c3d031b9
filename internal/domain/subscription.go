package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Frequency is the billing cycle of a subscription.
type Frequency string

const (
	// FrequencyMonthly is charged every month.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly is charged once a year.
	FrequencyYearly Frequency = "yearly"
)

// ParseFrequency maps a classifier-provided string onto a Frequency.
// Matching is case-insensitive; an empty value means monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "mensal":
		return FrequencyMonthly, nil
	case "yearly", "annual", "anual":
		return FrequencyYearly, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// SubscriptionItem is one recurring charge found in a statement.
// Items are produced only by the classifier boundary and never mutated.
type SubscriptionItem struct {
	Name           string    `json:"name"`
	Amount         float64   `json:"amount"`
	Frequency      Frequency `json:"frequency"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	Recommendation string    `json:"recommendation,omitempty"`
}

// Validate checks an item that did not come through the classifier,
// such as one posted back by a client for a simulation.
func (it SubscriptionItem) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("empty name")
	}
	if math.IsNaN(it.Amount) || math.IsInf(it.Amount, 0) || it.Amount <= 0 {
		return fmt.Errorf("invalid amount %v", it.Amount)
	}
	if it.Frequency != FrequencyMonthly && it.Frequency != FrequencyYearly {
		return fmt.Errorf("unknown frequency %q", it.Frequency)
	}
	if math.IsNaN(it.Confidence) || it.Confidence < 0 || it.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", it.Confidence)
	}
	return nil
}

// CategoryTotal is the sum of raw item amounts for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// AnalysisResult is the authoritative outcome of one statement analysis.
// SubscriptionCount always equals len(Items) and the totals are derived
// from Items. Identifier and timestamp are carried by HistoryRecord.
type AnalysisResult struct {
	TotalMonthly      float64            `json:"totalMonthly"`
	TotalYearly       float64            `json:"totalYearly"`
	SubscriptionCount int                `json:"subscriptionCount"`
	Items             []SubscriptionItem `json:"items"`
	Insights          []string           `json:"insights"`
	CategoryBreakdown []CategoryTotal    `json:"categoryBreakdown"`
}

// HistoryRecord is an AnalysisResult stamped with an identifier and
// creation time. Records are never mutated once stored.
type HistoryRecord struct {
	AnalysisResult
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
