package classifier

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/microcosm-cc/bluemonday"
)

const (
	schemaCanonical = "canonical"
	schemaLegacy    = "legacy"

	// DefaultCategory replaces an empty category.
	DefaultCategory = "Uncategorized"
)

var strictPolicy = bluemonday.StrictPolicy()

// rawItem accepts both the canonical and legacy item shapes.
type rawItem struct {
	Name           *string  `json:"name"`
	Amount         *float64 `json:"amount"`
	Frequency      *string  `json:"frequency"`
	Category       *string  `json:"category"`
	Confidence     *float64 `json:"confidence"`
	Recommendation *string  `json:"recommendation"`
}

type canonicalResponse struct {
	TotalMonthly      *float64  `json:"totalMonthly"`
	TotalYearly       *float64  `json:"totalYearly"`
	SubscriptionCount *int      `json:"subscriptionCount"`
	Items             []rawItem `json:"items"`
	Insights          []string  `json:"insights"`
}

type legacyResponse struct {
	Subscriptions []rawItem `json:"subscriptions"`
	TotalMonthly  *float64  `json:"total_monthly"`
	SavingsTips   []string  `json:"savings_tips"`
}

// ParseResponse converts raw model text into a Classification. Both the
// canonical schema and the legacy {subscriptions, total_monthly,
// savings_tips} schema are accepted; anything else, and any malformed item,
// is an ErrResponseParse.
func ParseResponse(raw string) (*Classification, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("ParseResponse: empty response: %w", domain.ErrResponseParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, fmt.Errorf("ParseResponse: %v: %w", err, domain.ErrResponseParse)
	}

	switch {
	case present(fields, "items"):
		return parseCanonical(clean)
	case present(fields, "subscriptions"):
		return parseLegacy(clean)
	default:
		return nil, fmt.Errorf("ParseResponse: no items in response: %w", domain.ErrResponseParse)
	}
}

func present(fields map[string]json.RawMessage, key string) bool {
	v, ok := fields[key]
	return ok && strings.TrimSpace(string(v)) != "null"
}

func parseCanonical(clean string) (*Classification, error) {
	var resp canonicalResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, fmt.Errorf("parseCanonical: %v: %w", err, domain.ErrResponseParse)
	}

	items, err := convertItems(resp.Items)
	if err != nil {
		return nil, err
	}

	return &Classification{
		Items:                items,
		Insights:             sanitizeAll(resp.Insights),
		ReportedTotalMonthly: resp.TotalMonthly,
		ReportedTotalYearly:  resp.TotalYearly,
		ReportedCount:        resp.SubscriptionCount,
		RawJSON:              clean,
		Schema:               schemaCanonical,
	}, nil
}

func parseLegacy(clean string) (*Classification, error) {
	var resp legacyResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, fmt.Errorf("parseLegacy: %v: %w", err, domain.ErrResponseParse)
	}

	items, err := convertItems(resp.Subscriptions)
	if err != nil {
		return nil, err
	}

	return &Classification{
		Items:                items,
		Insights:             sanitizeAll(resp.SavingsTips),
		ReportedTotalMonthly: resp.TotalMonthly,
		RawJSON:              clean,
		Schema:               schemaLegacy,
	}, nil
}

func convertItems(raw []rawItem) ([]domain.SubscriptionItem, error) {
	items := make([]domain.SubscriptionItem, 0, len(raw))
	for i, r := range raw {
		item, err := convertItem(r)
		if err != nil {
			return nil, fmt.Errorf("convertItems: item %d: %v: %w", i, err, domain.ErrResponseParse)
		}
		items = append(items, item)
	}
	return items, nil
}

func convertItem(r rawItem) (domain.SubscriptionItem, error) {
	var item domain.SubscriptionItem

	if r.Name == nil {
		return item, fmt.Errorf("missing name")
	}
	item.Name = sanitize(*r.Name)
	if item.Name == "" {
		return item, fmt.Errorf("empty name")
	}

	if r.Amount == nil {
		return item, fmt.Errorf("missing amount")
	}
	amount := *r.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount == 0 {
		return item, fmt.Errorf("invalid amount %v", amount)
	}
	item.Amount = math.Abs(amount)

	freq := ""
	if r.Frequency != nil {
		freq = *r.Frequency
	}
	frequency, err := domain.ParseFrequency(freq)
	if err != nil {
		return item, err
	}
	item.Frequency = frequency

	if r.Category != nil {
		item.Category = sanitize(*r.Category)
	}
	if item.Category == "" {
		item.Category = DefaultCategory
	}

	if r.Confidence != nil {
		c := *r.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return item, fmt.Errorf("confidence %v out of range", c)
		}
		item.Confidence = c
	}

	if r.Recommendation != nil {
		item.Recommendation = sanitize(*r.Recommendation)
	}

	return item, nil
}

// sanitize strips any markup from model-provided text.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if clean := sanitize(s); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	return strings.TrimSpace(s)
}
