package notionsync

import (
	"strconv"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/quantoda/internal/aggregator"
	"github.com/dvloznov/quantoda/internal/domain"
)

// Property names of the subscriptions database.
const (
	PropName           = "Name"
	PropItemKey        = "Item Key"
	PropAnalysisID     = "Analysis ID"
	PropAmount         = "Amount"
	PropMonthlyAmount  = "Monthly Amount"
	PropFrequency      = "Frequency"
	PropCategory       = "Category"
	PropConfidence     = "Confidence"
	PropRecommendation = "Recommendation"
	PropAnalyzedAt     = "Analyzed At"
)

// ItemKey identifies one item of one analysis across exports.
func ItemKey(analysisID string, index int) string {
	return analysisID + "#" + strconv.Itoa(index)
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// ItemToNotionProperties converts item index of record to page properties.
func ItemToNotionProperties(record domain.HistoryRecord, index int) notionapi.Properties {
	item := record.Items[index]

	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(item.Name),
		},
		PropItemKey: notionapi.RichTextProperty{
			RichText: richText(ItemKey(record.ID, index)),
		},
		PropAnalysisID: notionapi.RichTextProperty{
			RichText: richText(record.ID),
		},
		PropAmount: notionapi.NumberProperty{
			Number: item.Amount,
		},
		PropMonthlyAmount: notionapi.NumberProperty{
			Number: aggregator.MonthlyAmount(item),
		},
		PropFrequency: notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(item.Frequency),
			},
		},
		PropConfidence: notionapi.NumberProperty{
			Number: item.Confidence,
		},
	}

	if item.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: item.Category,
			},
		}
	}

	if item.Recommendation != "" {
		props[PropRecommendation] = notionapi.RichTextProperty{
			RichText: richText(item.Recommendation),
		}
	}

	if !record.CreatedAt.IsZero() {
		d := notionapi.Date(record.CreatedAt.In(time.UTC))
		props[PropAnalyzedAt] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &d,
			},
		}
	}

	return props
}

// extractItemKey returns the Item Key of a page, or "" when missing.
func extractItemKey(page notionapi.Page) string {
	if prop, ok := page.Properties[PropItemKey]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
