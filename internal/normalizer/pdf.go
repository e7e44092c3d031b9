package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LedongthucExtractor reads page text with github.com/ledongthuc/pdf.
// Each text row of a page becomes one run.
type LedongthucExtractor struct{}

// PageRuns implements PDFExtractor. The PDF library panics on some
// malformed files; those panics are returned as errors.
func (e *LedongthucExtractor) PageRuns(data []byte) (pages [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("PageRuns: malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("PageRuns: opening pdf: %w", err)
	}

	total := r.NumPage()
	pages = make([][]string, 0, total)
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			pages = append(pages, nil)
			continue
		}

		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("PageRuns: page %d: %w", pageIndex, err)
		}

		runs := make([]string, 0, len(rows))
		for _, row := range rows {
			var b strings.Builder
			for _, t := range row.Content {
				b.WriteString(t.S)
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				runs = append(runs, s)
			}
		}
		pages = append(pages, runs)
	}

	return pages, nil
}
