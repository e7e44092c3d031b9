// Package normalizer turns an uploaded statement (CSV, plain text, PDF or
// XLSX) into the plain text handed to the classifier.
package normalizer

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
)

// DefaultMaxChars is the default cap on statement length, in characters.
const DefaultMaxChars = 30000

const (
	mimeCSV         = "text/csv"
	mimePlain       = "text/plain"
	mimePDF         = "application/pdf"
	mimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeOctetStream = "application/octet-stream"
)

// SampleStatement is the demo statement used by "try with example data".
const SampleStatement = `
DATA,DESCRIÇÃO,VALOR
2024-05-01,NETFLIX.COM, -55.90
2024-05-02,UBER DO BRASIL, -24.90
2024-05-03,SPOTIFY STUDENT, -11.90
2024-05-05,AMAZON PRIME, -19.90
2024-05-10,SMART FIT ACADEMIA, -129.90
2024-05-12,IFOOOD BR, -89.00
2024-05-15,ADOBE CREATIVE CLOUD, -224.00
2024-05-20,APPLE SERVICES, -14.90
2024-05-22,CHATGPT SUBSCRIPTION, -100.00
2024-05-25,PADARIA DO ZÉ, -12.50
2024-05-28,POSTO IPIRANGA, -150.00
`

// Input is one statement to normalize. When Override is non-empty it is
// used verbatim and Data is ignored.
type Input struct {
	Data     []byte
	MIMEType string
	Filename string
	Override string
}

// PDFExtractor returns the text runs of every page of a PDF, in page order.
type PDFExtractor interface {
	PageRuns(data []byte) ([][]string, error)
}

// SheetReader returns the rows of every sheet of a workbook, in sheet order.
type SheetReader interface {
	Rows(data []byte) ([][]string, error)
}

// Normalizer converts statements to text.
type Normalizer struct {
	pdf      PDFExtractor
	sheets   SheetReader
	maxChars int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPDFExtractor replaces the PDF extractor.
func WithPDFExtractor(e PDFExtractor) Option {
	return func(n *Normalizer) { n.pdf = e }
}

// WithSheetReader replaces the XLSX reader.
func WithSheetReader(r SheetReader) Option {
	return func(n *Normalizer) { n.sheets = r }
}

// WithMaxChars sets the truncation limit. Values <= 0 disable truncation.
func WithMaxChars(max int) Option {
	return func(n *Normalizer) { n.maxChars = max }
}

// New creates a Normalizer backed by the ledongthuc PDF reader and excelize.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		pdf:      &LedongthucExtractor{},
		sheets:   &ExcelizeReader{},
		maxChars: DefaultMaxChars,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the statement text for in, truncated to the configured
// number of characters.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (string, error) {
	log := logger.FromContext(ctx)

	if in.Override != "" {
		return Truncate(in.Override, n.maxChars), nil
	}

	kind := DetectType(in.MIMEType, in.Filename)
	log.Debug().
		Str("filename", in.Filename).
		Str("mime_type", in.MIMEType).
		Str("detected", kind).
		Int("bytes", len(in.Data)).
		Msg("Normalizing statement")

	var (
		text string
		err  error
	)
	switch kind {
	case mimeCSV, mimePlain:
		text = string(in.Data)
	case mimePDF:
		text, err = n.pdfText(in.Data)
	case mimeXLSX:
		text, err = n.sheetText(in.Data)
	default:
		return "", fmt.Errorf("Normalize: %q: %w", in.MIMEType, domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return "", fmt.Errorf("Normalize: %w: %w", domain.ErrUnsupportedFormat, err)
	}

	return Truncate(text, n.maxChars), nil
}

func (n *Normalizer) pdfText(data []byte) (string, error) {
	pages, err := n.pdf.PageRuns(data)
	if err != nil {
		return "", fmt.Errorf("pdfText: extracting pages: %w", err)
	}

	var b strings.Builder
	for _, runs := range pages {
		b.WriteString(strings.Join(runs, " "))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func (n *Normalizer) sheetText(data []byte) (string, error) {
	rows, err := n.sheets.Rows(data)
	if err != nil {
		return "", fmt.Errorf("sheetText: reading workbook: %w", err)
	}

	var b strings.Builder
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// DetectType returns the canonical MIME type for a statement. Parameters
// such as charset are dropped. An empty or generic type falls back to the
// filename extension.
func DetectType(mimeType, filename string) string {
	mediaType := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mediaType = parsed
	}

	if mediaType != "" && mediaType != mimeOctetStream {
		return mediaType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return mimeCSV
	case ".txt":
		return mimePlain
	case ".pdf":
		return mimePDF
	case ".xlsx":
		return mimeXLSX
	default:
		return mediaType
	}
}

// Supported reports whether Normalize can read a statement with this
// MIME type and filename.
func Supported(mimeType, filename string) bool {
	switch DetectType(mimeType, filename) {
	case mimeCSV, mimePlain, mimePDF, mimeXLSX:
		return true
	}
	return false
}

// Truncate keeps the first max characters of s. A max <= 0 keeps everything.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
