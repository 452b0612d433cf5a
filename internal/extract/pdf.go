package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"scholarqa/internal/util"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads text from PDF sources. Scanned or image-only PDFs come
// back with no extractable text and are reported as extraction failures so
// the paper can be flagged for manual handling.
type PDFExtractor struct{}

func (PDFExtractor) Extract(path string) (Extracted, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Extracted{}, fmt.Errorf("open pdf %s: %v: %w", path, err, util.ErrExtractionFailed)
	}
	defer f.Close()

	var (
		b       strings.Builder
		offsets []int
		runeLen int
	)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return Extracted{}, fmt.Errorf("extract pdf page %d of %s: %v: %w", i, path, err, util.ErrExtractionFailed)
		}
		page := util.SanitizeText(content)
		if page == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			runeLen += 2
		}
		offsets = append(offsets, runeLen)
		b.WriteString(page)
		runeLen += utf8.RuneCountInString(page)
	}
	text := b.String()
	if text == "" {
		return Extracted{}, fmt.Errorf("no extractable text in %s: %w", path, util.ErrExtractionFailed)
	}
	return Extracted{Text: text, Pages: r.NumPage(), PageOffsets: offsets}, nil
}
