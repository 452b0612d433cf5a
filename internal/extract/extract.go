package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"scholarqa/internal/util"
)

// Extracted is the cleaned full text of a paper source document. PageOffsets
// holds the rune offset in Text where each contributing page begins, so a
// chunk's char range can be traced back to a page in the source document.
type Extracted struct {
	Text        string
	Pages       int
	PageOffsets []int
}

// Extractor pulls plain text out of one source document format.
type Extractor interface {
	Extract(path string) (Extracted, error)
}

// ForPath picks an extractor by file extension. Unknown extensions fail as
// extraction failures so ingestion flags the paper instead of aborting the
// batch.
func ForPath(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDFExtractor{}, nil
	case ".txt", ".text":
		return TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported source format %q: %w", filepath.Ext(path), util.ErrExtractionFailed)
	}
}

// FromFile extracts text from path using the extension-matched extractor.
func FromFile(path string) (Extracted, error) {
	ex, err := ForPath(path)
	if err != nil {
		return Extracted{}, err
	}
	return ex.Extract(path)
}
