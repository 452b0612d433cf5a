package extract

import (
	"fmt"
	"os"

	"scholarqa/internal/util"
)

// TextExtractor handles pre-extracted sidecar .txt files, the common case
// when text extraction ran in an earlier offline step.
type TextExtractor struct{}

func (TextExtractor) Extract(path string) (Extracted, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Extracted{}, fmt.Errorf("read text file %s: %v: %w", path, err, util.ErrExtractionFailed)
	}
	text := util.SanitizeText(string(b))
	if text == "" {
		return Extracted{}, fmt.Errorf("empty text file %s: %w", path, util.ErrExtractionFailed)
	}
	return Extracted{Text: text, Pages: 1, PageOffsets: []int{0}}, nil
}
