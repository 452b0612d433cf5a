package extract

import (
	"os"
	"path/filepath"
	"testing"

	"scholarqa/internal/util"

	"github.com/stretchr/testify/require"
)

func TestTextExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.txt")
	require.NoError(t, os.WriteFile(path, []byte("Deep learning\x00 methods.\n"), 0o644))

	got, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, "Deep learning methods.", got.Text)
	require.Equal(t, 1, got.Pages)
	require.Equal(t, []int{0}, got.PageOffsets)
}

func TestTextExtractorEmptyFileFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n "), 0o644))

	_, err := FromFile(path)
	require.ErrorIs(t, err, util.ErrExtractionFailed)
}

func TestForPathUnknownExtension(t *testing.T) {
	_, err := FromFile("paper.docx")
	require.ErrorIs(t, err, util.ErrExtractionFailed)
}

func TestPDFExtractorMissingFile(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.pdf"))
	require.ErrorIs(t, err, util.ErrExtractionFailed)
}
