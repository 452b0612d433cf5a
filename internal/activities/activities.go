package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scholarqa/internal/chunker"
	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/embedding"
	"scholarqa/internal/extract"
	"scholarqa/internal/index"
	"scholarqa/internal/models"
	"scholarqa/internal/util"

	"github.com/bmatcuk/doublestar/v4"
	"go.temporal.io/sdk/temporal"
)

// ExtractionFailureType names the application error raised for documents
// with no extractable text. Retrying cannot fix those, so workflows list it
// as non-retryable and flag the paper instead.
const ExtractionFailureType = "ExtractionFailure"

// staleLister is satisfied by index writers that can report chunks embedded
// under a model other than the active one.
type staleLister interface {
	StaleChunkIDs(ctx context.Context, activeModelID string) ([]string, error)
}

type Activities struct {
	cfg     config.Config
	store   corpus.Store
	writer  index.Writer
	gateway *embedding.Gateway
}

func New(cfg config.Config, store corpus.Store, writer index.Writer, gateway *embedding.Gateway) *Activities {
	return &Activities{cfg: cfg, store: store, writer: writer, gateway: gateway}
}

// LoadCorpusCSVActivity parses a metadata CSV into validated papers. Bad
// rows are counted and skipped; they never abort the batch.
func (a *Activities) LoadCorpusCSVActivity(ctx context.Context, in LoadCorpusCSVInput) (LoadCorpusCSVOutput, error) {
	_ = ctx
	papers, report, err := corpus.LoadCSVFile(in.CSVPath)
	if err != nil {
		return LoadCorpusCSVOutput{}, err
	}
	return LoadCorpusCSVOutput{Papers: papers, Report: report}, nil
}

// ListMetadataFilesActivity finds metadata CSV files under the input dir.
func (a *Activities) ListMetadataFilesActivity(ctx context.Context, in ListMetadataFilesInput) (ListMetadataFilesOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListMetadataFilesOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match("*.csv", strings.ToLower(e.Name()))
		if err != nil || !ok {
			continue
		}
		paths = append(paths, filepath.Join(in.InputDir, e.Name()))
	}
	sort.Strings(paths)
	return ListMetadataFilesOutput{Paths: paths}, nil
}

// PutPaperActivity stores one paper. A duplicate id with different content
// is rejected but reported as a clean outcome so the batch continues.
func (a *Activities) PutPaperActivity(ctx context.Context, in PutPaperInput) (PutPaperOutput, error) {
	err := a.store.Put(ctx, in.Paper)
	switch {
	case err == nil:
		return PutPaperOutput{Accepted: true}, nil
	case errors.Is(err, util.ErrDuplicateID):
		return PutPaperOutput{Accepted: false, Reason: "duplicate paper id with different content"}, nil
	case errors.Is(err, util.ErrValidation):
		return PutPaperOutput{Accepted: false, Reason: err.Error()}, nil
	default:
		return PutPaperOutput{}, err
	}
}

// ExtractTextActivity resolves the indexable text for a paper. Papers with a
// source document go through format extraction; metadata-only papers fall
// back to title plus abstract, which is the whole record for abstract-level
// corpora.
func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	if strings.TrimSpace(in.SourcePath) == "" {
		text := util.SanitizeText(in.Title + "\n\n" + in.Abstract)
		if text == "" {
			return ExtractTextOutput{}, extractionError(fmt.Errorf("paper %s has no text at all: %w", in.PaperID, util.ErrExtractionFailed))
		}
		return ExtractTextOutput{Text: text, Pages: 1, PageOffsets: []int{0}}, nil
	}
	path := in.SourcePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.cfg.ExtractedRoot, path)
	}
	got, err := extract.FromFile(path)
	if err != nil {
		return ExtractTextOutput{}, extractionError(err)
	}
	return ExtractTextOutput{Text: got.Text, Pages: got.Pages, PageOffsets: got.PageOffsets}, nil
}

// extractionError converts extraction failures into a typed application
// error so the activity retry policy can skip retries that cannot succeed.
func extractionError(err error) error {
	if errors.Is(err, util.ErrExtractionFailed) {
		return temporal.NewApplicationError(err.Error(), ExtractionFailureType)
	}
	return err
}

// ListStaleChunksActivity reports chunks whose stored embedding predates the
// active embedding model. Backends without staleness tracking report none.
func (a *Activities) ListStaleChunksActivity(ctx context.Context, _ ListStaleChunksInput) (ListStaleChunksOutput, error) {
	out := ListStaleChunksOutput{ModelID: a.gateway.ModelID()}
	lister, ok := a.writer.(staleLister)
	if !ok {
		return out, nil
	}
	ids, err := lister.StaleChunkIDs(ctx, out.ModelID)
	if err != nil {
		return ListStaleChunksOutput{}, err
	}
	out.ChunkIDs = ids
	return out, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	chunks := chunker.Split(in.PaperID, in.Text, chunker.Config{
		TargetSize:   a.cfg.ChunkTargetSize,
		Overlap:      a.cfg.ChunkOverlap,
		MinChunkSize: a.cfg.ChunkMinSize,
		Tolerance:    a.cfg.ChunkTolerance,
	})
	return ChunkTextOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	embs, err := a.gateway.EmbedTexts(ctx, in.Texts)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	vectors := make([][]float32, 0, len(embs))
	for _, e := range embs {
		vectors = append(vectors, e.Vector)
	}
	return EmbedChunksOutput{Vectors: vectors, ModelID: a.gateway.ModelID()}, nil
}

func (a *Activities) UpsertIndexActivity(ctx context.Context, in UpsertIndexInput) error {
	return a.writer.Upsert(ctx, in.Entries)
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	return a.store.UpdateStatus(ctx, in.PaperID, in.Status, in.FailReason)
}

// DeletePaperActivity removes a paper and every index row derived from it.
func (a *Activities) DeletePaperActivity(ctx context.Context, in DeletePaperInput) error {
	if err := a.writer.DeletePaper(ctx, in.PaperID); err != nil {
		return err
	}
	return a.store.Delete(ctx, in.PaperID)
}

func (a *Activities) ListPapersActivity(ctx context.Context, in ListPapersInput) (ListPapersOutput, error) {
	var papers []models.Paper
	err := corpus.ForEach(ctx, a.store, corpus.Filter{Status: in.Status}, 200, func(p models.Paper) error {
		papers = append(papers, p)
		return nil
	})
	if err != nil {
		return ListPapersOutput{}, err
	}
	return ListPapersOutput{Papers: papers}, nil
}

func (a *Activities) WriteIngestReportActivity(ctx context.Context, in WriteIngestReportInput) (WriteIngestReportOutput, error) {
	_ = ctx
	outPath := filepath.Join(a.cfg.ArtifactsRoot, in.BatchID, "ingest_report.json")
	if err := util.WriteJSONAtomic(outPath, in.Report); err != nil {
		return WriteIngestReportOutput{}, err
	}
	return WriteIngestReportOutput{Path: outPath}, nil
}
