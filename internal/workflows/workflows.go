package workflows

import (
	"errors"
	"strings"
	"time"

	"scholarqa/internal/activities"
	"scholarqa/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetIngestProgress = "GetIngestProgress"
	QueryGetPaperStatus    = "GetPaperStatus"
)

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
			// Unextractable documents fail the same way every attempt;
			// flag them immediately instead of burning retries.
			NonRetryableErrorTypes: []string{activities.ExtractionFailureType},
		},
	}
}

// CorpusIngestWorkflow loads paper metadata and fans out one child workflow
// per paper with bounded parallelism. The batch source is either a single
// CSV or, when no path is given, every CSV in the drop directory. Row-level
// problems and per-paper failures are counted, never fatal to the batch.
func CorpusIngestWorkflow(ctx workflow.Context, input CorpusIngestInput) (CorpusIngestProgress, error) {
	progress := CorpusIngestProgress{
		BatchID:       input.BatchID,
		PerPaper:      map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestProgress, func() (CorpusIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	csvPaths := []string{input.CSVPath}
	if strings.TrimSpace(input.CSVPath) == "" {
		// Scan mode: pick up every metadata CSV sitting in the drop dir.
		var filesOut activities.ListMetadataFilesOutput
		if err := workflow.ExecuteActivity(ctx, "ListMetadataFilesActivity", activities.ListMetadataFilesInput{InputDir: input.InputDir}).Get(ctx, &filesOut); err != nil {
			return progress, err
		}
		csvPaths = filesOut.Paths
	}

	var papers []models.Paper
	for _, csvPath := range csvPaths {
		var loadOut activities.LoadCorpusCSVOutput
		if err := workflow.ExecuteActivity(ctx, "LoadCorpusCSVActivity", activities.LoadCorpusCSVInput{CSVPath: csvPath}).Get(ctx, &loadOut); err != nil {
			return progress, err
		}
		progress.RowsLoaded += loadOut.Report.Loaded
		progress.RowsSkipped += loadOut.Report.Skipped
		progress.RowDuplicates += loadOut.Report.Duplicates
		papers = append(papers, loadOut.Papers...)
	}
	progress.Total = len(papers)

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(papers); i += maxChildren {
		end := i + maxChildren
		if end > len(papers) {
			end = len(papers)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		ids := make([]string, 0, end-i)
		for _, p := range papers[i:end] {
			progress.PerPaper[p.PaperID] = "processing"
			workflowID := "paper-" + sanitizeID(input.BatchID) + "-" + sanitizeID(p.PaperID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{Paper: p}))
			ids = append(ids, p.PaperID)
			progress.ChildWorkflow[p.PaperID] = workflowID
		}

		for idx, f := range futures {
			var outcome string
			err := f.Get(ctx, &outcome)
			paperID := ids[idx]
			progress.Done++
			if err != nil {
				progress.Failed++
				progress.PerPaper[paperID] = "failed"
				continue
			}
			progress.PerPaper[paperID] = outcome
			switch outcome {
			case OutcomeIndexed:
				progress.Indexed++
			case OutcomeFlagged:
				progress.Flagged++
			case OutcomeRejected:
				progress.Rejected++
			}
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteIngestReportActivity", activities.WriteIngestReportInput{
		BatchID: input.BatchID,
		Report: map[string]any{
			"batch_id":         input.BatchID,
			"rows_loaded":      progress.RowsLoaded,
			"rows_skipped":     progress.RowsSkipped,
			"row_duplicates":   progress.RowDuplicates,
			"total":            progress.Total,
			"indexed":          progress.Indexed,
			"flagged":          progress.Flagged,
			"rejected":         progress.Rejected,
			"failed":           progress.Failed,
			"per_paper_status": progress.PerPaper,
			"generated_at":     workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return progress, nil
}

// PaperIngestWorkflow runs the pipeline for one paper: store, extract,
// chunk, embed, index, mark. Extraction failure flags the paper and ends
// the workflow cleanly so sibling papers keep going.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	paper := input.Paper
	status := PaperIngestStatus{
		PaperID:     paper.PaperID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPaperStatus, func() (PaperIngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	if !input.Reindex {
		status.CurrentStep = "store_paper"
		status.Steps[status.CurrentStep] = "processing"
		var putOut activities.PutPaperOutput
		if err := workflow.ExecuteActivity(ctx, "PutPaperActivity", activities.PutPaperInput{Paper: paper}).Get(ctx, &putOut); err != nil {
			return "", err
		}
		if !putOut.Accepted {
			status.Status = OutcomeRejected
			status.FailReason = putOut.Reason
			status.Steps[status.CurrentStep] = "rejected"
			return OutcomeRejected, nil
		}
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "extract_text"
	status.Steps[status.CurrentStep] = "processing"
	var textOut activities.ExtractTextOutput
	err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{
		PaperID:    paper.PaperID,
		SourcePath: paper.SourcePath,
		Title:      paper.Title,
		Abstract:   paper.Abstract,
	}).Get(ctx, &textOut)
	if err != nil {
		if isExtractionFailure(err) {
			return flagPaper(ctx, &status, paper.PaperID, "document has no extractable text")
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_text"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{PaperID: paper.PaperID, Text: textOut.Text}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	if len(chunkOut.Chunks) == 0 {
		return flagPaper(ctx, &status, paper.PaperID, "no indexable chunks produced")
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	texts := make([]string, 0, len(chunkOut.Chunks))
	for _, c := range chunkOut.Chunks {
		texts = append(texts, c.Text)
	}
	var embedOut activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{Texts: texts}).Get(ctx, &embedOut); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "upsert_index"
	status.Steps[status.CurrentStep] = "processing"
	entries := make([]models.IndexEntry, 0, len(chunkOut.Chunks))
	for i, c := range chunkOut.Chunks {
		entries = append(entries, models.IndexEntry{
			Chunk:      c,
			Vector:     embedOut.Vectors[i],
			ModelID:    embedOut.ModelID,
			Categories: paper.Categories,
			SubmitDate: paper.SubmitDate,
		})
	}
	if err := workflow.ExecuteActivity(ctx, "UpsertIndexActivity", activities.UpsertIndexInput{Entries: entries}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_indexed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{PaperID: paper.PaperID, Status: models.StatusIndexed}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = OutcomeIndexed
	return OutcomeIndexed, nil
}

// RebuildIndexWorkflow reconstructs index rows from the corpus store alone,
// re-running extract/chunk/embed per paper under the current embedding
// model. RETRY_FLAGGED narrows the pass to papers that failed extraction
// before; REEMBED_STALE narrows it to papers whose stored embeddings were
// produced under a different model.
func RebuildIndexWorkflow(ctx workflow.Context, input RebuildIndexInput) (RebuildIndexResult, error) {
	result := RebuildIndexResult{Mode: input.Mode}
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var stalePapers map[string]struct{}
	if strings.EqualFold(input.Mode, ModeReembedStale) {
		var staleOut activities.ListStaleChunksOutput
		if err := workflow.ExecuteActivity(ctx, "ListStaleChunksActivity", activities.ListStaleChunksInput{}).Get(ctx, &staleOut); err != nil {
			return result, err
		}
		stalePapers = paperIDsOfChunks(staleOut.ChunkIDs)
		if len(stalePapers) == 0 {
			return result, nil
		}
	}

	listIn := activities.ListPapersInput{}
	if strings.EqualFold(input.Mode, ModeRetryFlagged) {
		listIn.Status = models.StatusFlagged
	}
	var listOut activities.ListPapersOutput
	if err := workflow.ExecuteActivity(ctx, "ListPapersActivity", listIn).Get(ctx, &listOut); err != nil {
		return result, err
	}
	if stalePapers != nil {
		kept := make([]models.Paper, 0, len(stalePapers))
		for _, p := range listOut.Papers {
			if _, ok := stalePapers[p.PaperID]; ok {
				kept = append(kept, p)
			}
		}
		listOut.Papers = kept
	}
	result.Total = len(listOut.Papers)

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}
	papers := listOut.Papers
	for i := 0; i < len(papers); i += maxChildren {
		end := i + maxChildren
		if end > len(papers) {
			end = len(papers)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, p := range papers[i:end] {
			workflowID := "reindex-" + sanitizeID(p.PaperID) + "-" + workflow.GetInfo(ctx).WorkflowExecution.RunID
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{Paper: p, Reindex: true}))
		}
		for _, f := range futures {
			var outcome string
			if err := f.Get(ctx, &outcome); err != nil {
				result.Failed++
				continue
			}
			switch outcome {
			case OutcomeIndexed:
				result.Reindexed++
			case OutcomeFlagged:
				result.Flagged++
			default:
				result.Failed++
			}
		}
	}
	return result, nil
}

func flagPaper(ctx workflow.Context, status *PaperIngestStatus, paperID, reason string) (string, error) {
	status.Status = OutcomeFlagged
	status.FailReason = reason
	status.Steps[status.CurrentStep] = "failed"
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID:    paperID,
		Status:     models.StatusFlagged,
		FailReason: reason,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	return OutcomeFlagged, nil
}

// isExtractionFailure checks for the typed application error, falling back
// to the sentinel message because plain activity errors lose their wrapped
// identity across Temporal's serialization.
func isExtractionFailure(err error) bool {
	if err == nil {
		return false
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == activities.ExtractionFailureType {
		return true
	}
	return strings.Contains(err.Error(), "no extractable text")
}

// paperIDsOfChunks folds chunk ids (paper_id plus ordinal suffix) down to
// the distinct set of papers they belong to.
func paperIDsOfChunks(chunkIDs []string) map[string]struct{} {
	papers := map[string]struct{}{}
	for _, id := range chunkIDs {
		if i := strings.LastIndex(id, ":"); i > 0 {
			papers[id[:i]] = struct{}{}
		}
	}
	return papers
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}
