package workflows

import "scholarqa/internal/models"

type CorpusIngestInput struct {
	BatchID string `json:"batch_id"`
	CSVPath string `json:"csv_path"`
	// InputDir is scanned for metadata CSVs when CSVPath is empty.
	InputDir              string `json:"input_dir,omitempty"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

type PaperIngestInput struct {
	Paper models.Paper `json:"paper"`
	// Reindex skips the corpus-store write and rebuilds index rows from the
	// already-stored paper.
	Reindex bool `json:"reindex,omitempty"`
}

type RebuildIndexInput struct {
	Mode                  string `json:"mode"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

// Rebuild modes.
const (
	ModeReindexAll   = "REINDEX_ALL"
	ModeRetryFlagged = "RETRY_FLAGGED"
	ModeReembedStale = "REEMBED_STALE"
)

// Paper ingest outcomes returned by PaperIngestWorkflow.
const (
	OutcomeIndexed  = "indexed"
	OutcomeFlagged  = "flagged"
	OutcomeRejected = "rejected"
)

type PaperIngestStatus struct {
	PaperID     string            `json:"paper_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
}

type CorpusIngestProgress struct {
	BatchID       string            `json:"batch_id"`
	RowsLoaded    int               `json:"rows_loaded"`
	RowsSkipped   int               `json:"rows_skipped"`
	RowDuplicates int               `json:"row_duplicates"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Indexed       int               `json:"indexed"`
	Flagged       int               `json:"flagged"`
	Rejected      int               `json:"rejected"`
	Failed        int               `json:"failed"`
	PerPaper      map[string]string `json:"per_paper_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type RebuildIndexResult struct {
	Mode      string `json:"mode"`
	Total     int    `json:"total"`
	Reindexed int    `json:"reindexed"`
	Flagged   int    `json:"flagged"`
	Failed    int    `json:"failed"`
}
