package activities

import (
	"scholarqa/internal/corpus"
	"scholarqa/internal/models"
)

type LoadCorpusCSVInput struct {
	CSVPath string `json:"csv_path"`
}

type LoadCorpusCSVOutput struct {
	Papers []models.Paper    `json:"papers"`
	Report corpus.LoadReport `json:"report"`
}

type ListMetadataFilesInput struct {
	InputDir string `json:"input_dir"`
}

type ListMetadataFilesOutput struct {
	Paths []string `json:"paths"`
}

type PutPaperInput struct {
	Paper models.Paper `json:"paper"`
}

type PutPaperOutput struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type ExtractTextInput struct {
	PaperID    string `json:"paper_id"`
	SourcePath string `json:"source_path,omitempty"`
	Title      string `json:"title"`
	Abstract   string `json:"abstract"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
	// PageOffsets are rune offsets into Text where each source page begins.
	PageOffsets []int `json:"page_offsets,omitempty"`
	Pages       int   `json:"pages,omitempty"`
}

type ChunkTextInput struct {
	PaperID string `json:"paper_id"`
	Text    string `json:"text"`
}

type ChunkTextOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Texts []string `json:"texts"`
}

type EmbedChunksOutput struct {
	Vectors [][]float32 `json:"vectors"`
	ModelID string      `json:"model_id"`
}

type UpsertIndexInput struct {
	Entries []models.IndexEntry `json:"entries"`
}

type UpdatePaperStatusInput struct {
	PaperID    string `json:"paper_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

type DeletePaperInput struct {
	PaperID string `json:"paper_id"`
}

type ListStaleChunksInput struct{}

type ListStaleChunksOutput struct {
	ChunkIDs []string `json:"chunk_ids"`
	ModelID  string   `json:"model_id"`
}

type ListPapersInput struct {
	Status string `json:"status,omitempty"`
}

type ListPapersOutput struct {
	Papers []models.Paper `json:"papers"`
}

type WriteIngestReportInput struct {
	BatchID string         `json:"batch_id"`
	Report  map[string]any `json:"report"`
}

type WriteIngestReportOutput struct {
	Path string `json:"path"`
}
