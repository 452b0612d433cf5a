package models

import "time"

// Paper is an immutable corpus record. It is created by ingestion and never
// mutated afterwards; removal cascades to its chunks.
type Paper struct {
	PaperID    string    `json:"paper_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Abstract   string    `json:"abstract"`
	Categories []string  `json:"categories,omitempty"`
	SubmitDate time.Time `json:"submit_date"`
	SourcePath string    `json:"source_path,omitempty"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Paper ingestion statuses.
const (
	StatusPending = "pending"
	StatusIndexed = "indexed"
	StatusFlagged = "flagged"
	StatusFailed  = "failed"
)

type Chunk struct {
	ChunkID   string `json:"chunk_id"`
	PaperID   string `json:"paper_id"`
	Ordinal   int    `json:"ordinal"`
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Embedding pairs a chunk with its vector. ModelID records the embedding
// model in effect when the vector was produced; a mismatch with the active
// model means the embedding is stale and must be regenerated.
type Embedding struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	ModelID string    `json:"model_id"`
}

// IndexEntry carries a chunk plus enough paper metadata to support filtered
// retrieval without joining back to the corpus store.
type IndexEntry struct {
	Chunk      Chunk     `json:"chunk"`
	Vector     []float32 `json:"vector,omitempty"`
	ModelID    string    `json:"model_id,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	SubmitDate time.Time `json:"submit_date"`
}

type Query struct {
	RawText   string       `json:"text"`
	SessionID string       `json:"session_id,omitempty"`
	Filters   *QueryFilter `json:"filters,omitempty"`
}

// QueryFilter restricts retrieval by category membership and submit date.
// Zero values mean no restriction.
type QueryFilter struct {
	Categories []string  `json:"categories,omitempty"`
	DateFrom   time.Time `json:"date_from,omitempty"`
	DateTo     time.Time `json:"date_to,omitempty"`
}

func (f *QueryFilter) Matches(categories []string, submitDate time.Time) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 {
		found := false
		for _, want := range f.Categories {
			for _, have := range categories {
				if want == have {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.DateFrom.IsZero() && submitDate.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && submitDate.After(f.DateTo) {
		return false
	}
	return true
}

// EvidenceItem is one retrieved passage, always traceable to a Paper via
// ChunkID -> PaperID.
type EvidenceItem struct {
	ChunkID       string  `json:"chunk_id"`
	PaperID       string  `json:"paper_id"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
	SourceExcerpt string  `json:"source_excerpt"`
	VectorScore   float64 `json:"vector_score,omitempty"`
	LexicalScore  float64 `json:"lexical_score,omitempty"`
}

type Answer struct {
	Text         string         `json:"text"`
	Citations    []EvidenceItem `json:"citations"`
	SessionID    string         `json:"session_id,omitempty"`
	Insufficient bool           `json:"insufficient_evidence"`
}

type Turn struct {
	Query  Query  `json:"query"`
	Answer Answer `json:"answer"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	Turns     []Turn    `json:"turns"`
	LastSeen  time.Time `json:"last_seen"`
}
