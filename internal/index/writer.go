package index

import (
	"context"

	"scholarqa/internal/models"
)

// Writer is the mutation surface ingestion uses. Index writes are funneled
// through a single worker process, so implementations only need to tolerate
// concurrent reads.
type Writer interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	DeletePaper(ctx context.Context, paperID string) error
}

// MemWriter feeds both in-memory indexes from one upsert, mirroring how the
// Postgres chunks table backs the vector and lexical paths at once.
type MemWriter struct {
	Vec *MemVectorIndex
	Lex *MemLexicalIndex
}

func (w MemWriter) Upsert(_ context.Context, entries []models.IndexEntry) error {
	if err := w.Vec.Upsert(entries); err != nil {
		return err
	}
	return w.Lex.Index(entries)
}

func (w MemWriter) DeletePaper(_ context.Context, paperID string) error {
	if err := w.Vec.DeletePaper(paperID); err != nil {
		return err
	}
	return w.Lex.DeletePaper(paperID)
}

func (w MemWriter) StaleChunkIDs(_ context.Context, activeModelID string) ([]string, error) {
	return w.Vec.StaleChunks(activeModelID), nil
}
