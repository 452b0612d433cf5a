package index

import (
	"context"
	"fmt"
	"strings"

	"scholarqa/internal/models"
	"scholarqa/internal/storage"
)

// PgIndexer writes chunk rows with their embeddings into Postgres. The
// chunks table holds both retrieval indexes: the pgvector embedding column
// and a generated tsvector, so one upsert feeds both search paths.
type PgIndexer struct {
	db *storage.DB
}

func NewPgIndexer(db *storage.DB) *PgIndexer {
	return &PgIndexer{db: db}
}

func (ix *PgIndexer) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	tx, err := ix.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const stmt = `
INSERT INTO chunks (chunk_id, paper_id, ordinal, text, char_start, char_end,
                    categories, submit_date, model_id, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)
ON CONFLICT (chunk_id) DO UPDATE SET
  text = EXCLUDED.text,
  char_start = EXCLUDED.char_start,
  char_end = EXCLUDED.char_end,
  categories = EXCLUDED.categories,
  submit_date = EXCLUDED.submit_date,
  model_id = EXCLUDED.model_id,
  embedding = EXCLUDED.embedding`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, stmt,
			e.Chunk.ChunkID, e.Chunk.PaperID, e.Chunk.Ordinal, e.Chunk.Text,
			e.Chunk.CharStart, e.Chunk.CharEnd,
			e.Categories, e.SubmitDate, e.ModelID, ToLiteral(e.Vector),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", e.Chunk.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (ix *PgIndexer) DeletePaper(ctx context.Context, paperID string) error {
	if _, err := ix.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE paper_id = $1`, paperID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", paperID, err)
	}
	return nil
}

// StaleChunkIDs lists chunks embedded under a model other than the active
// one, including chunks never embedded at all.
func (ix *PgIndexer) StaleChunkIDs(ctx context.Context, activeModelID string) ([]string, error) {
	rows, err := ix.db.Pool.Query(ctx,
		`SELECT chunk_id FROM chunks WHERE model_id IS DISTINCT FROM $1 ORDER BY chunk_id`,
		activeModelID)
	if err != nil {
		return nil, fmt.Errorf("query stale chunks: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PgSearcher answers vector and lexical queries against the chunks table.
type PgSearcher struct {
	db            *storage.DB
	activeModelID string
}

func NewPgSearcher(db *storage.DB, activeModelID string) *PgSearcher {
	return &PgSearcher{db: db, activeModelID: activeModelID}
}

func (s *PgSearcher) SearchVector(ctx context.Context, queryVec []float32, k int, f *models.QueryFilter) ([]Hit, error) {
	if k <= 0 {
		k = 8
	}
	args := []any{ToLiteral(queryVec), s.activeModelID, k}
	filterSQL, args := appendFilterSQL(args, f)

	query := `
SELECT chunk_id, paper_id, 1 - (embedding <=> $1::vector) AS score, text
FROM chunks
WHERE embedding IS NOT NULL
  AND model_id = $2` + filterSQL + `
ORDER BY embedding <=> $1::vector, chunk_id
LIMIT $3`

	return s.collect(ctx, query, args)
}

func (s *PgSearcher) SearchLexical(ctx context.Context, queryText string, k int, f *models.QueryFilter) ([]Hit, error) {
	if k <= 0 {
		k = 8
	}
	args := []any{queryText, k}
	filterSQL, args := appendFilterSQL(args, f)

	query := `
SELECT chunk_id, paper_id,
       ts_rank_cd(tsv, websearch_to_tsquery('english', $1)) AS score,
       text
FROM chunks
WHERE tsv @@ websearch_to_tsquery('english', $1)` + filterSQL + `
ORDER BY score DESC, submit_date DESC NULLS LAST, chunk_id
LIMIT $2`

	return s.collect(ctx, query, args)
}

// Orphans reports chunk rows whose paper row is gone. The foreign key makes
// this impossible under normal operation; the query exists so the integrity
// endpoint can prove it rather than assume it.
func (s *PgSearcher) Orphans(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT c.chunk_id
FROM chunks c
LEFT JOIN papers p ON p.paper_id = c.paper_id
WHERE p.paper_id IS NULL
ORDER BY c.chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("query orphan chunks: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgSearcher) collect(ctx context.Context, query string, args []any) ([]Hit, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.PaperID, &h.Score, &h.Text); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

func appendFilterSQL(args []any, f *models.QueryFilter) (string, []any) {
	if f == nil {
		return "", args
	}
	var sb strings.Builder
	if len(f.Categories) > 0 {
		args = append(args, f.Categories)
		fmt.Fprintf(&sb, " AND categories && $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		fmt.Fprintf(&sb, " AND submit_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		fmt.Fprintf(&sb, " AND submit_date <= $%d", len(args))
	}
	return sb.String(), args
}

// VectorSide and LexicalSide adapt the combined searcher to the
// single-source Search shape the retriever consumes.
type VectorSide struct{ S *PgSearcher }

func (v VectorSide) Search(ctx context.Context, queryVec []float32, k int, f *models.QueryFilter) ([]Hit, error) {
	return v.S.SearchVector(ctx, queryVec, k, f)
}

type LexicalSide struct{ S *PgSearcher }

func (l LexicalSide) Search(ctx context.Context, queryText string, k int, f *models.QueryFilter) ([]Hit, error) {
	return l.S.SearchLexical(ctx, queryText, k, f)
}

// ToLiteral renders a float32 slice as a pgvector input literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
