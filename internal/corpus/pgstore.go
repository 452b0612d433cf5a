package corpus

import (
	"context"
	"errors"
	"fmt"

	"scholarqa/internal/models"
	"scholarqa/internal/storage"
	"scholarqa/internal/util"

	"github.com/jackc/pgx/v5"
)

// PgStore persists papers in Postgres. Chunk and index rows reference papers
// with ON DELETE CASCADE, so corpus removal cleans both indexes.
type PgStore struct {
	db *storage.DB
}

func NewPgStore(db *storage.DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Put(ctx context.Context, p models.Paper) error {
	if err := Validate(p); err != nil {
		return err
	}
	h := ContentHash(p)

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin put paper: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var existing string
	err = tx.QueryRow(ctx, `SELECT content_hash FROM papers WHERE paper_id=$1 FOR UPDATE`, p.PaperID).Scan(&existing)
	switch {
	case err == nil:
		if existing == h {
			return nil
		}
		return fmt.Errorf("paper %s: %w", p.PaperID, util.ErrDuplicateID)
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to insert
	default:
		return fmt.Errorf("check paper %s: %w", p.PaperID, err)
	}

	status := p.Status
	if status == "" {
		status = models.StatusPending
	}
	_, err = tx.Exec(ctx, `
INSERT INTO papers (paper_id, title, authors, abstract, categories, submit_date, source_path, status, fail_reason, content_hash)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, NULLIF($9,''), $10)`,
		p.PaperID, p.Title, p.Authors, p.Abstract, p.Categories, p.SubmitDate, p.SourcePath, status, p.FailReason, h,
	)
	if err != nil {
		return fmt.Errorf("insert paper %s: %w", p.PaperID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit put paper: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, paperID string) (models.Paper, error) {
	var p models.Paper
	err := s.db.Pool.QueryRow(ctx, `
SELECT paper_id, title, authors, abstract, categories, COALESCE(submit_date, 'epoch'::timestamptz),
       COALESCE(source_path,''), status, COALESCE(fail_reason,''), created_at
FROM papers WHERE paper_id=$1`, paperID).
		Scan(&p.PaperID, &p.Title, &p.Authors, &p.Abstract, &p.Categories, &p.SubmitDate,
			&p.SourcePath, &p.Status, &p.FailReason, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Paper{}, fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	if err != nil {
		return models.Paper{}, fmt.Errorf("get paper %s: %w", paperID, err)
	}
	return p, nil
}

func (s *PgStore) List(ctx context.Context, f Filter, afterID string, limit int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
SELECT paper_id, title, authors, abstract, categories, COALESCE(submit_date, 'epoch'::timestamptz),
       COALESCE(source_path,''), status, COALESCE(fail_reason,''), created_at
FROM papers
WHERE paper_id > $1`
	args := []any{afterID}
	if len(f.Categories) > 0 {
		args = append(args, f.Categories)
		query += fmt.Sprintf(" AND categories && $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND submit_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND submit_date <= $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY paper_id ASC LIMIT $%d", len(args))

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0, limit)
	for rows.Next() {
		var p models.Paper
		if err := rows.Scan(&p.PaperID, &p.Title, &p.Authors, &p.Abstract, &p.Categories, &p.SubmitDate,
			&p.SourcePath, &p.Status, &p.FailReason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (s *PgStore) Delete(ctx context.Context, paperID string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM papers WHERE paper_id=$1`, paperID)
	if err != nil {
		return fmt.Errorf("delete paper %s: %w", paperID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	return nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, paperID, status, failReason string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE papers SET status=$2, fail_reason=NULLIF($3,'') WHERE paper_id=$1`,
		paperID, status, failReason)
	if err != nil {
		return fmt.Errorf("update paper status %s: %w", paperID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	return nil
}
