package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// EnsureSchema creates the papers and chunks tables. Chunks carry the paper
// metadata needed for filtered retrieval plus the pgvector embedding and a
// generated tsvector, so both indexes persist independently of the corpus
// rows while remaining rebuildable from them.
func (d *DB) EnsureSchema(ctx context.Context, embedDim int) error {
	if embedDim <= 0 {
		embedDim = 1536
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS papers (
  paper_id     text PRIMARY KEY,
  title        text NOT NULL,
  authors      text[] NOT NULL DEFAULT '{}',
  abstract     text NOT NULL,
  categories   text[] NOT NULL DEFAULT '{}',
  submit_date  timestamptz,
  source_path  text,
  status       text NOT NULL DEFAULT 'pending',
  fail_reason  text,
  content_hash text NOT NULL,
  created_at   timestamptz NOT NULL DEFAULT now()
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
  chunk_id    text PRIMARY KEY,
  paper_id    text NOT NULL REFERENCES papers(paper_id) ON DELETE CASCADE,
  ordinal     int NOT NULL,
  text        text NOT NULL,
  char_start  int NOT NULL,
  char_end    int NOT NULL,
  categories  text[] NOT NULL DEFAULT '{}',
  submit_date timestamptz,
  model_id    text,
  embedding   vector(%d),
  tsv         tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
  created_at  timestamptz NOT NULL DEFAULT now()
)`, embedDim),
		`CREATE INDEX IF NOT EXISTS chunks_paper_idx ON chunks (paper_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_tsv_idx ON chunks USING GIN (tsv)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
