package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// Filter narrows List results. Zero values mean no restriction.
type Filter struct {
	Categories []string
	DateFrom   time.Time
	DateTo     time.Time
	Status     string
}

// Store is the durable record of paper metadata and the single source of
// truth for index rebuilds. Papers are immutable once stored; only ingestion
// status bookkeeping changes afterwards.
type Store interface {
	// Put inserts a validated paper. Re-submitting identical content is an
	// idempotent no-op; the same id with different content fails with
	// util.ErrDuplicateID. Nothing partial is ever persisted.
	Put(ctx context.Context, p models.Paper) error
	Get(ctx context.Context, paperID string) (models.Paper, error)
	// List returns up to limit papers with id > afterID in id order. Keyed
	// pagination keeps the sequence lazy and restartable.
	List(ctx context.Context, f Filter, afterID string, limit int) ([]models.Paper, error)
	// Delete removes a paper; chunk and index rows cascade with it.
	Delete(ctx context.Context, paperID string) error
	UpdateStatus(ctx context.Context, paperID, status, failReason string) error
}

// ForEach walks the whole filtered corpus page by page.
func ForEach(ctx context.Context, s Store, f Filter, pageSize int, fn func(models.Paper) error) error {
	if pageSize <= 0 {
		pageSize = 200
	}
	after := ""
	for {
		page, err := s.List(ctx, f, after, pageSize)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].PaperID
	}
}

// Validate rejects records missing required fields before anything touches
// durable state.
func Validate(p models.Paper) error {
	if strings.TrimSpace(p.PaperID) == "" {
		return fmt.Errorf("missing paper id: %w", util.ErrValidation)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("paper %s missing title: %w", p.PaperID, util.ErrValidation)
	}
	if strings.TrimSpace(p.Abstract) == "" {
		return fmt.Errorf("paper %s missing abstract: %w", p.PaperID, util.ErrValidation)
	}
	return nil
}

// ContentHash fingerprints the immutable fields of a paper, so duplicate
// detection is about content rather than ingestion bookkeeping.
func ContentHash(p models.Paper) string {
	authors := append([]string(nil), p.Authors...)
	cats := append([]string(nil), p.Categories...)
	sort.Strings(cats)
	parts := []string{
		p.PaperID,
		p.Title,
		strings.Join(authors, "|"),
		p.Abstract,
		strings.Join(cats, "|"),
		p.SubmitDate.UTC().Format(time.RFC3339),
		p.SourcePath,
	}
	return util.SHA256Hex([]byte(strings.Join(parts, "\x1f")))
}

func matchesFilter(p models.Paper, f Filter) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	qf := &models.QueryFilter{Categories: f.Categories, DateFrom: f.DateFrom, DateTo: f.DateTo}
	return qf.Matches(p.Categories, p.SubmitDate)
}
