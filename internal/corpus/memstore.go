package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"
)

// MemStore keeps the corpus in memory. It backs tests and small library
// embeddings of the pipeline; the Postgres store is the production path.
type MemStore struct {
	mu     sync.RWMutex
	papers map[string]models.Paper
	hashes map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		papers: map[string]models.Paper{},
		hashes: map[string]string{},
	}
}

func (s *MemStore) Put(ctx context.Context, p models.Paper) error {
	_ = ctx
	if err := Validate(p); err != nil {
		return err
	}
	h := ContentHash(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.hashes[p.PaperID]; ok {
		if existing == h {
			return nil
		}
		return fmt.Errorf("paper %s: %w", p.PaperID, util.ErrDuplicateID)
	}
	if p.Status == "" {
		p.Status = models.StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.papers[p.PaperID] = p
	s.hashes[p.PaperID] = h
	return nil
}

func (s *MemStore) Get(ctx context.Context, paperID string) (models.Paper, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[paperID]
	if !ok {
		return models.Paper{}, fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	return p, nil
}

func (s *MemStore) List(ctx context.Context, f Filter, afterID string, limit int) ([]models.Paper, error) {
	_ = ctx
	if limit <= 0 {
		limit = 200
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.papers))
	for id := range s.papers {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]models.Paper, 0, limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		p, ok := s.papers[id]
		if !ok || !matchesFilter(p, f) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, paperID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.papers[paperID]; !ok {
		return fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	delete(s.papers, paperID)
	delete(s.hashes, paperID)
	return nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, paperID, status, failReason string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[paperID]
	if !ok {
		return fmt.Errorf("paper %s: %w", paperID, util.ErrPaperNotFound)
	}
	p.Status = status
	p.FailReason = failReason
	s.papers[paperID] = p
	return nil
}
