package corpus

import (
	"context"
	"testing"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"

	"github.com/stretchr/testify/require"
)

func samplePaper(id string) models.Paper {
	return models.Paper{
		PaperID:    id,
		Title:      "Attention Is All You Need",
		Authors:    []string{"Vaswani", "Shazeer"},
		Abstract:   "The transformer architecture relies entirely on attention.",
		Categories: []string{"cs.LG", "cs.CL"},
		SubmitDate: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, samplePaper("1706.03762")))

	got, err := s.Get(ctx, "1706.03762")
	require.NoError(t, err)
	require.Equal(t, "Attention Is All You Need", got.Title)
	require.Equal(t, models.StatusPending, got.Status)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, util.ErrPaperNotFound)
}

func TestMemStorePutIdempotentOnIdenticalContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	p := samplePaper("1706.03762")
	require.NoError(t, s.Put(ctx, p))
	require.NoError(t, s.Put(ctx, p))

	changed := p
	changed.Abstract = "A different abstract."
	require.ErrorIs(t, s.Put(ctx, changed), util.ErrDuplicateID)
}

func TestMemStoreRejectsIncompleteRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	missingTitle := samplePaper("x1")
	missingTitle.Title = " "
	require.ErrorIs(t, s.Put(ctx, missingTitle), util.ErrValidation)

	missingAbstract := samplePaper("x2")
	missingAbstract.Abstract = ""
	require.ErrorIs(t, s.Put(ctx, missingAbstract), util.ErrValidation)

	// Nothing partial was stored.
	_, err := s.Get(ctx, "x1")
	require.ErrorIs(t, err, util.ErrPaperNotFound)
}

func TestMemStoreListPaginatesAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for _, id := range []string{"a1", "a2", "a3", "b1"} {
		p := samplePaper(id)
		if id == "b1" {
			p.Categories = []string{"math.CO"}
		}
		require.NoError(t, s.Put(ctx, p))
	}

	page1, err := s.List(ctx, Filter{}, "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	page2, err := s.List(ctx, Filter{}, page1[1].PaperID, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Greater(t, page2[0].PaperID, page1[1].PaperID)

	// Restartable: same cursor, same page.
	again, err := s.List(ctx, Filter{}, page1[1].PaperID, 2)
	require.NoError(t, err)
	require.Equal(t, page2, again)

	filtered, err := s.List(ctx, Filter{Categories: []string{"math.CO"}}, "", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "b1", filtered[0].PaperID)

	var walked []string
	require.NoError(t, ForEach(ctx, s, Filter{}, 3, func(p models.Paper) error {
		walked = append(walked, p.PaperID)
		return nil
	}))
	require.Equal(t, []string{"a1", "a2", "a3", "b1"}, walked)
}

func TestMemStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, samplePaper("z9")))
	require.NoError(t, s.Delete(ctx, "z9"))
	require.ErrorIs(t, s.Delete(ctx, "z9"), util.ErrPaperNotFound)
}
