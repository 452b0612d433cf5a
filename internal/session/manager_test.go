package session

import (
	"testing"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/util"

	"github.com/stretchr/testify/require"
)

func turn(q, a string) models.Turn {
	return models.Turn{
		Query:  models.Query{RawText: q},
		Answer: models.Answer{Text: a},
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager(Config{})
	s1 := m.StartSession()
	s2 := m.StartSession()
	require.NotEqual(t, s1, s2)

	require.NoError(t, m.AppendTurn(s1, turn("q1", "a1")))
	require.NoError(t, m.AppendTurn(s2, turn("other", "answer")))

	turns := m.RecentTurns(s1, 10)
	require.Len(t, turns, 1)
	require.Equal(t, "q1", turns[0].Query.RawText)
}

func TestRecentTurnsWindow(t *testing.T) {
	m := NewManager(Config{Window: 2})
	id := m.StartSession()
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		require.NoError(t, m.AppendTurn(id, turn(q, "a")))
	}

	turns := m.RecentTurns(id, 0)
	require.Len(t, turns, 2)
	require.Equal(t, "q3", turns[0].Query.RawText)
	require.Equal(t, "q4", turns[1].Query.RawText)
}

func TestAppendToUnknownSession(t *testing.T) {
	m := NewManager(Config{})
	err := m.AppendTurn("nope", turn("q", "a"))
	require.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestTTLExpiry(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute})
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	id := m.StartSession()
	require.NoError(t, m.AppendTurn(id, turn("q1", "a1")))

	clock = clock.Add(2 * time.Minute)
	require.Empty(t, m.RecentTurns(id, 10))
	require.ErrorIs(t, m.AppendTurn(id, turn("q2", "a2")), util.ErrSessionNotFound)

	// Touch on an expired id starts over with empty history.
	got := m.Touch(id)
	require.Equal(t, id, got)
	require.Empty(t, m.RecentTurns(id, 10))
	require.NoError(t, m.AppendTurn(id, turn("q3", "a3")))
}

func TestTouchCreatesWhenEmpty(t *testing.T) {
	m := NewManager(Config{})
	id := m.Touch("")
	require.NotEmpty(t, id)
	require.NoError(t, m.AppendTurn(id, turn("q", "a")))
	require.Equal(t, 1, m.Len())
}
