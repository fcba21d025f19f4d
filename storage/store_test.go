package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/session"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixtures() []session.Result {
	return []session.Result{
		{ID: "g1", Roster: []string{"alice", "bob"}, Winner: "alice", CompletedAt: base,
			WinningRun: []engine.Coord{{Row: 0, Column: 0}, {Row: 0, Column: 1}, {Row: 0, Column: 2}, {Row: 0, Column: 3}}},
		{ID: "g2", Roster: []string{"bob", "carol"}, Draw: true, CompletedAt: base.Add(time.Minute)},
		{ID: "g3", Roster: []string{"alice", "carol", "bob"}, Winner: "carol", CompletedAt: base.Add(2 * time.Minute)},
	}
}

// runStoreContract exercises behavior every backend must share
func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	seed := func(t *testing.T) Store {
		s := open(t)
		for _, r := range fixtures() {
			require.NoError(t, s.PersistResult(ctx, r))
		}
		return s
	}

	t.Run("get results in requested order", func(t *testing.T) {
		s := seed(t)
		results, err := s.GetResults(ctx, []string{"g3", "g1"})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "g3", results[0].ID)
		assert.Equal(t, "g1", results[1].ID)
		assert.Equal(t, "alice", results[1].Winner)
		assert.Len(t, results[1].WinningRun, 4)
		assert.True(t, results[1].CompletedAt.Equal(base))
	})

	t.Run("get results fails when any id is missing", func(t *testing.T) {
		s := seed(t)
		_, err := s.GetResults(ctx, []string{"g1", "nope"})
		assert.ErrorIs(t, err, ErrResultNotFound)
	})

	t.Run("search newest first by default", func(t *testing.T) {
		s := seed(t)
		results, err := s.SearchResults(ctx, SearchParams{Count: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"g3", "g2", "g1"}, ids(results))
	})

	t.Run("search oldest with count", func(t *testing.T) {
		s := seed(t)
		results, err := s.SearchResults(ctx, SearchParams{Count: 2, Sort: SortOldest})
		require.NoError(t, err)
		assert.Equal(t, []string{"g1", "g2"}, ids(results))
	})

	t.Run("search requires every listed player", func(t *testing.T) {
		s := seed(t)
		results, err := s.SearchResults(ctx, SearchParams{Count: 10, Players: []string{"alice", "bob"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"g3", "g1"}, ids(results))

		results, err = s.SearchResults(ctx, SearchParams{Count: 10, Players: []string{"carol"}, Sort: SortOldest})
		require.NoError(t, err)
		assert.Equal(t, []string{"g2", "g3"}, ids(results))
	})

	t.Run("search with zero count returns nothing", func(t *testing.T) {
		s := seed(t)
		results, err := s.SearchResults(ctx, SearchParams{Count: 0})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("search rejects invalid parameters", func(t *testing.T) {
		s := open(t)
		_, err := s.SearchResults(ctx, SearchParams{Count: 101})
		assert.ErrorIs(t, err, ErrInvalidSearch)
		_, err = s.SearchResults(ctx, SearchParams{Count: -1})
		assert.ErrorIs(t, err, ErrInvalidSearch)
		_, err = s.SearchResults(ctx, SearchParams{Count: 1, Sort: "sideways"})
		assert.ErrorIs(t, err, ErrInvalidSearch)
	})

	t.Run("unknown participant has zero counters", func(t *testing.T) {
		s := open(t)
		c, err := s.FetchCounters(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, c.Wins+c.Losses+c.Ties)
		assert.Empty(t, c.GameIDs)
	})

	t.Run("counters accumulate once per game", func(t *testing.T) {
		s := open(t)
		for _, r := range fixtures() {
			require.NoError(t, s.UpdateCounters(ctx, "bob", DeltaFor(r, "bob")))
		}
		require.NoError(t, s.UpdateCounters(ctx, "bob", DeltaFor(fixtures()[0], "bob")))

		c, err := s.FetchCounters(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, 0, c.Wins)
		assert.Equal(t, 2, c.Losses)
		assert.Equal(t, 1, c.Ties)
		assert.Equal(t, []string{"g1", "g2", "g3"}, c.GameIDs)
	})
}

func ids(results []session.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestBadgerStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	runStoreContract(t, func(t *testing.T) Store {
		s, err := OpenBadgerStore("", logger)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDeltaFor(t *testing.T) {
	r := fixtures()
	assert.Equal(t, Delta{GameID: "g1", Wins: 1}, DeltaFor(r[0], "alice"))
	assert.Equal(t, Delta{GameID: "g1", Losses: 1}, DeltaFor(r[0], "bob"))
	assert.Equal(t, Delta{GameID: "g2", Ties: 1}, DeltaFor(r[1], "carol"))
}

func TestOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := Open("memory", "", logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("file", t.TempDir(), logger)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("badger", t.TempDir(), logger)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("postgres", "", logger)
	assert.Error(t, err)

	_, err = Open("floppy", "", logger)
	assert.Error(t, err)
}

func TestNilSQLStore(t *testing.T) {
	var s *SQLStore
	ctx := context.Background()

	assert.NoError(t, s.PersistResult(ctx, fixtures()[0]))
	assert.NoError(t, s.UpdateCounters(ctx, "alice", Delta{GameID: "g1", Wins: 1}))

	results, err := s.SearchResults(ctx, SearchParams{Count: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.GetResults(ctx, []string{"g1"})
	assert.ErrorIs(t, err, ErrResultNotFound)

	c, err := s.FetchCounters(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, c.Wins)
	assert.NoError(t, s.Close())
}
