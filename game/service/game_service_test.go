package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/game/config"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/protocol"
	"github.com/wricardo/connectn/game/service"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// MockBotSpawner implements service.BotSpawner for testing
type MockBotSpawner struct {
	SpawnFunc func(ctx context.Context, sessionID string) (string, error)
}

func (m *MockBotSpawner) Spawn(ctx context.Context, sessionID string) (string, error) {
	return m.SpawnFunc(ctx, sessionID)
}

// MockTokenIssuer implements service.TokenIssuer for testing
type MockTokenIssuer struct {
	CreateFunc  func(ctx context.Context, participantID string) (string, error)
	DestroyFunc func(ctx context.Context, token string) error
}

func (m *MockTokenIssuer) CreateSessionToken(ctx context.Context, participantID string) (string, error) {
	return m.CreateFunc(ctx, participantID)
}

func (m *MockTokenIssuer) DestroySessionToken(ctx context.Context, token string) error {
	return m.DestroyFunc(ctx, token)
}

// MockCloser records CloseSession calls
type MockCloser struct {
	closed []string
	codes  []int
}

func (m *MockCloser) CloseSession(sessionID string, code int, reason string) int {
	m.closed = append(m.closed, sessionID)
	m.codes = append(m.codes, code)
	return 1
}

func newTestService(t *testing.T, opts service.Options) (service.GameService, *session.Manager) {
	t.Helper()
	variants, err := config.NewManager("../../configs")
	require.NoError(t, err)
	sessions := session.NewManager()
	return service.NewGameService(sessions, variants, opts), sessions
}

func TestCreateSession(t *testing.T) {
	svc, _ := newTestService(t, service.Options{})
	ctx := context.Background()

	t.Run("default variant", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, session.PhaseCreation, info.Phase)
		assert.Equal(t, "classic", info.Variant.Name)
		assert.Empty(t, info.Connected)
	})

	t.Run("named variant", func(t *testing.T) {
		info, err := svc.CreateSession(ctx, "connect5")
		require.NoError(t, err)
		assert.Equal(t, 5, info.Variant.Connect)
		assert.Equal(t, 9, info.Variant.Width)
	})

	t.Run("unknown variant lists alternatives", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrVariantNotFound)
		assert.Contains(t, err.Error(), "connect5")
	})
}

func TestGetListDeleteSession(t *testing.T) {
	closer := &MockCloser{}
	svc, _ := newTestService(t, service.Options{Connections: closer})
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := svc.CreateSession(ctx, "tiny")
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.False(t, got.LastActivity.IsZero())

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, svc.DeleteSession(ctx, first.ID))
	assert.Equal(t, []string{first.ID}, closer.closed)
	assert.Equal(t, []int{protocol.CloseNotFound}, closer.codes)

	_, err = svc.GetSession(ctx, first.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, first.ID), session.ErrSessionNotFound)
}

func TestAddBot(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc, _ := newTestService(t, service.Options{})
		info, err := svc.CreateSession(ctx, "")
		require.NoError(t, err)
		_, err = svc.AddBot(ctx, info.ID)
		assert.ErrorIs(t, err, service.ErrBotsDisabled)
	})

	t.Run("spawns into session", func(t *testing.T) {
		var spawned string
		bots := &MockBotSpawner{SpawnFunc: func(ctx context.Context, sessionID string) (string, error) {
			spawned = sessionID
			return "bot", nil
		}}
		svc, _ := newTestService(t, service.Options{Bots: bots})
		info, err := svc.CreateSession(ctx, "")
		require.NoError(t, err)

		bot, err := svc.AddBot(ctx, info.ID)
		require.NoError(t, err)
		assert.Equal(t, "bot", bot.ParticipantID)
		assert.Equal(t, info.ID, spawned)
	})

	t.Run("unknown session", func(t *testing.T) {
		bots := &MockBotSpawner{SpawnFunc: func(ctx context.Context, sessionID string) (string, error) {
			t.Fatal("spawn should not be called")
			return "", nil
		}}
		svc, _ := newTestService(t, service.Options{Bots: bots})
		_, err := svc.AddBot(ctx, "missing")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("started session", func(t *testing.T) {
		bots := &MockBotSpawner{SpawnFunc: func(ctx context.Context, sessionID string) (string, error) {
			t.Fatal("spawn should not be called")
			return "", nil
		}}
		svc, sessions := newTestService(t, service.Options{Bots: bots})
		info, err := svc.CreateSession(ctx, "")
		require.NoError(t, err)

		sess, err := sessions.Get(info.ID)
		require.NoError(t, err)
		require.NoError(t, sess.Do(func(tx *session.Tx) error {
			for _, p := range []string{"alice", "bob"} {
				if err := tx.Join(p); err != nil {
					return err
				}
				tx.SetReady(p)
			}
			_, err := tx.Start()
			return err
		}))

		_, err = svc.AddBot(ctx, info.ID)
		assert.ErrorIs(t, err, session.ErrAlreadyStarted)
	})

	t.Run("spawn failure", func(t *testing.T) {
		bots := &MockBotSpawner{SpawnFunc: func(ctx context.Context, sessionID string) (string, error) {
			return "", errors.New("dial failed")
		}}
		svc, _ := newTestService(t, service.Options{Bots: bots})
		info, err := svc.CreateSession(ctx, "")
		require.NoError(t, err)
		_, err = svc.AddBot(ctx, info.ID)
		assert.ErrorContains(t, err, "dial failed")
	})
}

func TestResultsAndStats(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc, _ := newTestService(t, service.Options{Results: store, Counters: store})

	now := time.Now().UTC()
	results := []session.Result{
		{ID: "r1", Roster: []string{"alice", "bob"}, Winner: "alice", CompletedAt: now},
		{ID: "r2", Roster: []string{"alice", "bob"}, Draw: true, CompletedAt: now.Add(time.Second)},
	}
	for _, r := range results {
		require.NoError(t, store.PersistResult(ctx, r))
		for _, p := range r.Roster {
			require.NoError(t, store.UpdateCounters(ctx, p, storage.DeltaFor(r, p)))
		}
	}

	got, err := svc.GetResults(ctx, []string{"r2", "r1", "r2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)

	_, err = svc.GetResults(ctx, []string{"r1", "zz"})
	assert.ErrorIs(t, err, storage.ErrResultNotFound)

	found, err := svc.SearchResults(ctx, storage.SearchParams{Count: 1, Players: []string{"bob"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "r2", found[0].ID)

	_, err = svc.SearchResults(ctx, storage.SearchParams{Count: 500})
	assert.ErrorIs(t, err, storage.ErrInvalidSearch)

	stats, err := svc.GetPlayerStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.Ties)
	assert.ElementsMatch(t, []string{"r1", "r2"}, stats.GameIDs)

	stranger, err := svc.GetPlayerStats(ctx, "stranger")
	require.NoError(t, err)
	assert.NotNil(t, stranger.GameIDs)
	assert.Empty(t, stranger.GameIDs)
}

func TestStoreDisabled(t *testing.T) {
	svc, _ := newTestService(t, service.Options{})
	ctx := context.Background()

	_, err := svc.GetResults(ctx, []string{"a"})
	assert.ErrorIs(t, err, service.ErrStoreDisabled)
	_, err = svc.SearchResults(ctx, storage.SearchParams{Count: 1})
	assert.ErrorIs(t, err, service.ErrStoreDisabled)
	_, err = svc.GetPlayerStats(ctx, "a")
	assert.ErrorIs(t, err, service.ErrStoreDisabled)
}

func TestIssueToken(t *testing.T) {
	tokens := &MockTokenIssuer{
		CreateFunc: func(ctx context.Context, participantID string) (string, error) {
			if participantID == "" {
				return "", errors.New("empty participant")
			}
			return participantID + "-token", nil
		},
	}
	svc, _ := newTestService(t, service.Options{Tokens: tokens})
	ctx := context.Background()

	info, err := svc.IssueToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice-token", info.Token)

	_, err = svc.IssueToken(ctx, "")
	assert.Error(t, err)

	for _, reserved := range []string{"bot", "bot-2"} {
		_, err = svc.IssueToken(ctx, reserved)
		assert.ErrorIs(t, err, auth.ErrInvalidIdentity, reserved)
	}
}

func TestListVariants(t *testing.T) {
	svc, _ := newTestService(t, service.Options{})
	variants, err := svc.ListVariants(context.Background())
	require.NoError(t, err)

	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	assert.Equal(t, []string{"classic", "connect5", "three-player", "tiny"}, names)
	assert.Contains(t, variants, engine.Variant{
		Name: "tiny", Description: "Three in a row on a 4x4 board, good for quick bot games",
		Connect: 3, Players: 2, Width: 4, Height: 4,
	})
}

func TestSaveVariant(t *testing.T) {
	variants, err := config.NewManager(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewManager()
	svc := service.NewGameService(sessions, variants, service.Options{})
	ctx := context.Background()

	saved, err := svc.SaveVariant(ctx, engine.Variant{Name: "wide", Connect: 4, Players: 2, Width: 10, Height: 5})
	require.NoError(t, err)
	assert.Equal(t, 10, saved.Width)

	info, err := svc.CreateSession(ctx, "wide")
	require.NoError(t, err)
	assert.Equal(t, "wide", info.Variant.Name)

	_, err = svc.SaveVariant(ctx, engine.Variant{Name: "impossible", Connect: 9, Players: 2, Width: 4, Height: 4})
	assert.ErrorIs(t, err, config.ErrInvalidVariant)

	_, err = svc.SaveVariant(ctx, engine.Variant{Name: "../escape", Connect: 3, Players: 2, Width: 4, Height: 4})
	assert.ErrorIs(t, err, config.ErrInvalidVariant)

	builtinOnly, err := config.NewManager("")
	require.NoError(t, err)
	svc = service.NewGameService(sessions, builtinOnly, service.Options{})
	_, err = svc.SaveVariant(ctx, engine.Variant{Name: "wide", Connect: 4, Players: 2, Width: 10, Height: 5})
	assert.ErrorIs(t, err, config.ErrNoConfigDir)
}
