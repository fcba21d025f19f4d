package service

import (
	"context"

	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// GameService defines the operations exposed over REST and MCP
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, variantName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AddBot(ctx context.Context, sessionID string) (*BotInfo, error)

	// Results
	GetResults(ctx context.Context, ids []string) ([]session.Result, error)
	SearchResults(ctx context.Context, params storage.SearchParams) ([]session.Result, error)
	GetPlayerStats(ctx context.Context, participantID string) (*PlayerStats, error)

	// Identity
	IssueToken(ctx context.Context, participantID string) (*TokenInfo, error)

	// Configuration
	ListVariants(ctx context.Context) ([]engine.Variant, error)
	SaveVariant(ctx context.Context, v engine.Variant) (*engine.Variant, error)
}

// SessionManager is the session registry
type SessionManager interface {
	Create(id string, variant engine.Variant) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []*session.Session
	Delete(id string) error
}

// VariantCatalog resolves variant presets by name
type VariantCatalog interface {
	LoadVariant(name string) (engine.Variant, error)
	ListVariants() []engine.Variant
	GetDefault() engine.Variant
	SaveVariant(v engine.Variant) error
}

// ResultStore reads and writes finished match results
type ResultStore interface {
	PersistResult(ctx context.Context, result session.Result) error
	GetResults(ctx context.Context, ids []string) ([]session.Result, error)
	SearchResults(ctx context.Context, params storage.SearchParams) ([]session.Result, error)
}

// CounterStore reads and writes per-participant statistics
type CounterStore interface {
	FetchCounters(ctx context.Context, participantID string) (storage.Counters, error)
	UpdateCounters(ctx context.Context, participantID string, delta storage.Delta) error
}

// TokenIssuer mints and revokes connection tokens
type TokenIssuer interface {
	CreateSessionToken(ctx context.Context, participantID string) (string, error)
	DestroySessionToken(ctx context.Context, token string) error
}

// BotSpawner starts a synthetic participant in a session and returns its
// participant id once it has joined
type BotSpawner interface {
	Spawn(ctx context.Context, sessionID string) (string, error)
}

// ConnectionCloser closes every live connection of a session
type ConnectionCloser interface {
	CloseSession(sessionID string, code int, reason string) int
}
