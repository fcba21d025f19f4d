package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/wricardo/connectn/auth"
	"github.com/wricardo/connectn/game/bot"
	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/protocol"
	"github.com/wricardo/connectn/game/session"
	"github.com/wricardo/connectn/storage"
)

// Options carries the optional collaborators of the game service. A nil
// field disables the operations that depend on it.
type Options struct {
	Results     ResultStore
	Counters    CounterStore
	Tokens      TokenIssuer
	Bots        BotSpawner
	Connections ConnectionCloser
}

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	variants VariantCatalog
	opts     Options
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, variants VariantCatalog, opts Options) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		variants: variants,
		opts:     opts,
	}
}

// CreateSession creates a session for the named variant, or the default
// variant when the name is empty
func (s *gameServiceImpl) CreateSession(ctx context.Context, variantName string) (*SessionInfo, error) {
	variant := s.variants.GetDefault()
	if variantName != "" {
		var err error
		variant, err = s.variants.LoadVariant(variantName)
		if err != nil {
			names := lo.Map(s.variants.ListVariants(), func(v engine.Variant, _ int) string { return v.Name })
			return nil, fmt.Errorf("%w (available: %v)", err, names)
		}
	}

	sess, err := s.sessions.Create("", variant)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return toInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return toInfo(sess), nil
}

// ListSessions returns all sessions, oldest first
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	return lo.Map(s.sessions.List(), func(sess *session.Session, _ int) *SessionInfo {
		return toInfo(sess)
	}), nil
}

// DeleteSession removes the session and disconnects its participants
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	if s.opts.Connections != nil {
		s.opts.Connections.CloseSession(sessionID, protocol.CloseNotFound, "session deleted")
	}
	return nil
}

// AddBot spawns a synthetic participant into a session still in creation
func (s *gameServiceImpl) AddBot(ctx context.Context, sessionID string) (*BotInfo, error) {
	if s.opts.Bots == nil {
		return nil, ErrBotsDisabled
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PhaseName() != session.PhaseCreation {
		return nil, fmt.Errorf("%w: session %s", session.ErrAlreadyStarted, sessionID)
	}

	participantID, err := s.opts.Bots.Spawn(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to add bot: %w", err)
	}
	return &BotInfo{SessionID: sessionID, ParticipantID: participantID}, nil
}

// GetResults returns the results for ids in order. Any missing id fails
// the whole request.
func (s *gameServiceImpl) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	if s.opts.Results == nil {
		return nil, ErrStoreDisabled
	}
	return s.opts.Results.GetResults(ctx, lo.Uniq(ids))
}

// SearchResults finds results by roster membership
func (s *gameServiceImpl) SearchResults(ctx context.Context, params storage.SearchParams) ([]session.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if s.opts.Results == nil {
		return nil, ErrStoreDisabled
	}
	return s.opts.Results.SearchResults(ctx, params)
}

// GetPlayerStats returns a participant's counters; unknown participants
// have all zeroes
func (s *gameServiceImpl) GetPlayerStats(ctx context.Context, participantID string) (*PlayerStats, error) {
	if s.opts.Counters == nil {
		return nil, ErrStoreDisabled
	}
	counters, err := s.opts.Counters.FetchCounters(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch counters: %w", err)
	}

	stats := &PlayerStats{
		ParticipantID: participantID,
		Wins:          counters.Wins,
		Losses:        counters.Losses,
		Ties:          counters.Ties,
		GameIDs:       counters.GameIDs,
	}
	if stats.GameIDs == nil {
		stats.GameIDs = []string{}
	}
	return stats, nil
}

// IssueToken mints a connection token for participantID. Bot ids are not
// handed out.
func (s *gameServiceImpl) IssueToken(ctx context.Context, participantID string) (*TokenInfo, error) {
	if s.opts.Tokens == nil {
		return nil, fmt.Errorf("token issuing is not enabled")
	}
	if bot.IsReserved(participantID) {
		return nil, fmt.Errorf("%w: %q is reserved for bots", auth.ErrInvalidIdentity, participantID)
	}
	token, err := s.opts.Tokens.CreateSessionToken(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{ParticipantID: participantID, Token: token}, nil
}

// ListVariants returns the variant presets
func (s *gameServiceImpl) ListVariants(ctx context.Context) ([]engine.Variant, error) {
	return s.variants.ListVariants(), nil
}

// SaveVariant validates v and adds it to the catalog. An existing preset with
// the same name is replaced.
func (s *gameServiceImpl) SaveVariant(ctx context.Context, v engine.Variant) (*engine.Variant, error) {
	if err := s.variants.SaveVariant(v); err != nil {
		return nil, err
	}
	saved, err := s.variants.LoadVariant(v.Name)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func toInfo(sess *session.Session) *SessionInfo {
	return &SessionInfo{
		Snapshot:     sess.Snapshot(),
		LastActivity: sess.LastActivity(),
	}
}
