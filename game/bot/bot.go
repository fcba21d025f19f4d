// Package bot implements a synthetic participant. It connects through the
// public WebSocket endpoint with its own token and plays random legal moves,
// so the server cannot tell it apart from any other client.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/protocol"
	"github.com/wricardo/connectn/game/session"
	"nhooyr.io/websocket"
)

// ParticipantID is the identity of the first bot in a session. Further bots
// in the same session play as bot-2, bot-3 and so on.
const ParticipantID = "bot"

const (
	DefaultMoveDelay   = 500 * time.Millisecond
	DefaultJoinTimeout = 5 * time.Second
)

// ErrRejected is returned when the server closes the bot's connection
// during the join handshake
var ErrRejected = errors.New("bot rejected")

// TokenIssuer mints and revokes the bot's connection token
type TokenIssuer interface {
	CreateSessionToken(ctx context.Context, participantID string) (string, error)
	DestroySessionToken(ctx context.Context, token string) error
}

// Spawner starts bots against a game endpoint such as
// ws://localhost:8080/ws/game
type Spawner struct {
	endpoint string
	tokens   TokenIssuer
	logger   *slog.Logger

	MoveDelay   time.Duration
	JoinTimeout time.Duration

	mu     sync.Mutex
	active map[*player]struct{}
	ids    map[string]map[string]struct{}
	wg     sync.WaitGroup
}

// IsReserved reports whether id belongs to the bot namespace
func IsReserved(id string) bool {
	if id == ParticipantID {
		return true
	}
	n, ok := strings.CutPrefix(id, ParticipantID+"-")
	if !ok || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

func botID(n int) string {
	if n == 1 {
		return ParticipantID
	}
	return fmt.Sprintf("%s-%d", ParticipantID, n)
}

// claimID reserves the lowest free bot id in sessionID
func (s *Spawner) claimID(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	inUse := s.ids[sessionID]
	if inUse == nil {
		inUse = make(map[string]struct{})
		s.ids[sessionID] = inUse
	}
	for n := 1; ; n++ {
		id := botID(n)
		if _, taken := inUse[id]; !taken {
			inUse[id] = struct{}{}
			return id
		}
	}
}

func (s *Spawner) releaseID(sessionID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ids[sessionID], id)
	if len(s.ids[sessionID]) == 0 {
		delete(s.ids, sessionID)
	}
}

// NewSpawner creates a spawner dialing endpoint/<session id>
func NewSpawner(endpoint string, tokens TokenIssuer, logger *slog.Logger) *Spawner {
	return &Spawner{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		tokens:      tokens,
		logger:      logger,
		MoveDelay:   DefaultMoveDelay,
		JoinTimeout: DefaultJoinTimeout,
		active:      make(map[*player]struct{}),
		ids:         make(map[string]map[string]struct{}),
	}
}

// Spawn connects a bot to sessionID and returns its participant id once it
// has joined. Each bot in a session gets its own id.
func (s *Spawner) Spawn(ctx context.Context, sessionID string) (string, error) {
	id := s.claimID(sessionID)
	pid, err := s.spawn(ctx, sessionID, id)
	if err != nil {
		s.releaseID(sessionID, id)
		return "", err
	}
	return pid, nil
}

func (s *Spawner) spawn(ctx context.Context, sessionID, id string) (string, error) {
	token, err := s.tokens.CreateSessionToken(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to mint bot token: %w", err)
	}

	joinCtx, cancel := context.WithTimeout(ctx, s.JoinTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/%s?token=%s", s.endpoint, url.PathEscape(sessionID), url.QueryEscape(token))
	conn, _, err := websocket.Dial(joinCtx, u, nil)
	if err != nil {
		s.tokens.DestroySessionToken(context.Background(), token)
		return "", fmt.Errorf("failed to dial game endpoint: %w", err)
	}

	first, err := readOutbound(joinCtx, conn)
	if err != nil {
		s.tokens.DestroySessionToken(context.Background(), token)
		conn.Close(websocket.StatusNormalClosure, "")
		if code := websocket.CloseStatus(err); code != -1 {
			return "", fmt.Errorf("%w: %s", ErrRejected, protocol.CloseReason(int(code)))
		}
		return "", fmt.Errorf("failed to join session: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	p := &player{
		spawner:   s,
		conn:      conn,
		id:        id,
		sessionID: sessionID,
		token:     token,
		stop:      stop,
		played:    -1,
		log:       s.logger.With("session_id", sessionID, "participant_id", id),
	}

	s.mu.Lock()
	s.active[p] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p.run(runCtx, first)
	}()

	p.log.Info("bot joined")
	return id, nil
}

// Active returns the number of connected bots
func (s *Spawner) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown disconnects every bot and waits for them to clean up
func (s *Spawner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for p := range s.active {
		p.stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// player is one running bot connection
type player struct {
	spawner   *Spawner
	conn      *websocket.Conn
	id        string
	sessionID string
	token     string
	stop      context.CancelFunc
	log       *slog.Logger

	ready  bool
	played int
}

func (p *player) run(ctx context.Context, first protocol.Outbound) {
	defer p.teardown()

	if !p.handle(ctx, first) {
		return
	}
	for {
		msg, err := readOutbound(ctx, p.conn)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Debug("bot connection closed", "error", err)
			}
			return
		}
		if !p.handle(ctx, msg) {
			return
		}
	}
}

// handle reacts to one server message and reports whether to keep going
func (p *player) handle(ctx context.Context, msg protocol.Outbound) bool {
	switch msg.Kind {
	case protocol.KindJoin:
		if msg.ParticipantID != p.id {
			p.send(ctx, protocol.Chat(fmt.Sprintf("Hello there, %s!", msg.ParticipantID)))
		}
	case protocol.KindLeave:
		if msg.ParticipantID != p.id {
			p.send(ctx, protocol.Chat(fmt.Sprintf("Bye bye, %s!", msg.ParticipantID)))
		}
	case protocol.KindReady:
		if msg.ParticipantID != p.id {
			p.sendReady(ctx)
		}
	case protocol.KindState, protocol.KindMove:
		if msg.Session != nil {
			p.observe(ctx, *msg.Session)
		}
	case protocol.KindGameOver:
		p.conn.Close(websocket.StatusNormalClosure, "game over")
		return false
	}
	return true
}

func (p *player) observe(ctx context.Context, snap session.Snapshot) {
	switch snap.Phase {
	case session.PhaseCreation:
		othersReady := slices.ContainsFunc(snap.Ready, func(id string) bool {
			return id != p.id
		})
		if othersReady {
			p.sendReady(ctx)
		}
	case session.PhaseOngoing:
		p.maybeMove(ctx, snap)
	}
}

func (p *player) sendReady(ctx context.Context) {
	if p.ready {
		return
	}
	p.ready = true
	p.send(ctx, protocol.Ready())
}

// maybeMove plays a random legal column when the bot is to move on a board
// that is still open. Each position is played at most once.
func (p *player) maybeMove(ctx context.Context, snap session.Snapshot) {
	board := snap.Board
	if board == nil || len(snap.Roster) != board.Players {
		return
	}
	if snap.Roster[board.CurrentPlayer()] != p.id {
		return
	}
	if board.FindWinningRun() != nil || board.IsFull() {
		return
	}

	position := piecesOnBoard(board)
	if position == p.played {
		return
	}
	moves := board.LegalMoves()
	if len(moves) == 0 {
		return
	}
	p.played = position

	select {
	case <-time.After(p.spawner.MoveDelay):
	case <-ctx.Done():
		return
	}
	p.send(ctx, protocol.Move(moves[rand.IntN(len(moves))]))
}

func (p *player) send(ctx context.Context, msg protocol.Inbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		p.log.Debug("bot write failed", "kind", msg.Kind, "error", err)
	}
}

func (p *player) teardown() {
	p.conn.Close(websocket.StatusNormalClosure, "")
	if err := p.spawner.tokens.DestroySessionToken(context.Background(), p.token); err != nil {
		p.log.Warn("failed to destroy bot token", "error", err)
	}

	p.spawner.mu.Lock()
	delete(p.spawner.active, p)
	p.spawner.mu.Unlock()
	p.spawner.releaseID(p.sessionID, p.id)
	p.stop()
	p.log.Info("bot left")
}

func piecesOnBoard(b *engine.Board) int {
	total := 0
	for player := 0; player < b.Players; player++ {
		total += engine.CountPieces(b, player)
	}
	return total
}

func readOutbound(ctx context.Context, conn *websocket.Conn) (protocol.Outbound, error) {
	var msg protocol.Outbound
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("malformed server message: %w", err)
	}
	return msg, nil
}
