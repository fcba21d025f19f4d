package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/wricardo/connectn/game/protocol"
	"github.com/wricardo/connectn/game/session"
)

// DefaultMaxChatLength caps relayed chat lines, in runes
const DefaultMaxChatLength = 500

// IdentityResolver maps a connection token to a participant id
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (string, error)
}

// ResultRecorder receives finished match results. Record must not block.
type ResultRecorder interface {
	Record(result session.Result)
}

// Handler runs the game protocol for every connection
type Handler struct {
	sessions      *session.Manager
	hub           *Hub
	identity      IdentityResolver
	recorder      ResultRecorder
	logger        *slog.Logger
	MaxChatLength int
}

// NewHandler wires the protocol handler to its registries and collaborators
func NewHandler(sessions *session.Manager, hub *Hub, identity IdentityResolver, recorder ResultRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:      sessions,
		hub:           hub,
		identity:      identity,
		recorder:      recorder,
		logger:        logger,
		MaxChatLength: DefaultMaxChatLength,
	}
}

// ServeWS upgrades the request and runs the join handshake for sessionID.
// The token is read from the "token" query parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		reject(conn, protocol.CloseNotAuthorized)
		return
	}
	participantID, err := h.identity.ResolveIdentity(r.Context(), token)
	if err != nil || participantID == "" {
		h.logger.Debug("rejected connection", "session_id", sessionID, "reason", "not authorized", "error", err)
		reject(conn, protocol.CloseNotAuthorized)
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		reject(conn, protocol.CloseNotFound)
		return
	}

	client := newClient(h.hub, conn, sessionID, participantID)
	err = sess.Do(func(tx *session.Tx) error {
		if err := tx.Join(participantID); err != nil {
			return err
		}
		h.hub.Register(client)
		h.hub.Send(sessionID, participantID, protocol.State(tx.Snapshot()))
		h.hub.BroadcastExcept(sessionID, participantID, protocol.Joined(participantID))
		return nil
	})
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		// deleted between lookup and join
		reject(conn, protocol.CloseNotFound)
		return
	case errors.Is(err, session.ErrSessionFull):
		reject(conn, protocol.CloseGameFull)
		return
	case errors.Is(err, session.ErrAlreadyStarted):
		reject(conn, protocol.CloseGameAlreadyStarted)
		return
	case err != nil:
		h.logger.Error("join failed", "session_id", sessionID, "participant_id", participantID, "error", err)
		reject(conn, protocol.CloseNotFound)
		return
	}

	h.logger.Info("participant joined", "session_id", sessionID, "participant_id", participantID)

	c := &connection{handler: h, client: client, session: sess}
	go client.writePump()
	go client.readPump(c.handle, c.disconnect)
}

// connection is the joined state of one client: its inbound messages are
// applied to the session it joined
type connection struct {
	handler *Handler
	client  *Client
	session *session.Session
}

func (c *connection) log() *slog.Logger {
	return c.handler.logger.With("session_id", c.client.sessionID, "participant_id", c.client.participantID)
}

// handle dispatches one inbound frame. Malformed and unknown messages are
// dropped.
func (c *connection) handle(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		c.log().Debug("dropped malformed message", "error", err)
		return
	}

	switch in.Kind {
	case protocol.KindReady:
		c.ready()
	case protocol.KindMove:
		if in.Column == nil {
			c.log().Debug("dropped move without column")
			return
		}
		c.move(*in.Column)
	case protocol.KindChat:
		c.chat(in.Text)
	default:
		c.log().Debug("dropped unknown message", "kind", in.Kind)
	}
}

func (c *connection) ready() {
	hub := c.handler.hub
	sessionID := c.client.sessionID
	participantID := c.client.participantID

	c.session.Do(func(tx *session.Tx) error {
		if _, ok := tx.Phase().(*session.Creation); !ok {
			return nil
		}
		changed, fullyReady := tx.SetReady(participantID)
		if !changed {
			return nil
		}
		hub.Broadcast(sessionID, protocol.ReadyBy(participantID))
		if !fullyReady {
			return nil
		}

		if _, err := tx.Start(); err != nil {
			c.log().Error("failed to start session", "error", err)
			return err
		}
		c.log().Info("session started")
		hub.Broadcast(sessionID, protocol.State(tx.Snapshot()))
		return nil
	})
}

func (c *connection) move(column int) {
	hub := c.handler.hub
	sessionID := c.client.sessionID
	participantID := c.client.participantID

	c.session.Do(func(tx *session.Tx) error {
		if _, ok := tx.Phase().(*session.Ongoing); !ok {
			return nil
		}
		if !tx.ValidateMove(participantID, column) {
			c.log().Debug("dropped illegal move", "column", column)
			return nil
		}
		if _, err := tx.ApplyMove(column); err != nil {
			return err
		}
		hub.Broadcast(sessionID, protocol.Moved(participantID, tx.Snapshot()))

		result, done := tx.Outcome()
		if !done {
			return nil
		}
		if err := tx.Finish(result); err != nil {
			return err
		}
		c.log().Info("session over", "winner", result.Winner, "draw", result.Draw)
		if c.handler.recorder != nil {
			c.handler.recorder.Record(result)
		}
		hub.Broadcast(sessionID, protocol.GameOver(result))
		hub.Broadcast(sessionID, protocol.State(tx.Snapshot()))
		return nil
	})
}

func (c *connection) chat(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if limit := c.handler.MaxChatLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}

	c.session.Do(func(tx *session.Tx) error {
		c.handler.hub.Broadcast(c.client.sessionID, protocol.ChatFrom(c.client.participantID, text))
		return nil
	})
}

// disconnect leaves the session unless a newer connection of the same
// participant has taken over
func (c *connection) disconnect() {
	hub := c.handler.hub
	left := false
	c.session.Do(func(tx *session.Tx) error {
		if !hub.Unregister(c.client) {
			return nil
		}
		if left = tx.Leave(c.client.participantID); left {
			hub.Broadcast(c.client.sessionID, protocol.Left(c.client.participantID))
		}
		return nil
	})
	if left {
		c.log().Info("participant left")
	}
}
