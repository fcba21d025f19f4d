// Package protocol defines the JSON envelopes exchanged over a game
// connection and the close codes used to reject or evict one.
package protocol

import (
	"encoding/json"

	"github.com/wricardo/connectn/game/session"
)

// Message kinds. ready, move and chat flow both ways.
const (
	KindReady    = "ready"
	KindMove     = "move"
	KindChat     = "chat"
	KindState    = "state"
	KindJoin     = "join"
	KindLeave    = "leave"
	KindGameOver = "gameover"
)

// Close codes sent when a connection is rejected or evicted
const (
	CloseNotAuthorized       = 4001
	CloseGameAlreadyStarted  = 4002
	CloseGameFull            = 4003
	CloseNotFound            = 4004
	CloseRedundantConnection = 4008
)

// CloseReason returns the reason text sent with a close code
func CloseReason(code int) string {
	switch code {
	case CloseNotAuthorized:
		return "NOT_AUTHORIZED"
	case CloseGameAlreadyStarted:
		return "GAME_ALREADY_STARTED"
	case CloseGameFull:
		return "GAME_FULL"
	case CloseNotFound:
		return "NOT_FOUND"
	case CloseRedundantConnection:
		return "REDUNDANT_CONNECTION"
	default:
		return ""
	}
}

// Inbound is a client to server message. Column is a pointer so a move
// without one can be told apart from column 0.
type Inbound struct {
	Kind   string `json:"kind"`
	Column *int   `json:"column,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Outbound is a server to client message
type Outbound struct {
	Kind          string            `json:"kind"`
	ParticipantID string            `json:"participantId,omitempty"`
	Session       *session.Snapshot `json:"session,omitempty"`
	Result        *session.Result   `json:"result,omitempty"`
	Text          string            `json:"text,omitempty"`
}

// Decode parses an inbound envelope
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(data, &in)
	return in, err
}

// Ready builds a ready request
func Ready() Inbound {
	return Inbound{Kind: KindReady}
}

// Move builds a move request
func Move(column int) Inbound {
	return Inbound{Kind: KindMove, Column: &column}
}

// Chat builds a chat request
func Chat(text string) Inbound {
	return Inbound{Kind: KindChat, Text: text}
}

// State wraps a full snapshot
func State(snap session.Snapshot) Outbound {
	return Outbound{Kind: KindState, Session: &snap}
}

// Joined announces a participant joining
func Joined(participantID string) Outbound {
	return Outbound{Kind: KindJoin, ParticipantID: participantID}
}

// Left announces a participant leaving
func Left(participantID string) Outbound {
	return Outbound{Kind: KindLeave, ParticipantID: participantID}
}

// ReadyBy announces a participant being ready
func ReadyBy(participantID string) Outbound {
	return Outbound{Kind: KindReady, ParticipantID: participantID}
}

// Moved announces a played move with the updated session
func Moved(participantID string, snap session.Snapshot) Outbound {
	return Outbound{Kind: KindMove, ParticipantID: participantID, Session: &snap}
}

// GameOver announces the result
func GameOver(result session.Result) Outbound {
	return Outbound{Kind: KindGameOver, Result: &result}
}

// ChatFrom relays a chat line
func ChatFrom(participantID, text string) Outbound {
	return Outbound{Kind: KindChat, ParticipantID: participantID, Text: text}
}
