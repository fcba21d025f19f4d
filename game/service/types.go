package service

import (
	"errors"
	"time"

	"github.com/wricardo/connectn/game/session"
)

var (
	ErrBotsDisabled  = errors.New("bots are not enabled")
	ErrStoreDisabled = errors.New("result store is not configured")
)

// SessionInfo is a session snapshot plus registry bookkeeping
type SessionInfo struct {
	session.Snapshot
	LastActivity time.Time `json:"lastActivity"`
}

// BotInfo identifies a bot added to a session
type BotInfo struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

// PlayerStats are lifetime counters for one participant
type PlayerStats struct {
	ParticipantID string   `json:"participantId"`
	Wins          int      `json:"wins"`
	Losses        int      `json:"losses"`
	Ties          int      `json:"ties"`
	GameIDs       []string `json:"gameIDs"`
}

// TokenInfo is a freshly minted connection token
type TokenInfo struct {
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
}
