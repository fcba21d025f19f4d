package session

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wricardo/connectn/game/engine"
)

// Session is one match. All reads and writes of its phase go through Do,
// which serializes them behind the session mutex.
type Session struct {
	ID        string
	Variant   engine.Variant
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	connected    []string
	phase        Phase
	// removed is set once the manager evicts the session; no one may join after
	removed bool
}

func newSession(id string, variant engine.Variant, now time.Time) *Session {
	return &Session{
		ID:           id,
		Variant:      variant,
		CreatedAt:    now,
		lastActivity: now,
		phase:        &Creation{},
	}
}

// Do runs fn with exclusive access to the session. Everything fn does,
// including enqueueing broadcasts, happens before any other Do call for
// this session starts.
func (s *Session) Do(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(&Tx{s: s})
	s.lastActivity = time.Now()
	return err
}

// remove marks the session evicted from its manager
func (s *Session) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
}

// removeIfIdle marks the session evicted when nobody is connected and it has
// been idle since before cutoff
func (s *Session) removeIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connected) > 0 || !s.lastActivity.Before(cutoff) {
		return false
	}
	s.removed = true
	return true
}

// Snapshot returns a copy of the session's current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// PhaseName returns the current phase
func (s *Session) PhaseName() PhaseName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.Name()
}

// LastActivity returns when the session was last touched
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Phase:     s.phase.Name(),
		Variant:   s.Variant,
		Connected: slices.Clone(s.connected),
		CreatedAt: s.CreatedAt,
	}
	if snap.Connected == nil {
		snap.Connected = []string{}
	}

	switch p := s.phase.(type) {
	case *Creation:
		snap.Ready = slices.Clone(p.Ready)
	case *Ongoing:
		snap.Roster = slices.Clone(p.Roster)
		snap.Board = p.Board.Clone()
	case *Over:
		result := p.Result
		snap.Roster = slices.Clone(p.Roster)
		snap.Board = p.Board.Clone()
		snap.Result = &result
	}
	return snap
}

// Tx is the locked view of a session handed to Do. It must not be retained
// after fn returns.
type Tx struct {
	s *Session
}

// ID returns the session id
func (tx *Tx) ID() string {
	return tx.s.ID
}

// Phase returns the current phase value
func (tx *Tx) Phase() Phase {
	return tx.s.phase
}

// Snapshot returns a copy of the session's current state
func (tx *Tx) Snapshot() Snapshot {
	return tx.s.snapshot()
}

// Connected returns the connected participants in join order
func (tx *Tx) Connected() []string {
	return slices.Clone(tx.s.connected)
}

// IsConnected reports whether the participant is connected
func (tx *Tx) IsConnected(participantID string) bool {
	return slices.Contains(tx.s.connected, participantID)
}

// Join admits a participant. A session already evicted from its manager
// reports ErrSessionNotFound. Joining twice is a no-op. While gathering
// players the session is capped at Variant.Players; once started only
// roster members may come back.
func (tx *Tx) Join(participantID string) error {
	s := tx.s
	if s.removed {
		return ErrSessionNotFound
	}
	if slices.Contains(s.connected, participantID) {
		return nil
	}

	switch p := s.phase.(type) {
	case *Creation:
		if len(s.connected) >= s.Variant.Players {
			return ErrSessionFull
		}
	case *Ongoing:
		if !slices.Contains(p.Roster, participantID) {
			return ErrAlreadyStarted
		}
	case *Over:
		if !slices.Contains(p.Roster, participantID) {
			return ErrAlreadyStarted
		}
	}

	s.connected = append(s.connected, participantID)
	return nil
}

// Leave disconnects a participant and reports whether it was connected.
// Roster membership is unaffected.
func (tx *Tx) Leave(participantID string) bool {
	s := tx.s
	if !slices.Contains(s.connected, participantID) {
		return false
	}
	s.connected = lo.Without(s.connected, participantID)
	if c, ok := s.phase.(*Creation); ok {
		c.Ready = lo.Without(c.Ready, participantID)
	}
	return true
}

// SetReady marks a connected participant ready. changed is false when the
// call had no effect; fullyReady reports whether Start may now be called.
func (tx *Tx) SetReady(participantID string) (changed, fullyReady bool) {
	c, ok := tx.s.phase.(*Creation)
	if !ok {
		return false, false
	}
	if !slices.Contains(tx.s.connected, participantID) || slices.Contains(c.Ready, participantID) {
		return false, tx.fullyReady()
	}
	c.Ready = append(c.Ready, participantID)
	return true, tx.fullyReady()
}

func (tx *Tx) fullyReady() bool {
	s := tx.s
	c, ok := s.phase.(*Creation)
	if !ok || len(s.connected) != s.Variant.Players || len(c.Ready) != len(s.connected) {
		return false
	}
	return lo.Every(c.Ready, s.connected)
}

// Start moves a fully ready session into play. The roster is the ready set
// in join order.
func (tx *Tx) Start() (*Ongoing, error) {
	s := tx.s
	if _, ok := s.phase.(*Creation); !ok {
		return nil, fmt.Errorf("start: %w", ErrWrongPhase)
	}
	if !tx.fullyReady() {
		return nil, ErrNotReady
	}

	board, err := engine.NewBoardFromVariant(s.Variant)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	ongoing := &Ongoing{Board: board, Roster: slices.Clone(s.connected)}
	s.phase = ongoing
	return ongoing, nil
}

// ValidateMove reports whether the participant may drop into column now
func (tx *Tx) ValidateMove(participantID string, column int) bool {
	o, ok := tx.s.phase.(*Ongoing)
	if !ok {
		return false
	}
	return o.Roster[o.Board.Turn] == participantID && o.Board.CanMove(column)
}

// ApplyMove plays column for the participant whose turn it is
func (tx *Tx) ApplyMove(column int) (engine.Move, error) {
	o, ok := tx.s.phase.(*Ongoing)
	if !ok {
		return engine.Move{}, fmt.Errorf("apply move: %w", ErrWrongPhase)
	}
	return o.Board.ApplyMove(column)
}

// Outcome inspects the board after a move and builds the result when the
// match is decided
func (tx *Tx) Outcome() (Result, bool) {
	o, ok := tx.s.phase.(*Ongoing)
	if !ok {
		return Result{}, false
	}

	result := Result{
		ID:          tx.s.ID,
		Roster:      slices.Clone(o.Roster),
		CompletedAt: time.Now().UTC(),
	}

	if run := o.Board.FindWinningRun(); run != nil {
		result.Winner = o.Roster[o.Board.LastMove.Player]
		result.WinningRun = run
		return result, true
	}
	if o.Board.IsFull() {
		result.Draw = true
		return result, true
	}
	return Result{}, false
}

// Finish ends the match. The board is frozen into the Over phase.
func (tx *Tx) Finish(result Result) error {
	o, ok := tx.s.phase.(*Ongoing)
	if !ok {
		return fmt.Errorf("finish: %w", ErrWrongPhase)
	}
	tx.s.phase = &Over{
		Result: result,
		Board:  o.Board.Clone(),
		Roster: slices.Clone(o.Roster),
	}
	return nil
}
