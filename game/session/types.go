package session

import (
	"time"

	"github.com/wricardo/connectn/game/engine"
)

// PhaseName is the wire name of a session phase
type PhaseName string

const (
	PhaseCreation PhaseName = "creation"
	PhaseOngoing  PhaseName = "ongoing"
	PhaseOver     PhaseName = "over"
)

// Phase is one of *Creation, *Ongoing or *Over
type Phase interface {
	Name() PhaseName
}

// Creation collects participants until everyone connected is ready
type Creation struct {
	Ready []string
}

// Ongoing holds the live board and the roster frozen at start. Roster[i]
// plays board index i.
type Ongoing struct {
	Board  *engine.Board
	Roster []string
}

// Over retains the final board and roster of a finished match
type Over struct {
	Result Result
	Board  *engine.Board
	Roster []string
}

func (*Creation) Name() PhaseName { return PhaseCreation }
func (*Ongoing) Name() PhaseName  { return PhaseOngoing }
func (*Over) Name() PhaseName     { return PhaseOver }

// Result is the outcome of a finished match. Winner and WinningRun are
// empty on a draw.
type Result struct {
	ID          string         `json:"id"`
	Roster      []string       `json:"roster"`
	CompletedAt time.Time      `json:"completedAt"`
	Winner      string         `json:"winner,omitempty"`
	WinningRun  []engine.Coord `json:"winningRun,omitempty"`
	Draw        bool           `json:"draw"`
}

// Snapshot is the full client-facing view of a session
type Snapshot struct {
	ID        string         `json:"id"`
	Phase     PhaseName      `json:"phase"`
	Variant   engine.Variant `json:"variant"`
	Connected []string       `json:"connected"`
	Ready     []string       `json:"ready,omitempty"`
	Roster    []string       `json:"roster,omitempty"`
	Board     *engine.Board  `json:"board,omitempty"`
	Result    *Result        `json:"result,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
