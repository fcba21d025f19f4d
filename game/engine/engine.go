package engine

import "fmt"

// Engine is the read/write surface of a board used by the session layer
type Engine interface {
	CanMove(column int) bool
	ApplyMove(column int) (Move, error)
	FindWinningRun() []Coord
	IsFull() bool
	LegalMoves() []int
	CurrentPlayer() int
}

// Board is an N-in-a-row grid with gravity. Cells is indexed [row][column]
// and row 0 is the bottom row.
type Board struct {
	Connect  int     `json:"connect"`
	Players  int     `json:"players"`
	Turn     int     `json:"turn"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Cells    [][]int `json:"cells"`
	LastMove *Move   `json:"lastMove,omitempty"`
}

var _ Engine = (*Board)(nil)

// NewBoard creates an empty board with turn index 0
func NewBoard(connect, players, width, height int) (*Board, error) {
	if players < MinPlayers {
		return nil, fmt.Errorf("%w: need at least %d players, got %d", ErrInvalidBoard, MinPlayers, players)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrInvalidBoard, width, height)
	}
	if connect < MinConnect || connect > max(width, height) {
		return nil, fmt.Errorf("%w: connect must be between %d and %d, got %d",
			ErrInvalidBoard, MinConnect, max(width, height), connect)
	}

	cells := make([][]int, height)
	for row := range cells {
		cells[row] = make([]int, width)
		for col := range cells[row] {
			cells[row][col] = Empty
		}
	}

	return &Board{
		Connect: connect,
		Players: players,
		Width:   width,
		Height:  height,
		Cells:   cells,
	}, nil
}

// NewBoardFromVariant creates an empty board shaped by the variant
func NewBoardFromVariant(v Variant) (*Board, error) {
	return NewBoard(v.Connect, v.Players, v.Width, v.Height)
}

// CurrentPlayer returns the index of the player to move
func (b *Board) CurrentPlayer() int {
	return b.Turn
}

// Cell returns the occupant of a cell, or Empty when out of bounds
func (b *Board) Cell(row, column int) int {
	if !b.inBounds(row, column) {
		return Empty
	}
	return b.Cells[row][column]
}

// Clone returns a deep copy
func (b *Board) Clone() *Board {
	clone := *b
	clone.Cells = make([][]int, len(b.Cells))
	for row := range b.Cells {
		clone.Cells[row] = append([]int(nil), b.Cells[row]...)
	}
	if b.LastMove != nil {
		last := *b.LastMove
		clone.LastMove = &last
	}
	return &clone
}

func (b *Board) inBounds(row, column int) bool {
	return row >= 0 && row < b.Height && column >= 0 && column < b.Width
}
