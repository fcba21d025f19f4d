package engine

import "errors"

const (
	// Empty marks an unoccupied cell
	Empty = -1

	// Validation constants
	MinPlayers    = 2
	MaxPlayers    = 8
	MinConnect    = 2
	MaxBoardSide  = 32
	DefaultWidth  = 7
	DefaultHeight = 6
)

var (
	ErrInvalidBoard = errors.New("invalid board")
	ErrIllegalMove  = errors.New("illegal move")
)

// Coord addresses a cell; row 0 is the bottom row
type Coord struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Move records a piece drop
type Move struct {
	Player int `json:"player"`
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Variant describes the shape of a match: grid size, run length and player count
type Variant struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Connect     int    `json:"connect" validate:"gte=2"`
	Players     int    `json:"players" validate:"gte=2,lte=8"`
	Width       int    `json:"width" validate:"gte=1,lte=32"`
	Height      int    `json:"height" validate:"gte=1,lte=32"`
}

// ClassicVariant is the standard 7x6 connect-four layout for two players
func ClassicVariant() Variant {
	return Variant{
		Name:        "classic",
		Description: "Standard connect four: 7 columns, 6 rows, two players",
		Connect:     4,
		Players:     2,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
	}
}
