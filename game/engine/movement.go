package engine

import "fmt"

// CanMove reports whether a piece can be dropped into the column
func (b *Board) CanMove(column int) bool {
	if column < 0 || column >= b.Width {
		return false
	}
	return b.Cells[b.Height-1][column] == Empty
}

// ApplyMove drops the current player's piece into the lowest empty row of
// the column and passes the turn. The board is left untouched when the move
// is illegal.
func (b *Board) ApplyMove(column int) (Move, error) {
	if !b.CanMove(column) {
		return Move{}, fmt.Errorf("%w: column %d", ErrIllegalMove, column)
	}

	row := 0
	for b.Cells[row][column] != Empty {
		row++
	}

	move := Move{Player: b.Turn, Row: row, Column: column}
	b.Cells[row][column] = b.Turn
	b.LastMove = &move
	b.Turn = (b.Turn + 1) % b.Players

	return move, nil
}

// IsFull reports whether every column's top cell is occupied
func (b *Board) IsFull() bool {
	for col := 0; col < b.Width; col++ {
		if b.CanMove(col) {
			return false
		}
	}
	return true
}

// LegalMoves lists the columns that still accept a piece
func (b *Board) LegalMoves() []int {
	moves := make([]int, 0, b.Width)
	for col := 0; col < b.Width; col++ {
		if b.CanMove(col) {
			moves = append(moves, col)
		}
	}
	return moves
}
