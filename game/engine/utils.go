package engine

// axis is a direction vector in (column, row) steps
type axis struct {
	dc, dr int
}

// Evaluation order matters when several axes complete at once.
var axes = []axis{
	{dc: 1, dr: 0},  // horizontal
	{dc: 0, dr: 1},  // vertical
	{dc: 1, dr: -1}, // diagonal down-right
	{dc: 1, dr: 1},  // diagonal down-left
}

// FindWinningRun returns the run created by the last move, ordered by
// ascending column (ascending row for vertical runs), or nil.
func (b *Board) FindWinningRun() []Coord {
	if b.LastMove == nil {
		return nil
	}
	origin := Coord{Row: b.LastMove.Row, Column: b.LastMove.Column}
	player := b.Cell(origin.Row, origin.Column)
	if player == Empty {
		return nil
	}

	for _, a := range axes {
		backward := b.walk(origin, -a.dc, -a.dr, player)
		forward := b.walk(origin, a.dc, a.dr, player)
		if len(backward)+1+len(forward) < b.Connect {
			continue
		}

		run := make([]Coord, 0, len(backward)+1+len(forward))
		for i := len(backward) - 1; i >= 0; i-- {
			run = append(run, backward[i])
		}
		run = append(run, origin)
		run = append(run, forward...)
		return run
	}

	return nil
}

// walk collects consecutive cells owned by player, starting next to origin
func (b *Board) walk(origin Coord, dc, dr, player int) []Coord {
	var cells []Coord
	row, col := origin.Row+dr, origin.Column+dc
	for b.inBounds(row, col) && b.Cells[row][col] == player {
		cells = append(cells, Coord{Row: row, Column: col})
		row += dr
		col += dc
	}
	return cells
}

// CountPieces counts the cells owned by the player
func CountPieces(b *Board, player int) int {
	count := 0
	for _, row := range b.Cells {
		for _, cell := range row {
			if cell == player {
				count++
			}
		}
	}
	return count
}
