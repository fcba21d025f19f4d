// Package engine implements the N-in-a-row board used by every session.
//
// A Board is a fixed width x height grid with gravity: pieces dropped into a
// column land on the lowest empty row, and row 0 is the bottom row. Turns
// cycle through Players indexes. After each drop FindWinningRun inspects only
// the four axes through the last move, which is enough because only the new
// piece can create a new run.
//
// Usage:
//
//	board, err := engine.NewBoardFromVariant(engine.ClassicVariant())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if board.CanMove(3) {
//		board.ApplyMove(3)
//	}
//	if run := board.FindWinningRun(); run != nil {
//		// board.LastMove.Player won
//	}
//
// The package does no I/O and holds no shared state; callers serialize
// access to a board.
package engine
