// internal/tetris/board.go
package tetris

// Board dimensions and the spawn origin. Pieces spawn partially above the
// visible field, so y starts at -1 and cells with y < 0 are exempt from
// collision checks.
const (
	BoardWidth  = 10
	BoardHeight = 20

	spawnX = 4
	spawnY = -1
)

// Board is the visible playfield: BoardHeight rows of BoardWidth cells,
// 0 for empty or a color code for a locked block.
type Board [][]int

// NewBoard returns an empty playfield.
func NewBoard() Board {
	b := make(Board, BoardHeight)
	for i := range b {
		b[i] = make([]int, BoardWidth)
	}
	return b
}

// collides reports whether the piece overlaps a wall, the floor, or a locked
// block. Cells above the top edge never collide, not even horizontally.
func (b Board) collides(p Piece) bool {
	for _, c := range p.cells() {
		if c.Y < 0 {
			continue
		}
		if c.X < 0 || c.X >= BoardWidth || c.Y >= BoardHeight {
			return true
		}
		if b[c.Y][c.X] != 0 {
			return true
		}
	}
	return false
}

// place paints the piece's color code onto every in-field cell. Cells still
// above the top edge are dropped.
func (b Board) place(p Piece) {
	code := colorCode[p.Kind]
	for _, c := range p.cells() {
		if c.Y >= 0 && c.Y < BoardHeight && c.X >= 0 && c.X < BoardWidth {
			b[c.Y][c.X] = code
		}
	}
}

// clearLines removes every full row, shifts the stack down, and returns the
// number of rows cleared.
func (b *Board) clearLines() int {
	kept := make(Board, 0, BoardHeight)
	cleared := 0
	for _, row := range *b {
		full := true
		for _, cell := range row {
			if cell == 0 {
				full = false
				break
			}
		}
		if full {
			cleared++
		} else {
			kept = append(kept, row)
		}
	}
	for i := 0; i < cleared; i++ {
		kept = append([][]int{make([]int, BoardWidth)}, kept...)
	}
	*b = kept
	return cleared
}

// scoreForClear awards 100/300/500/800 for one through four lines. Anything
// beyond that falls back to 200 per line.
func scoreForClear(lines int) int {
	switch lines {
	case 0:
		return 0
	case 1:
		return 100
	case 2:
		return 300
	case 3:
		return 500
	case 4:
		return 800
	default:
		return lines * 200
	}
}
