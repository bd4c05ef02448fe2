// internal/tetris/pieces.go
package tetris

// Kind identifies one of the seven tetromino shapes.
type Kind string

const (
	KindI Kind = "I"
	KindO Kind = "O"
	KindT Kind = "T"
	KindS Kind = "S"
	KindZ Kind = "Z"
	KindJ Kind = "J"
	KindL Kind = "L"
)

// kinds is the canonical bag order.
var kinds = [7]Kind{KindI, KindO, KindT, KindS, KindZ, KindJ, KindL}

// colorCode maps each kind to the cell value painted onto the board.
var colorCode = map[Kind]int{
	KindI: 1,
	KindO: 2,
	KindT: 3,
	KindS: 4,
	KindZ: 5,
	KindJ: 6,
	KindL: 7,
}

// Offset is a cell position relative to a piece origin, or an absolute board
// cell once translated. Y grows downward.
type Offset struct {
	X, Y int
}

// baseCells holds each kind's spawn-orientation cells.
var baseCells = map[Kind][4]Offset{
	KindI: {{-2, 0}, {-1, 0}, {0, 0}, {1, 0}},
	KindO: {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	KindT: {{-1, 0}, {0, 0}, {1, 0}, {0, 1}},
	KindS: {{-1, 1}, {0, 1}, {0, 0}, {1, 0}},
	KindZ: {{-1, 0}, {0, 0}, {0, 1}, {1, 1}},
	KindJ: {{-1, 0}, {0, 0}, {1, 0}, {-1, 1}},
	KindL: {{-1, 0}, {0, 0}, {1, 0}, {1, 1}},
}

type kickKey struct {
	from, to int
}

// SRS wall-kick offsets for J, L, S, T and Z, keyed by (from, to) rotation
// state. Offsets apply directly in board coordinates.
var jlstzKicks = map[kickKey][]Offset{
	{0, 1}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{1, 0}: {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{1, 2}: {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{2, 1}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{2, 3}: {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
	{3, 2}: {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{3, 0}: {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{0, 3}: {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
}

// SRS wall-kick offsets for the I piece.
var iKicks = map[kickKey][]Offset{
	{0, 1}: {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{1, 0}: {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{1, 2}: {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
	{2, 1}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{2, 3}: {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{3, 2}: {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{3, 0}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{0, 3}: {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
}

var noKick = []Offset{{0, 0}}

// kicksFor returns the ordered kick candidates for a rotation between two
// states. O never kicks; an unknown transition degrades to the null kick.
func kicksFor(kind Kind, from, to int) []Offset {
	key := kickKey{from, to}
	switch kind {
	case KindO:
		return noKick
	case KindI:
		if k, ok := iKicks[key]; ok {
			return k
		}
		return noKick
	default:
		if k, ok := jlstzKicks[key]; ok {
			return k
		}
		return noKick
	}
}

// Piece is a falling tetromino: kind plus origin position and rotation state.
type Piece struct {
	Kind        Kind
	X, Y        int
	Orientation int
}

// cells returns the piece's four absolute board cells. Rotation applies the
// clockwise map (x, y) -> (y, -x) once per orientation step.
func (p Piece) cells() [4]Offset {
	cells := baseCells[p.Kind]
	for i := 0; i < p.Orientation%4; i++ {
		for j, c := range cells {
			cells[j] = Offset{c.Y, -c.X}
		}
	}
	for j := range cells {
		cells[j].X += p.X
		cells[j].Y += p.Y
	}
	return cells
}
