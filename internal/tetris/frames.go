// internal/tetris/frames.go
package tetris

// bagRule names the deal discipline advertised to clients so they can
// replay deals locally from the seed.
const bagRule = "7-bag-FisherYates"

// MetaFrame greets every accepted connection with the room's determinism
// parameters.
type MetaFrame struct {
	Type    string  `json:"type"`
	Seed    int64   `json:"seed"`
	BagRule string  `json:"bagRule"`
	Gravity float64 `json:"gravity"`
}

// StartFrame announces the transition into the running phase.
type StartFrame struct {
	Type    string `json:"type"`
	Seed    int64  `json:"seed"`
	BagRule string `json:"bagRule"`
}

// PieceView is the wire shape of a falling piece.
type PieceView struct {
	Kind        Kind `json:"kind"`
	X           int  `json:"x"`
	Y           int  `json:"y"`
	Orientation int  `json:"orientation"`
}

// PlayerView is one player's full state inside a snapshot.
type PlayerView struct {
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	Board        [][]int   `json:"board"`
	Score        int       `json:"score"`
	Lines        int       `json:"lines"`
	Alive        bool      `json:"alive"`
	CurrentPiece PieceView `json:"current_piece"`
	Next         []Kind    `json:"next"`
	Hold         *Kind     `json:"hold"`
}

// SnapshotFrame carries the authoritative full state of the room.
type SnapshotFrame struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Room    string                `json:"room"`
	TS      int64                 `json:"ts"`
	Players map[string]PlayerView `json:"players"`
}

// PlayerUpdate is the reduced per-player state broadcast after each gravity
// tick.
type PlayerUpdate struct {
	CurrentPiece PieceView `json:"current_piece"`
	Score        int       `json:"score"`
	Lines        int       `json:"lines"`
	Alive        bool      `json:"alive"`
}

// UpdateFrame is the light heartbeat between snapshots.
type UpdateFrame struct {
	Type    string                  `json:"type"`
	Payload map[string]PlayerUpdate `json:"payload"`
	TS      int64                   `json:"ts"`
}

// OverFrame ends the game. Winner is null on a draw.
type OverFrame struct {
	Type   string  `json:"type"`
	Winner *string `json:"winner"`
}

// view renders the player for a snapshot, deep-copying everything mutable so
// the frame can be marshaled after the game lock is released.
func (p *PlayerState) view() PlayerView {
	board := make([][]int, len(p.Board))
	for i, row := range p.Board {
		board[i] = append([]int(nil), row...)
	}
	preview := p.NextQueue
	if len(preview) > 5 {
		preview = preview[:5]
	}
	var hold *Kind
	if p.Hold != nil {
		h := *p.Hold
		hold = &h
	}
	return PlayerView{
		Role:         p.Role,
		Name:         p.Name,
		Board:        board,
		Score:        p.Score,
		Lines:        p.Lines,
		Alive:        p.Alive,
		CurrentPiece: p.pieceView(),
		Next:         append([]Kind(nil), preview...),
		Hold:         hold,
	}
}

func (p *PlayerState) pieceView() PieceView {
	return PieceView{
		Kind:        p.Current.Kind,
		X:           p.Current.X,
		Y:           p.Current.Y,
		Orientation: p.Current.Orientation,
	}
}

func (p *PlayerState) update() PlayerUpdate {
	return PlayerUpdate{
		CurrentPiece: p.pieceView(),
		Score:        p.Score,
		Lines:        p.Lines,
		Alive:        p.Alive,
	}
}
