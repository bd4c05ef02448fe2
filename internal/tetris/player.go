// internal/tetris/player.go
package tetris

import "time"

// PlayerState is one player's complete game state. All methods assume the
// owning Game's mutex is held.
type PlayerState struct {
	Role  string
	Name  string
	Board Board
	Score int
	Lines int
	Alive bool

	Current   Piece
	NextQueue []Kind
	Hold      *Kind

	holdUsed   bool
	lockTimer  time.Time // zero while the piece is airborne
	lastMoveTS float64

	bag *BagGenerator
}

func newPlayerState(role, name string, bag *BagGenerator) *PlayerState {
	p := &PlayerState{
		Role:  role,
		Name:  name,
		Board: NewBoard(),
		Alive: true,
		bag:   bag,
	}
	p.fillNext()
	p.spawnNew()
	return p
}

// fillNext tops the preview queue back up to seven pieces from the shared bag.
func (p *PlayerState) fillNext() {
	for len(p.NextQueue) < 7 {
		p.NextQueue = append(p.NextQueue, p.bag.Next())
	}
}

// spawnNew pops the next piece into play at the spawn origin and re-arms
// hold. Callers check for spawn collision to detect top-out.
func (p *PlayerState) spawnNew() {
	p.fillNext()
	kind := p.NextQueue[0]
	p.NextQueue = p.NextQueue[1:]
	p.Current = Piece{Kind: kind, X: spawnX, Y: spawnY}
	p.holdUsed = false
}

// tryMove shifts the piece horizontally. Success resets the lock timer.
func (p *PlayerState) tryMove(dx int) bool {
	moved := p.Current
	moved.X += dx
	if p.Board.collides(moved) {
		return false
	}
	p.Current = moved
	p.lockTimer = time.Time{}
	return true
}

// tryRotate attempts the rotation with its SRS kick candidates in order and
// commits the first placement that fits. Success resets the lock timer.
func (p *PlayerState) tryRotate(clockwise bool) bool {
	from := p.Current.Orientation
	to := (from + 1) % 4
	if !clockwise {
		to = (from + 3) % 4
	}
	for _, kick := range kicksFor(p.Current.Kind, from, to) {
		candidate := Piece{
			Kind:        p.Current.Kind,
			X:           p.Current.X + kick.X,
			Y:           p.Current.Y + kick.Y,
			Orientation: to,
		}
		if !p.Board.collides(candidate) {
			p.Current = candidate
			p.lockTimer = time.Time{}
			return true
		}
	}
	return false
}

// softDrop moves the piece down one cell for one bonus point. On ground
// contact it starts the lock timer instead.
func (p *PlayerState) softDrop(now time.Time) bool {
	down := p.Current
	down.Y++
	if !p.Board.collides(down) {
		p.Current = down
		p.Score++
		p.lockTimer = time.Time{}
		return true
	}
	if p.lockTimer.IsZero() {
		p.lockTimer = now
	}
	return false
}

// hardDrop slams the piece to the floor and locks it immediately for a flat
// ten point bonus.
func (p *PlayerState) hardDrop() {
	for {
		down := p.Current
		down.Y++
		if p.Board.collides(down) {
			break
		}
		p.Current = down
	}
	p.lockPiece(true)
}

// holdPiece stashes the current piece. The first hold deals a replacement
// from the queue; later holds swap with the stash. One hold per piece.
func (p *PlayerState) holdPiece() bool {
	if p.holdUsed {
		return false
	}
	if p.Hold == nil {
		kind := p.Current.Kind
		p.Hold = &kind
		p.spawnNew()
	} else {
		swapped := *p.Hold
		kind := p.Current.Kind
		p.Hold = &kind
		p.Current = Piece{Kind: swapped, X: spawnX, Y: spawnY}
	}
	if p.Board.collides(p.Current) {
		p.Alive = false
	}
	p.holdUsed = true
	return true
}

// lockPiece fixes the current piece onto the board, clears lines, scores,
// and spawns the next piece. A blocked spawn tops the player out.
func (p *PlayerState) lockPiece(hard bool) {
	p.Board.place(p.Current)
	if cleared := p.Board.clearLines(); cleared > 0 {
		p.Lines += cleared
		p.Score += scoreForClear(cleared)
	}
	p.spawnNew()
	if p.Board.collides(p.Current) {
		p.Alive = false
	}
	p.lockTimer = time.Time{}
	if hard {
		p.Score += 10
	}
}

// stepGravity advances one gravity tick: descend if possible, otherwise arm
// the lock timer and lock once the piece has rested a full lock delay.
func (p *PlayerState) stepGravity(now time.Time) {
	down := p.Current
	down.Y++
	if !p.Board.collides(down) {
		p.Current = down
		p.lockTimer = time.Time{}
		return
	}
	if p.lockTimer.IsZero() {
		p.lockTimer = now
		return
	}
	if now.Sub(p.lockTimer) >= LockDelay {
		p.lockPiece(false)
	}
}
