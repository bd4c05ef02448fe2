// internal/tetris/game.go
//
// Package tetris implements the head-to-head Tetris room: a deterministic
// two-player engine (shared 7-bag deal, SRS rotation, gravity with lock
// delay) and the framed TCP server that exposes it to clients and
// spectators. One process hosts exactly one room and exits when the game
// ends.
package tetris

import (
	"errors"
	"sync"
	"time"
)

// Pace of the simulation.
const (
	Gravity          = 800 * time.Millisecond
	SnapshotInterval = 200 * time.Millisecond
	LockDelay        = 400 * time.Millisecond
)

// playerRoles fixes the processing order so that equal-seed games replay
// identically regardless of map iteration.
var playerRoles = [2]string{"p1", "p2"}

// ErrSlotTaken rejects a join for an already-claimed player slot.
var ErrSlotTaken = errors.New("slot taken")

// Game is the authoritative room state. One mutex serializes every mutation:
// joins, inputs, gravity ticks, and snapshot reads.
type Game struct {
	RoomID string
	Seed   int64

	mu      sync.Mutex
	bag     *BagGenerator
	players map[string]*PlayerState
	started bool
	over    bool
}

// NewGame creates a room with the given seed. Seed zero is replaced by the
// current Unix time, matching an omitted command-line seed.
func NewGame(roomID string, seed int64) *Game {
	if seed == 0 {
		seed = time.Now().Unix()
	}
	return &Game{
		RoomID:  roomID,
		Seed:    seed,
		bag:     NewBagGenerator(seed),
		players: make(map[string]*PlayerState),
	}
}

// Meta renders the greeting frame sent to every accepted connection.
func (g *Game) Meta() MetaFrame {
	return MetaFrame{Type: "game_meta", Seed: g.Seed, BagRule: bagRule, Gravity: Gravity.Seconds()}
}

// AddPlayer claims a player slot and deals the opening pieces from the
// shared bag, so join order determines the deal split between players.
func (g *Game) AddPlayer(role, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.players[role]; ok {
		return ErrSlotTaken
	}
	p := newPlayerState(role, name, g.bag)
	if p.Board.collides(p.Current) {
		p.Alive = false
	}
	g.players[role] = p
	return nil
}

// DropPlayer marks a disconnected player dead. Their state stays on the
// board so the end condition and snapshots still see them.
func (g *Game) DropPlayer(role string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[role]; ok {
		p.Alive = false
	}
}

// PlayerCount returns the number of claimed player slots.
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// TryStart flips the game into the running phase exactly once and reports
// whether this call did the flip.
func (g *Game) TryStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.started = true
	return true
}

// Started reports whether the game has begun.
func (g *Game) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// StartFrame renders the start announcement.
func (g *Game) StartFrame() StartFrame {
	return StartFrame{Type: "game_start", Seed: g.Seed, BagRule: bagRule}
}

// ApplyInput processes one client move for the given role. Inputs from
// unclaimed roles or dead players are dropped. The now parameter anchors the
// lock timer for soft drops.
func (g *Game) ApplyInput(role, move string, ts float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[role]
	if !ok || !p.Alive {
		return
	}
	p.lastMoveTS = ts
	switch move {
	case "Left":
		p.tryMove(-1)
	case "Right":
		p.tryMove(1)
	case "RotateCW":
		p.tryRotate(true)
	case "RotateCCW":
		p.tryRotate(false)
	case "SoftDrop":
		p.softDrop(now)
	case "HardDrop":
		p.hardDrop()
	case "Hold":
		p.holdPiece()
	}
}

// GravityResult is the outcome of one gravity tick.
type GravityResult struct {
	Over   bool
	Winner *string
	Update *UpdateFrame
}

// StepGravity advances every living player one tick in fixed p1-then-p2
// order, then evaluates the end condition. With at most one player left
// alive the game is over and the survivor (if any) wins.
func (g *Game) StepGravity(now time.Time) GravityResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started || g.over {
		return GravityResult{Over: g.over}
	}

	for _, role := range playerRoles {
		if p, ok := g.players[role]; ok && p.Alive {
			p.stepGravity(now)
		}
	}

	var alive []*PlayerState
	for _, role := range playerRoles {
		if p, ok := g.players[role]; ok && p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) <= 1 {
		g.over = true
		var winner *string
		if len(alive) == 1 {
			name := alive[0].Name
			winner = &name
		}
		return GravityResult{Over: true, Winner: winner}
	}

	update := g.updateFrameLocked(now)
	return GravityResult{Update: &update}
}

func (g *Game) updateFrameLocked(now time.Time) UpdateFrame {
	payload := make(map[string]PlayerUpdate, len(g.players))
	for role, p := range g.players {
		payload[role] = p.update()
	}
	return UpdateFrame{Type: "state_update", Payload: payload, TS: now.UnixMilli()}
}

// Snapshot renders the full authoritative state for broadcast or on demand.
func (g *Game) Snapshot(now time.Time) SnapshotFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	players := make(map[string]PlayerView, len(g.players))
	for role, p := range g.players {
		players[role] = p.view()
	}
	return SnapshotFrame{
		Type:    "snapshot",
		Payload: SnapshotPayload{Room: g.RoomID, TS: now.UnixMilli(), Players: players},
	}
}
