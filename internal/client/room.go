// internal/client/room.go
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blockhaus/blockhaus/internal/protocol"
)

// Moves accepted by the room server's input action.
const (
	MoveLeft      = "Left"
	MoveRight     = "Right"
	MoveRotateCW  = "RotateCW"
	MoveRotateCCW = "RotateCCW"
	MoveSoftDrop  = "SoftDrop"
	MoveHardDrop  = "HardDrop"
	MoveHold      = "Hold"
)

// Room is a connection to one running room server. Unlike the lobby, the
// room pushes frames on its own schedule, so reads and writes are split:
// callers drive Next from one goroutine and may send inputs from another.
type Room struct {
	conn net.Conn
}

// DialRoom connects to a room server at addr (host:port from join-room).
func DialRoom(ctx context.Context, addr string) (*Room, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("room dial failed: %w", err)
	}
	return &Room{conn: conn}, nil
}

func (r *Room) Close() error { return r.conn.Close() }

// SetReadDeadline bounds the next Next call.
func (r *Room) SetReadDeadline(t time.Time) error { return r.conn.SetReadDeadline(t) }

func (r *Room) send(action string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}
	if err := protocol.WriteMessage(r.conn, protocol.Request{Action: action, Data: raw}); err != nil {
		return fmt.Errorf("room request failed: %w", err)
	}
	return nil
}

// GameMeta is the greeting pushed after a successful join.
type GameMeta struct {
	Seed    int64   `json:"seed"`
	BagRule string  `json:"bagRule"`
	Gravity float64 `json:"gravity"`
}

// Join claims a seat and must be the first exchange on the connection.
// Role is p1, p2, or anything else to spectate. A rejected join (slot
// already taken) comes back as an error and the server hangs up.
func (r *Room) Join(role, name string) (GameMeta, error) {
	if err := r.send("join", map[string]any{"role": role, "name": name}); err != nil {
		return GameMeta{}, err
	}
	frame, err := r.Next()
	if err != nil {
		return GameMeta{}, err
	}
	if frame.Type != "game_meta" {
		return GameMeta{}, fmt.Errorf("expected game_meta frame, got %q", frame.Type)
	}
	var meta GameMeta
	if err := frame.Decode(&meta); err != nil {
		return GameMeta{}, err
	}
	return meta, nil
}

// Start asks the room to begin the match. The room only starts once both
// player seats are claimed.
func (r *Room) Start() error { return r.send("start_game", nil) }

// Input sends one move stamped with the client's send time in seconds.
func (r *Room) Input(move string) error {
	ts := float64(time.Now().UnixNano()) / float64(time.Second)
	return r.send("input", map[string]any{"move": move, "ts": ts})
}

// RequestSnapshot asks for an immediate snapshot frame, ahead of the
// periodic broadcast.
func (r *Room) RequestSnapshot() error { return r.send("request_snapshot", nil) }

// Frame is one message pushed by the room server. Type discriminates
// (game_meta, game_start, snapshot, state_update, game_over); Decode
// unmarshals the full frame into the matching struct.
type Frame struct {
	Type string
	raw  json.RawMessage
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(v any) error { return json.Unmarshal(f.raw, v) }

// Next reads the next pushed frame. Error frames from the server come back
// as plain errors carrying the server's message.
func (r *Room) Next() (Frame, error) {
	raw, err := protocol.ReadRaw(r.conn)
	if err != nil {
		return Frame{}, err
	}
	var probe struct {
		Type     string `json:"type"`
		Status   string `json:"status"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", protocol.ErrBadJSON, err)
	}
	if probe.Status == protocol.StatusError {
		return Frame{}, errors.New(probe.ErrorMsg)
	}
	return Frame{Type: probe.Type, raw: raw}, nil
}

// NextOfType reads frames until one of the wanted type arrives, discarding
// others. Useful when periodic snapshots interleave with the frame a
// caller is waiting on.
func (r *Room) NextOfType(frameType string) (Frame, error) {
	for {
		frame, err := r.Next()
		if err != nil {
			return Frame{}, err
		}
		if frame.Type == frameType {
			return frame, nil
		}
	}
}
