// internal/tetris/server.go
package tetris

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blockhaus/blockhaus/internal/protocol"
)

type clientInfo struct {
	role string
	name string
}

// joinData is the payload of the mandatory first frame.
type joinData struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// inputData is the payload of an input frame. TS is the client's send time
// in float seconds.
type inputData struct {
	Move string  `json:"move"`
	TS   float64 `json:"ts"`
}

// Server exposes one Game over framed TCP. It owns the connections; the
// Game owns the simulation.
type Server struct {
	game *Game
	log  *logrus.Entry
	out  io.Writer

	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[net.Conn]clientInfo
	connWG  sync.WaitGroup
}

// NewServer wraps game for serving. The game-over result line is written to
// out, which defaults to stdout so the lobby's supervisor can read it.
func NewServer(game *Game, log *logrus.Logger, out io.Writer) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Server{
		game:    game,
		log:     log.WithField("room", game.RoomID),
		out:     out,
		clients: make(map[net.Conn]clientInfo),
	}
}

// Run serves the room on ln until the game ends or ctx is canceled. A
// finished game is a normal exit: the result is broadcast, written to out,
// and Run returns nil.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	s.log.Infof("room listening on %s seed=%d", ln.Addr(), s.game.Seed)

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		<-egCtx.Done()
		ln.Close()
		s.closeClients()
		return nil
	})
	eg.Go(func() error { return s.acceptLoop(egCtx, ln) })
	eg.Go(func() error { return s.gravityLoop(egCtx) })
	eg.Go(func() error { return s.snapshotLoop(egCtx) })

	err := eg.Wait()
	s.connWG.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs the join handshake and then pumps client frames until the
// connection dies. A player's disconnect forfeits their game.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var req protocol.Request
	if err := protocol.ReadMessage(conn, &req); err != nil {
		return
	}
	if req.Action != "join" {
		_ = protocol.WriteMessage(conn, protocol.Error("must join first"))
		return
	}
	var join joinData
	if len(req.Data) > 0 {
		_ = json.Unmarshal(req.Data, &join)
	}
	role := join.Role
	if role == "" {
		role = "spectator"
	}
	name := join.Name
	if name == "" {
		name = conn.RemoteAddr().String()
	}

	if role == "p1" || role == "p2" {
		if err := s.game.AddPlayer(role, name); err != nil {
			_ = protocol.WriteMessage(conn, protocol.Error(err.Error()))
			return
		}
		s.log.Infof("player %s joined as %s", name, role)
	} else {
		s.log.Infof("spectator %s joined", name)
	}

	s.addClient(conn, role, name)
	defer s.dropClient(conn)

	if err := protocol.WriteMessage(conn, s.game.Meta()); err != nil {
		return
	}

	for {
		var msg protocol.Request
		if err := protocol.ReadMessage(conn, &msg); err != nil {
			if errors.Is(err, protocol.ErrBadJSON) {
				if protocol.WriteMessage(conn, protocol.Error("Invalid JSON format.")) == nil {
					continue
				}
			}
			return
		}
		s.process(conn, role, msg)
	}
}

func (s *Server) process(conn net.Conn, role string, msg protocol.Request) {
	switch {
	case msg.Action == "start_game" && s.game.PlayerCount() == 2:
		if s.game.TryStart() {
			s.log.Info("game started")
			s.broadcast(s.game.StartFrame())
		}
	case msg.Action == "input":
		var in inputData
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &in)
		}
		now := time.Now()
		if in.TS == 0 {
			in.TS = float64(now.UnixNano()) / float64(time.Second)
		}
		s.game.ApplyInput(role, in.Move, in.TS, now)
	case msg.Action == "request_snapshot":
		_ = protocol.WriteMessage(conn, s.game.Snapshot(time.Now()))
	default:
		_ = protocol.WriteMessage(conn, protocol.Error("unknown action"))
	}
}

func (s *Server) gravityLoop(ctx context.Context) error {
	ticker := time.NewTicker(Gravity)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			res := s.game.StepGravity(now)
			if res.Over {
				s.finish(res.Winner)
				return nil
			}
			if res.Update != nil {
				s.broadcast(*res.Update)
			}
		}
	}
}

// finish broadcasts the result, prints the result line for the supervisor,
// and triggers shutdown.
func (s *Server) finish(winner *string) {
	frame := OverFrame{Type: "game_over", Winner: winner}
	s.broadcast(frame)
	if line, err := json.Marshal(frame); err == nil {
		fmt.Fprintln(s.out, string(line))
	}
	if winner != nil {
		s.log.Infof("game over, winner=%s", *winner)
	} else {
		s.log.Info("game over, draw")
	}
	s.cancel()
}

func (s *Server) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if !s.game.Started() {
				continue
			}
			s.broadcast(s.game.Snapshot(now))
		}
	}
}

func (s *Server) addClient(conn net.Conn, role, name string) {
	s.mu.Lock()
	s.clients[conn] = clientInfo{role: role, name: name}
	s.mu.Unlock()
}

// dropClient unregisters a connection. A registered player is forfeited.
// Safe to call twice for the same connection.
func (s *Server) dropClient(conn net.Conn) {
	s.mu.Lock()
	info, ok := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	if !ok {
		return
	}
	if info.role == "p1" || info.role == "p2" {
		s.game.DropPlayer(info.role)
		s.log.Infof("player %s disconnected, forfeit", info.name)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// broadcast fans a frame out to every connection, dropping the ones whose
// writes fail.
func (s *Server) broadcast(v any) {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := protocol.WriteMessage(c, v); err != nil {
			s.dropClient(c)
			c.Close()
		}
	}
}
