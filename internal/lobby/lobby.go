// internal/lobby/lobby.go
//
// Package lobby implements the platform's front door: a framed-TCP server
// that authenticates users against the document store and serves one of two
// verb sets. The developer tier manages game assets on disk; the player tier
// browses the catalog and runs rooms, spawning one game server process per
// room through the supervisor.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blockhaus/blockhaus/internal/auth"
	"github.com/blockhaus/blockhaus/internal/protocol"
	"github.com/blockhaus/blockhaus/internal/store"
)

// Tier selects the identity collection a lobby authenticates against and the
// verb set it serves.
type Tier string

const (
	TierDeveloper Tier = store.CollectionDeveloper
	TierPlayer    Tier = store.CollectionPlayer
)

// Collection is the store collection holding this tier's accounts.
func (t Tier) Collection() string { return string(t) }

// Session failure messages are part of the wire contract and differ per verb.
const (
	msgInvalidSession = "Invalid session."
	msgNotLoggedIn    = "Invalid session or not logged in."
)

// verbFunc handles one authenticated action. The session has already been
// validated by the dispatcher.
type verbFunc func(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response

// verb pairs a handler with the error message its action reports on a bad
// session.
type verb struct {
	handle     verbFunc
	sessionErr string
}

// Config assembles a Lobby. Host, PortBase and Runtime matter only to the
// player tier; UploadRoot only to the developer tier.
type Config struct {
	Tier Tier
	DB   *store.Client
	Log  *logrus.Logger

	Host       string // host spawned rooms bind and advertise
	PortBase   int    // first room port, allocated upward and never recycled
	Runtime    string // interpreter launching a game folder's server.py
	UploadRoot string // directory uploaded game folders land in
}

// Lobby is one tier's server. All verbs run on the goroutine of the
// connection that sent them; shared state lives in the session table, the
// supervisor and the store, each with its own locking.
type Lobby struct {
	tier     Tier
	db       *store.Client
	sessions *auth.Sessions
	log      *logrus.Logger
	verbs    map[string]verb

	host       string
	runtime    string
	uploadRoot string
	sup        *Supervisor

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New builds a lobby for the given tier.
func New(cfg Config) *Lobby {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Lobby{
		tier:       cfg.Tier,
		db:         cfg.DB,
		sessions:   auth.NewSessions(),
		log:        log,
		host:       cfg.Host,
		runtime:    cfg.Runtime,
		uploadRoot: cfg.UploadRoot,
		conns:      make(map[net.Conn]struct{}),
	}
	if l.host == "" {
		l.host = "127.0.0.1"
	}
	if l.runtime == "" {
		l.runtime = "python3"
	}
	if l.uploadRoot == "" {
		l.uploadRoot = "game"
	}

	switch cfg.Tier {
	case TierDeveloper:
		l.verbs = map[string]verb{
			"list-games":  {l.handleDevListGames, msgNotLoggedIn},
			"upload-game": {l.handleUploadGame, msgInvalidSession},
			"update-game": {l.handleUpdateGame, msgInvalidSession},
			"delete-game": {l.handleDeleteGame, msgInvalidSession},
		}
	case TierPlayer:
		l.sup = NewSupervisor(cfg.PortBase, log, func(roomID string, _ *GameResult) {
			// The monitor owns cleanup for every exit; the connection that
			// created the room is long gone by now.
			l.reapRoom(context.Background(), roomID)
		})
		l.verbs = map[string]verb{
			"list-games":  {l.handlePlayerListGames, msgNotLoggedIn},
			"rooms":       {l.handleRooms, msgNotLoggedIn},
			"create-room": {l.handleCreateRoom, msgNotLoggedIn},
			"join-room":   {l.handleJoinRoom, msgInvalidSession},
			"delete-room": {l.handleDeleteRoom, msgInvalidSession},
		}
	}
	return l
}

// Sessions exposes the live session table, mainly for tests and shutdown
// accounting.
func (l *Lobby) Sessions() *auth.Sessions { return l.sessions }

// Supervisor returns the room supervisor, nil on the developer tier.
func (l *Lobby) Supervisor() *Supervisor { return l.sup }

// Serve accepts client connections on ln until ctx is canceled, then closes
// the listener and every live connection and waits for handlers to drain.
func (l *Lobby) Serve(ctx context.Context, ln net.Listener) error {
	l.log.Infof("%s lobby serving on %s", l.tier, ln.Addr())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.closeAll()
				wg.Wait()
				return nil
			}
			return err
		}
		l.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handleConn(ctx, conn)
		}()
	}
}

// Shutdown terminates every live room process and waits for their reaps. The
// developer tier has no supervisor and this is a no-op.
func (l *Lobby) Shutdown() {
	if l.sup != nil {
		l.sup.Shutdown()
	}
}

func (l *Lobby) track(conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
}

func (l *Lobby) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

func (l *Lobby) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for conn := range l.conns {
		conn.Close()
	}
}

func (l *Lobby) handleConn(ctx context.Context, conn net.Conn) {
	defer l.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	l.log.Infof("New client connection from %s", remote)

	// The session minted by a login on this connection. A dropped connection
	// must leave the user offline again, so the cleanup mirrors an explicit
	// logout. ctx is not used here: the force-logout still has to reach the
	// store while the lobby is shutting down.
	var connSession string
	defer func() {
		if _, ok := l.sessions.Get(connSession); ok {
			l.log.Infof("Force logging out session %s due to connection closure", connSession)
			l.logoutSession(context.Background(), connSession)
		}
		l.log.Infof("Connection from %s closed", remote)
	}()

	for {
		var req protocol.Request
		if err := protocol.ReadMessage(conn, &req); err != nil {
			if errors.Is(err, protocol.ErrBadJSON) {
				l.log.Warnf("Invalid JSON from client %s", remote)
				if protocol.WriteMessage(conn, protocol.Error("Invalid JSON format.")) == nil {
					continue
				}
			}
			return
		}
		resp := l.dispatch(ctx, &connSession, req)
		if err := protocol.WriteMessage(conn, resp); err != nil {
			return
		}
	}
}

// sessionEnvelope is the slice of any authenticated request the dispatcher
// needs: the session id travels inside data, not the envelope.
type sessionEnvelope struct {
	SessionID string `json:"sessionID"`
}

// dispatch routes one request. register, login and logout bypass the session
// gate; every other verb resolves its session here so handlers only ever see
// valid ones. A panicking handler answers like any other failure instead of
// taking the process down.
func (l *Lobby) dispatch(ctx context.Context, connSession *string, req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("Handler %q panicked: %v", req.Action, r)
			resp = protocol.Errorf("Server internal error: %v", r)
		}
	}()

	switch req.Action {
	case "register":
		return l.handleRegister(ctx, req.Data)

	case "login":
		resp := l.handleLogin(ctx, req.Data)
		if resp.Status == protocol.StatusSuccess {
			if res, ok := resp.Data.(loginResult); ok {
				*connSession = res.SessionID
			}
		}
		return resp

	case "logout":
		var env sessionEnvelope
		if len(req.Data) > 0 {
			_ = json.Unmarshal(req.Data, &env)
		}
		sid := env.SessionID
		if sid == "" {
			sid = *connSession
		}
		resp := l.logoutSession(ctx, sid)
		*connSession = ""
		return resp
	}

	v, ok := l.verbs[req.Action]
	if !ok {
		return protocol.Error("Invalid request or action.")
	}

	var env sessionEnvelope
	if len(req.Data) > 0 {
		_ = json.Unmarshal(req.Data, &env)
	}
	sess, ok := l.sessions.Get(env.SessionID)
	if !ok {
		return protocol.Error(v.sessionErr)
	}
	return v.handle(ctx, sess, req.Data)
}
