// internal/lobby/lobby_test.go
package lobby

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockhaus/blockhaus/internal/protocol"
	"github.com/blockhaus/blockhaus/internal/store"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// startStore brings up a real store server on a loopback port and returns a
// client for it. The server drains with the test.
func startStore(t *testing.T) *store.Client {
	t.Helper()

	log := quietLog()
	st := store.Open(filepath.Join(t.TempDir(), "database.json"), log)
	srv := store.NewServer(st, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("store server did not shut down")
		}
	})
	return store.NewClient(ln.Addr().String())
}

// startLobby serves cfg on a loopback port. Shutdown order matters: the lobby
// (and its room processes) stop before the backing store goes away.
func startLobby(t *testing.T, cfg Config) (string, *Lobby) {
	t.Helper()

	if cfg.Log == nil {
		cfg.Log = quietLog()
	}
	l := New(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("lobby did not shut down")
		}
		l.Shutdown()
	})
	return ln.Addr().String(), l
}

func dialLobby(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip sends one action over conn and reads one response.
func roundTrip(t *testing.T, conn net.Conn, action string, data map[string]any) protocol.RawResponse {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteMessage(conn, protocol.Request{Action: action, Data: raw}))
	var resp protocol.RawResponse
	require.NoError(t, protocol.ReadMessage(conn, &resp))
	return resp
}

// signup registers and logs in a fresh user on its own connection.
func signup(t *testing.T, addr, name string) (net.Conn, string) {
	t.Helper()
	conn := dialLobby(t, addr)

	resp := roundTrip(t, conn, "register", map[string]any{"username": name, "password": "pw-" + name})
	require.Equal(t, protocol.StatusSuccess, resp.Status, "register %s: %s", name, resp.ErrorMsg)

	resp = roundTrip(t, conn, "login", map[string]any{"username": name, "password": "pw-" + name})
	require.Equal(t, protocol.StatusSuccess, resp.Status, "login %s: %s", name, resp.ErrorMsg)

	var res struct {
		SessionID string `json:"sessionID"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	require.NotEmpty(t, res.SessionID)
	return conn, res.SessionID
}

func TestRegisterLoginLogoutCycle(t *testing.T) {
	db := startStore(t)
	addr, _ := startLobby(t, Config{Tier: TierDeveloper, DB: db})
	conn := dialLobby(t, addr)

	resp := roundTrip(t, conn, "register", map[string]any{"username": "ada", "password": "s3cret"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var reg struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &reg))
	assert.Equal(t, "ada", reg.Name)
	assert.NotEmpty(t, reg.UserID)

	resp = roundTrip(t, conn, "register", map[string]any{"username": "ada", "password": "other"})
	assert.Equal(t, "User already exists.", resp.ErrorMsg)

	resp = roundTrip(t, conn, "register", map[string]any{"username": "bea"})
	assert.Equal(t, "Username and password are required.", resp.ErrorMsg)

	resp = roundTrip(t, conn, "login", map[string]any{"username": "ada", "password": "wrong"})
	assert.Equal(t, "Invalid username or password.", resp.ErrorMsg)

	resp = roundTrip(t, conn, "login", map[string]any{"username": "nobody", "password": "s3cret"})
	assert.Equal(t, "Invalid username or password.", resp.ErrorMsg)

	resp = roundTrip(t, conn, "login", map[string]any{"username": "ada", "password": "s3cret"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var login struct {
		SessionID string `json:"sessionID"`
		UserID    string `json:"userId"`
		Name      string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	assert.Equal(t, reg.UserID, login.UserID)
	assert.Equal(t, "ada", login.Name)
	require.NotEmpty(t, login.SessionID)

	users, err := db.Query(context.Background(), store.CollectionDeveloper, store.Document{"name": "ada"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, true, users[0]["online"])

	// A second login while the first session lives is refused before the
	// password is even checked.
	other := dialLobby(t, addr)
	resp = roundTrip(t, other, "login", map[string]any{"username": "ada", "password": "wrong"})
	assert.Equal(t, "User already online.", resp.ErrorMsg)

	resp = roundTrip(t, conn, "logout", map[string]any{"sessionID": login.SessionID})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var out struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "Logged out successfully.", out.Message)

	resp = roundTrip(t, conn, "logout", map[string]any{"sessionID": login.SessionID})
	assert.Equal(t, "Invalid or expired session ID.", resp.ErrorMsg)

	// The online flag is released, so a fresh login mints a new session.
	resp = roundTrip(t, conn, "login", map[string]any{"username": "ada", "password": "s3cret"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	var again struct {
		SessionID string `json:"sessionID"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.NotEqual(t, login.SessionID, again.SessionID)
}

func TestLogoutFallsBackToConnectionSession(t *testing.T) {
	db := startStore(t)
	addr, lob := startLobby(t, Config{Tier: TierDeveloper, DB: db})

	conn, _ := signup(t, addr, "carol")

	// No sessionID in the payload: the session bound to this connection by
	// its own login is used.
	resp := roundTrip(t, conn, "logout", map[string]any{})
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, 0, lob.Sessions().Len())

	users, err := db.Query(context.Background(), store.CollectionDeveloper, store.Document{"name": "carol"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, false, users[0]["online"])
}

func TestForceLogoutOnDisconnect(t *testing.T) {
	db := startStore(t)
	addr, lob := startLobby(t, Config{Tier: TierDeveloper, DB: db})

	conn, _ := signup(t, addr, "dave")
	require.Equal(t, 1, lob.Sessions().Len())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		if lob.Sessions().Len() != 0 {
			return false
		}
		users, err := db.Query(context.Background(), store.CollectionDeveloper, store.Document{"name": "dave"})
		return err == nil && len(users) == 1 && users[0]["online"] == false
	}, 5*time.Second, 10*time.Millisecond, "disconnect should behave like logout")
}

func TestSessionGatePerVerb(t *testing.T) {
	db := startStore(t)

	devAddr, _ := startLobby(t, Config{Tier: TierDeveloper, DB: db})
	playAddr, _ := startLobby(t, Config{Tier: TierPlayer, DB: db, PortBase: 9400, Runtime: "sh"})

	cases := []struct {
		addr   string
		action string
		want   string
	}{
		{devAddr, "list-games", "Invalid session or not logged in."},
		{devAddr, "upload-game", "Invalid session."},
		{devAddr, "update-game", "Invalid session."},
		{devAddr, "delete-game", "Invalid session."},
		{playAddr, "list-games", "Invalid session or not logged in."},
		{playAddr, "rooms", "Invalid session or not logged in."},
		{playAddr, "create-room", "Invalid session or not logged in."},
		{playAddr, "join-room", "Invalid session."},
		{playAddr, "delete-room", "Invalid session."},
	}

	devConn := dialLobby(t, devAddr)
	playConn := dialLobby(t, playAddr)
	for _, tc := range cases {
		conn := devConn
		if tc.addr == playAddr {
			conn = playConn
		}
		resp := roundTrip(t, conn, tc.action, map[string]any{"sessionID": "bogus"})
		assert.Equal(t, protocol.StatusError, resp.Status, tc.action)
		assert.Equal(t, tc.want, resp.ErrorMsg, tc.action)
	}
}

func TestUnknownAndCrossTierActions(t *testing.T) {
	db := startStore(t)
	devAddr, _ := startLobby(t, Config{Tier: TierDeveloper, DB: db})
	playAddr, _ := startLobby(t, Config{Tier: TierPlayer, DB: db, PortBase: 9400, Runtime: "sh"})

	devConn := dialLobby(t, devAddr)
	resp := roundTrip(t, devConn, "frobnicate", map[string]any{})
	assert.Equal(t, "Invalid request or action.", resp.ErrorMsg)

	// Verbs of the other tier do not exist here.
	resp = roundTrip(t, devConn, "create-room", map[string]any{"sessionID": "x"})
	assert.Equal(t, "Invalid request or action.", resp.ErrorMsg)

	playConn := dialLobby(t, playAddr)
	resp = roundTrip(t, playConn, "upload-game", map[string]any{"sessionID": "x"})
	assert.Equal(t, "Invalid request or action.", resp.ErrorMsg)
}

func TestInvalidJSONKeepsConnectionOpen(t *testing.T) {
	db := startStore(t)
	addr, _ := startLobby(t, Config{Tier: TierDeveloper, DB: db})
	conn := dialLobby(t, addr)

	body := []byte("{not json")
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	var resp protocol.RawResponse
	require.NoError(t, protocol.ReadMessage(conn, &resp))
	assert.Equal(t, "Invalid JSON format.", resp.ErrorMsg)

	// The connection survives and serves the next request.
	resp = roundTrip(t, conn, "register", map[string]any{"username": "eve", "password": "pw"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
}

func TestTierIdentitySpacesAreDisjoint(t *testing.T) {
	db := startStore(t)
	devAddr, _ := startLobby(t, Config{Tier: TierDeveloper, DB: db})
	playAddr, _ := startLobby(t, Config{Tier: TierPlayer, DB: db, PortBase: 9400, Runtime: "sh"})

	devConn := dialLobby(t, devAddr)
	resp := roundTrip(t, devConn, "register", map[string]any{"username": "sam", "password": "pw"})
	require.Equal(t, protocol.StatusSuccess, resp.Status)

	// The developer account does not exist in the player collection.
	playConn := dialLobby(t, playAddr)
	resp = roundTrip(t, playConn, "login", map[string]any{"username": "sam", "password": "pw"})
	assert.Equal(t, "Invalid username or password.", resp.ErrorMsg)

	// The same name can register independently as a player.
	resp = roundTrip(t, playConn, "register", map[string]any{"username": "sam", "password": "pw"})
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
}

func TestConcurrentSessionsAreDistinct(t *testing.T) {
	db := startStore(t)
	addr, lob := startLobby(t, Config{Tier: TierDeveloper, DB: db})

	_, sidA := signup(t, addr, "lena")
	_, sidB := signup(t, addr, "mira")

	assert.NotEqual(t, sidA, sidB)
	assert.Equal(t, 2, lob.Sessions().Len())
}
