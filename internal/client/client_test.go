// internal/client/client_test.go
package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockhaus/blockhaus/internal/lobby"
	"github.com/blockhaus/blockhaus/internal/store"
)

const (
	clientStub = "print('client stub')\n"
	idleScript = "exec sleep 30\n"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

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

// startLobby serves cfg on a loopback port. Registered after the store so
// cleanup stops the lobby first, while its reaps can still reach the store.
func startLobby(t *testing.T, cfg lobby.Config) string {
	t.Helper()

	if cfg.Log == nil {
		cfg.Log = quietLog()
	}
	l := lobby.New(cfg)

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
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Lobby {
	t.Helper()
	lc, err := DialLobby(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { lc.Close() })
	return lc
}

func seedGame(t *testing.T, db *store.Client, script string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.py"), []byte(script), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.py"), []byte(clientStub), 0o644))

	doc, err := db.Create(context.Background(), store.CollectionGame, store.Document{
		"owner":      "dev",
		"gameName":   "blocks",
		"folderPath": dir,
	})
	require.NoError(t, err)
	return doc["id"].(string)
}

func TestDeveloperWorkflow(t *testing.T) {
	db := startStore(t)
	uploadRoot := t.TempDir()
	addr := startLobby(t, lobby.Config{Tier: lobby.TierDeveloper, DB: db, UploadRoot: uploadRoot})
	lc := dial(t, addr)

	user, err := lc.Register("dev1", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "dev1", user.Name)
	assert.NotEmpty(t, user.UserID)

	login, err := lc.Login("dev1", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, login.SessionID)
	assert.Equal(t, login.SessionID, lc.SessionID())
	assert.Equal(t, "dev1", lc.Name())

	up, err := lc.UploadGame("blocks", "stacking duel", []GameFile{
		NewGameFile("server.py", []byte("srv")),
		NewGameFile("client.py", []byte("cli")),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, up.GameID)

	srv, err := os.ReadFile(filepath.Join(uploadRoot, up.Folder, "server.py"))
	require.NoError(t, err)
	assert.Equal(t, "srv", string(srv))

	games, err := lc.ListGames()
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, up.GameID, games[0].GameID)
	assert.Equal(t, "blocks", games[0].GameName)
	assert.Equal(t, "dev1", games[0].Owner)

	require.NoError(t, lc.UpdateGame(up.GameID, []GameFile{NewGameFile("server.py", []byte("srv v2"))}))
	srv, err = os.ReadFile(filepath.Join(uploadRoot, up.Folder, "server.py"))
	require.NoError(t, err)
	assert.Equal(t, "srv v2", string(srv))

	require.NoError(t, lc.DeleteGame(up.GameID))
	games, err = lc.ListGames()
	require.NoError(t, err)
	assert.Empty(t, games)

	require.NoError(t, lc.Logout())
	assert.Empty(t, lc.SessionID())
}

func TestSessionInjection(t *testing.T) {
	db := startStore(t)
	addr := startLobby(t, lobby.Config{Tier: lobby.TierDeveloper, DB: db, UploadRoot: t.TempDir()})
	lc := dial(t, addr)

	_, err := lc.Register("dev2", "pw")
	require.NoError(t, err)

	// No session bound yet: the lobby rejects the bare request.
	_, err = lc.ListGames()
	require.EqualError(t, err, "Invalid session or not logged in.")

	_, err = lc.Login("dev2", "pw")
	require.NoError(t, err)
	_, err = lc.ListGames()
	require.NoError(t, err)

	require.NoError(t, lc.Logout())
	_, err = lc.ListGames()
	require.EqualError(t, err, "Invalid session or not logged in.")
}

func TestAuthErrorsSurface(t *testing.T) {
	db := startStore(t)
	addr := startLobby(t, lobby.Config{Tier: lobby.TierPlayer, DB: db, PortBase: 9700, Runtime: "sh"})
	lc := dial(t, addr)

	_, err := lc.Register("ada", "pw")
	require.NoError(t, err)
	_, err = lc.Register("ada", "other")
	require.EqualError(t, err, "User already exists.")

	_, err = lc.Login("ada", "wrong")
	require.EqualError(t, err, "Invalid username or password.")
	assert.Empty(t, lc.SessionID())
}

func TestRoomWorkflow(t *testing.T) {
	db := startStore(t)
	addr := startLobby(t, lobby.Config{Tier: lobby.TierPlayer, DB: db, PortBase: 9700, Runtime: "sh"})
	gameID := seedGame(t, db, idleScript)

	lc := dial(t, addr)
	_, err := lc.Register("ada", "pw")
	require.NoError(t, err)
	_, err = lc.Login("ada", "pw")
	require.NoError(t, err)

	games, err := lc.ListGames()
	require.NoError(t, err)
	require.Len(t, games, 1)

	created, err := lc.CreateRoom(games[0].GameID, "", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, created.Port, 9700)

	rooms, err := lc.Rooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, created.ID, rooms[0].ID)
	assert.Equal(t, "ada", rooms[0].Owner)
	assert.Equal(t, "public", rooms[0].Visibility)
	assert.Nil(t, rooms[0].Invite)
	assert.Equal(t, gameID, rooms[0].GameID)

	joined, err := lc.JoinRoom(created.ID[:8], "p1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, joined.ID)
	assert.Equal(t, created.Port, joined.Port)
	assert.Equal(t, "p1", joined.Role)
	assert.Equal(t, "blocks", joined.GameName)

	src, err := joined.ClientSource()
	require.NoError(t, err)
	assert.Equal(t, clientStub, string(src))

	deleted, err := lc.DeleteRoom(created.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted)

	rooms, err = lc.Rooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestRoomErrorsSurface(t *testing.T) {
	db := startStore(t)
	addr := startLobby(t, lobby.Config{Tier: lobby.TierPlayer, DB: db, PortBase: 9700, Runtime: "sh"})
	gameID := seedGame(t, db, idleScript)

	lc := dial(t, addr)
	_, err := lc.Register("ada", "pw")
	require.NoError(t, err)
	_, err = lc.Login("ada", "pw")
	require.NoError(t, err)

	_, err = lc.JoinRoom("nope", "p1")
	require.EqualError(t, err, "Room not found.")

	_, err = lc.CreateRoom("missing-game", "", nil)
	require.EqualError(t, err, "Selected game asset not found.")

	created, err := lc.CreateRoom(gameID, "private", nil)
	require.NoError(t, err)

	other := dial(t, addr)
	_, err = other.Register("bo", "pw")
	require.NoError(t, err)
	_, err = other.Login("bo", "pw")
	require.NoError(t, err)
	_, err = other.DeleteRoom(created.ID)
	require.EqualError(t, err, "Only the room owner can delete the room.")

	_, err = lc.DeleteRoom(created.ID)
	require.NoError(t, err)
}
