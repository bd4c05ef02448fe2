// internal/lobby/rooms.go
//
// Player-tier verbs: browsing the catalog and running rooms. Every live room
// is one spawned game server process tracked by the supervisor plus one Room
// row in the store; the two are created and reaped together.
package lobby

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blockhaus/blockhaus/internal/auth"
	"github.com/blockhaus/blockhaus/internal/protocol"
	"github.com/blockhaus/blockhaus/internal/store"
)

// Room id prefix resolution errors, reported verbatim on the wire.
var (
	ErrRoomNotFound = errors.New("Room not found.")
	ErrAmbiguousID  = errors.New("Ambiguous ID.")
)

// resolveRoomID expands an id prefix against the live room table. Exactly one
// match resolves; zero or several are the caller's error.
func (l *Lobby) resolveRoomID(prefix string) (string, error) {
	matches := l.sup.MatchPrefix(prefix)
	switch len(matches) {
	case 0:
		return "", ErrRoomNotFound
	case 1:
		return matches[0], nil
	default:
		return "", ErrAmbiguousID
	}
}

// reapRoom removes a room's live handle and its store row. It is the single
// deletion path, shared by the supervisor's monitor and delete-room, and it
// is idempotent: whichever caller claims the handle performs the store
// delete, the other finds nothing to do.
func (l *Lobby) reapRoom(ctx context.Context, roomID string) {
	if !l.sup.Remove(roomID) {
		return
	}
	if err := l.db.Delete(ctx, store.CollectionRoom, roomID); err != nil {
		l.log.Warnf("Failed to delete room %s from DB: %v", roomID, err)
		return
	}
	l.log.Infof("Room %s reaped.", roomID)
}

// handlePlayerListGames returns the whole catalog. Unlike the developer
// shape, the player shape carries the description.
func (l *Lobby) handlePlayerListGames(ctx context.Context, _ auth.Session, _ json.RawMessage) protocol.Response {
	games, err := l.db.Query(ctx, store.CollectionGame, nil)
	if err != nil {
		return protocol.Errorf("DB query failed: %v", err)
	}
	list := make([]store.Document, 0, len(games))
	for _, g := range games {
		list = append(list, store.Document{
			"gameName":    g["gameName"],
			"owner":       g["owner"],
			"gameId":      g["id"],
			"description": g["description"],
		})
	}
	return protocol.OK(list)
}

type roomsRequest struct {
	Invite string `json:"invite"`
}

// handleRooms lists rooms visible to the caller: private rooms inviting them,
// every public room, then private rooms they own. Concatenated without dedup,
// so a private room both owned by and inviting the caller appears twice.
func (l *Lobby) handleRooms(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req roomsRequest
	_ = json.Unmarshal(data, &req)
	invite := req.Invite
	if invite == "" {
		invite = sess.Name
	}

	public, err := l.db.Query(ctx, store.CollectionRoom, store.Document{"visibility": "public"})
	if err != nil {
		return protocol.Error(err.Error())
	}
	invited, err := l.db.Query(ctx, store.CollectionRoom, store.Document{"visibility": "private", "invite": invite})
	if err != nil {
		return protocol.Error(err.Error())
	}
	owned, err := l.db.Query(ctx, store.CollectionRoom, store.Document{"visibility": "private", "owner": invite})
	if err != nil {
		return protocol.Error(err.Error())
	}

	out := make([]store.Document, 0, len(invited)+len(public)+len(owned))
	out = append(out, invited...)
	out = append(out, public...)
	out = append(out, owned...)
	return protocol.OK(out)
}

type createRoomRequest struct {
	GameID     string  `json:"gameId"`
	Visibility string  `json:"visibility"`
	Invite     *string `json:"invite"`
}

func (l *Lobby) handleCreateRoom(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req createRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Server internal error: %v", err)
	}
	if req.GameID == "" {
		return protocol.Error("gameId is required to create a room.")
	}

	games, err := l.db.Query(ctx, store.CollectionGame, store.Document{"id": req.GameID})
	if err != nil || len(games) == 0 {
		return protocol.Error("Selected game asset not found.")
	}
	gameDir, _ := games[0]["folderPath"].(string)

	visibility := req.Visibility
	if visibility == "" {
		visibility = "public"
	}
	var invite any
	if req.Invite != nil {
		invite = *req.Invite
	}

	port := l.sup.NextPort()
	room, err := l.db.Create(ctx, store.CollectionRoom, store.Document{
		"owner":      sess.Name,
		"players":    []any{},
		"spectators": []any{},
		"invite":     invite,
		"visibility": visibility,
		"port":       port,
		"gameId":     req.GameID,
	})
	if err != nil {
		return protocol.Errorf("Failed to create room in DB: %v", err)
	}
	roomID, _ := room["id"].(string)

	l.log.Infof("Starting game server for room %s using game in %s", roomID, gameDir)
	argv := []string{l.runtime, "server.py", l.host, strconv.Itoa(port), roomID}
	if err := l.sup.Launch(roomID, gameDir, argv); err != nil {
		// The row was written before the spawn; take it back out so no Room
		// row points at a process that never existed.
		if derr := l.db.Delete(ctx, store.CollectionRoom, roomID); derr != nil {
			l.log.Warnf("Failed to delete room %s after spawn failure: %v", roomID, derr)
		}
		return protocol.Errorf("Server internal error: %v", err)
	}

	return protocol.OK(map[string]any{"id": roomID, "port": port})
}

type joinRoomRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (l *Lobby) handleJoinRoom(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Join room failed: %v", err)
	}
	roomID, err := l.resolveRoomID(req.ID)
	if err != nil {
		return protocol.Error(err.Error())
	}
	role := req.Role
	if role == "" {
		role = "spectator"
	}

	rooms, err := l.db.Query(ctx, store.CollectionRoom, store.Document{"id": roomID})
	if err != nil || len(rooms) == 0 {
		return protocol.Error("DB dead.")
	}
	room := rooms[0]

	players, _ := room["players"].([]any)
	switch role {
	case "p1", "p2":
		if len(players) >= 2 {
			return protocol.Error("Room is full.")
		}
		for _, p := range players {
			entry, _ := p.(map[string]any)
			if entry["role"] == role {
				return protocol.Errorf("Role '%s' is already taken.", role)
			}
		}
		room["players"] = append(players, map[string]any{"name": sess.Name, "role": role})
	default:
		spectators, _ := room["spectators"].([]any)
		room["spectators"] = append(spectators, sess.Name)
	}

	if _, err := l.db.Update(ctx, store.CollectionRoom, roomID, room); err != nil {
		l.log.Warnf("Failed to update room %s after join: %v", roomID, err)
	}

	gameID, _ := room["gameId"].(string)
	games, err := l.db.Query(ctx, store.CollectionGame, store.Document{"id": gameID})
	if err != nil || len(games) == 0 {
		return protocol.Error("Failed to retrieve game assets info.")
	}
	game := games[0]
	folder, _ := game["folderPath"].(string)

	clientPath := filepath.Join(folder, "client.py")
	code, err := os.ReadFile(clientPath)
	if err != nil {
		if os.IsNotExist(err) {
			return protocol.Error("Game client file not found on server.")
		}
		return protocol.Errorf("Join room failed: %v", err)
	}

	l.log.Infof("%s joined room %s, sending client code.", sess.Name, roomID)
	return protocol.OK(map[string]any{
		"id":         roomID,
		"port":       room["port"],
		"role":       role,
		"clientCode": base64.StdEncoding.EncodeToString(code),
		"gameName":   game["gameName"],
		"owner":      game["owner"],
	})
}

type deleteRoomRequest struct {
	ID string `json:"id"`
}

func (l *Lobby) handleDeleteRoom(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req deleteRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Server internal error: %v", err)
	}
	roomID, err := l.resolveRoomID(req.ID)
	if err != nil {
		return protocol.Error(err.Error())
	}

	rooms, err := l.db.Query(ctx, store.CollectionRoom, store.Document{"id": roomID})
	if err != nil || len(rooms) == 0 {
		return protocol.Error("DB dead.")
	}
	if owner, _ := rooms[0]["owner"].(string); owner != sess.Name {
		return protocol.Error("Only the room owner can delete the room.")
	}

	// Terminate blocks until the monitor has run the reap; the direct call
	// after it covers a process that was already gone.
	l.sup.Terminate(roomID)
	l.reapRoom(ctx, roomID)

	l.log.Infof("Room %s deleted.", roomID)
	return protocol.OK(map[string]any{"deletedRoom": roomID})
}
