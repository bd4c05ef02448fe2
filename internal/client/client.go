// internal/client/client.go
//
// Package client implements the wire-facing half of the platform's terminal
// clients: a lobby client that injects the login session into every request,
// and a room client that speaks a game server's push protocol. Menus and
// rendering stay with the callers.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"

	"github.com/blockhaus/blockhaus/internal/protocol"
)

// Lobby is a persistent connection to a developer or player lobby. It is
// not safe for concurrent use: the lobby answers requests in order on the
// connection, so callers serialize.
type Lobby struct {
	conn net.Conn

	sessionID string
	userID    string
	name      string
}

// DialLobby connects to a lobby server.
func DialLobby(ctx context.Context, addr string) (*Lobby, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("lobby dial failed: %w", err)
	}
	return &Lobby{conn: conn}, nil
}

func (l *Lobby) Close() error { return l.conn.Close() }

// SessionID returns the session bound by the last successful Login, or ""
// when logged out.
func (l *Lobby) SessionID() string { return l.sessionID }

// UserID returns the account id bound by the last successful Login.
func (l *Lobby) UserID() string { return l.userID }

// Name returns the username bound by the last successful Login.
func (l *Lobby) Name() string { return l.name }

// Do performs one raw lobby request. The bound session id is stamped onto
// every action except register and login, matching what the lobby expects.
// Lobby-level failures come back as errors carrying the server's errorMsg.
func (l *Lobby) Do(action string, data map[string]any) (json.RawMessage, error) {
	if data == nil {
		data = map[string]any{}
	}
	if l.sessionID != "" && action != "register" && action != "login" {
		if _, ok := data["sessionID"]; !ok {
			data["sessionID"] = l.sessionID
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}
	if err := protocol.WriteMessage(l.conn, protocol.Request{Action: action, Data: raw}); err != nil {
		return nil, fmt.Errorf("lobby request failed: %w", err)
	}
	var resp protocol.RawResponse
	if err := protocol.ReadMessage(l.conn, &resp); err != nil {
		return nil, fmt.Errorf("lobby response failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (l *Lobby) do(action string, data map[string]any, out any) error {
	raw, err := l.Do(action, data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

// UserInfo identifies a registered account.
type UserInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Register creates an account on this lobby's tier.
func (l *Lobby) Register(username, password string) (UserInfo, error) {
	var info UserInfo
	err := l.do("register", map[string]any{"username": username, "password": password}, &info)
	return info, err
}

// LoginInfo is the session granted by a successful login.
type LoginInfo struct {
	SessionID string `json:"sessionID"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
}

// Login authenticates and binds the granted session to this client, so
// later calls carry it automatically.
func (l *Lobby) Login(username, password string) (LoginInfo, error) {
	var info LoginInfo
	if err := l.do("login", map[string]any{"username": username, "password": password}, &info); err != nil {
		return LoginInfo{}, err
	}
	l.sessionID = info.SessionID
	l.userID = info.UserID
	l.name = info.Name
	return info, nil
}

// Logout revokes the bound session. The local binding is cleared only when
// the lobby confirms.
func (l *Lobby) Logout() error {
	if err := l.do("logout", nil, nil); err != nil {
		return err
	}
	l.sessionID = ""
	l.userID = ""
	l.name = ""
	return nil
}

// GameInfo describes one uploaded game asset. Description is only filled on
// the player tier; the developer listing omits it.
type GameInfo struct {
	GameID      string `json:"gameId"`
	GameName    string `json:"gameName"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
}

// ListGames lists game assets: the caller's own uploads on the developer
// tier, everything playable on the player tier.
func (l *Lobby) ListGames() ([]GameInfo, error) {
	var games []GameInfo
	err := l.do("list-games", nil, &games)
	return games, err
}

// GameFile is one asset file for upload, content base64-encoded.
type GameFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// NewGameFile encodes raw file contents for upload.
func NewGameFile(name string, contents []byte) GameFile {
	return GameFile{Filename: name, Content: base64.StdEncoding.EncodeToString(contents)}
}

// UploadInfo is the identity of a freshly uploaded game.
type UploadInfo struct {
	GameID string `json:"gameId"`
	Folder string `json:"folder"`
}

// UploadGame publishes a new game. The lobby requires at least two files
// (server.py and client.py).
func (l *Lobby) UploadGame(gameName, description string, files []GameFile) (UploadInfo, error) {
	var info UploadInfo
	data := map[string]any{"gameName": gameName, "files": files}
	if description != "" {
		data["description"] = description
	}
	err := l.do("upload-game", data, &info)
	return info, err
}

// UpdateGame rewrites the asset files of an existing game.
func (l *Lobby) UpdateGame(gameID string, files []GameFile) error {
	return l.do("update-game", map[string]any{"gameId": gameID, "files": files}, nil)
}

// DeleteGame removes a game's assets and its registry row.
func (l *Lobby) DeleteGame(gameID string) error {
	return l.do("delete-game", map[string]any{"gameId": gameID}, nil)
}

// RoomInfo describes one open room as listed by the player lobby.
type RoomInfo struct {
	ID         string  `json:"id"`
	Owner      string  `json:"owner"`
	Port       int     `json:"port"`
	Visibility string  `json:"visibility"`
	Invite     *string `json:"invite"`
	GameID     string  `json:"gameId"`
}

// Rooms lists the rooms visible to the logged-in player: invites first,
// then public rooms, then the player's own.
func (l *Lobby) Rooms() ([]RoomInfo, error) {
	data := map[string]any{}
	if l.name != "" {
		data["invite"] = l.name
	}
	var rooms []RoomInfo
	err := l.do("rooms", data, &rooms)
	return rooms, err
}

// CreatedRoom is the identity of a freshly spawned room.
type CreatedRoom struct {
	ID   string `json:"id"`
	Port int    `json:"port"`
}

// CreateRoom spawns a room server for the given game. Empty visibility
// means public; a nil invite means open to anyone the visibility admits.
func (l *Lobby) CreateRoom(gameID, visibility string, invite *string) (CreatedRoom, error) {
	if visibility == "" {
		visibility = "public"
	}
	var room CreatedRoom
	err := l.do("create-room", map[string]any{
		"gameId":     gameID,
		"visibility": visibility,
		"invite":     invite,
	}, &room)
	return room, err
}

// JoinedRoom is the lobby's answer to join-room: where the room server
// listens and the client code to run against it.
type JoinedRoom struct {
	ID         string `json:"id"`
	Port       int    `json:"port"`
	Role       string `json:"role"`
	ClientCode string `json:"clientCode"`
	GameName   string `json:"gameName"`
	Owner      string `json:"owner"`
}

// ClientSource decodes the base64 client code shipped by the lobby.
func (r JoinedRoom) ClientSource() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.ClientCode)
}

// JoinRoom registers the player in a room. id may be any unambiguous
// prefix of the room id; role is p1, p2, or spectator (the default).
func (l *Lobby) JoinRoom(idPrefix, role string) (JoinedRoom, error) {
	data := map[string]any{"id": idPrefix}
	if role != "" {
		data["role"] = role
	}
	var room JoinedRoom
	err := l.do("join-room", data, &room)
	return room, err
}

// DeleteRoom terminates a room's server process and drops its row. Only
// the room owner may delete. Returns the full id of the deleted room.
func (l *Lobby) DeleteRoom(idPrefix string) (string, error) {
	var result struct {
		DeletedRoom string `json:"deletedRoom"`
	}
	err := l.do("delete-room", map[string]any{"id": idPrefix}, &result)
	return result.DeletedRoom, err
}
