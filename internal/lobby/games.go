// internal/lobby/games.go
//
// Developer-tier verbs: the game asset catalog. A game is a folder of
// uploaded files (by contract containing server.py and client.py) plus a
// Game row pointing at it.
package lobby

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/blockhaus/blockhaus/internal/auth"
	"github.com/blockhaus/blockhaus/internal/protocol"
	"github.com/blockhaus/blockhaus/internal/store"
)

// gameFile is one uploaded asset: a client-supplied name and base64 content.
type gameFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// writeGameFile decodes one uploaded file into dir. Only the basename of the
// client-supplied name is used, so names like ../../etc/passwd cannot escape
// the game folder.
func writeGameFile(dir string, f gameFile) error {
	if f.Filename == "" {
		return fmt.Errorf("file entry is missing a filename")
	}
	blob, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return fmt.Errorf("decode %s: %w", f.Filename, err)
	}
	name := filepath.Base(f.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), blob, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

type uploadGameRequest struct {
	GameName    string     `json:"gameName"`
	Description string     `json:"description"`
	Files       []gameFile `json:"files"`
}

type updateGameRequest struct {
	GameID string     `json:"gameId"`
	Files  []gameFile `json:"files"`
}

type gameIDRequest struct {
	GameID string `json:"gameId"`
}

// handleDevListGames returns only the caller's own games, trimmed to the
// catalog shape.
func (l *Lobby) handleDevListGames(ctx context.Context, sess auth.Session, _ json.RawMessage) protocol.Response {
	games, err := l.db.Query(ctx, store.CollectionGame, store.Document{"owner": sess.Name})
	if err != nil {
		return protocol.Errorf("DB query failed: %v", err)
	}
	list := make([]store.Document, 0, len(games))
	for _, g := range games {
		list = append(list, store.Document{
			"gameName": g["gameName"],
			"owner":    g["owner"],
			"gameId":   g["id"],
		})
	}
	return protocol.OK(list)
}

func (l *Lobby) handleUploadGame(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req uploadGameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Server failed to save files: %v", err)
	}
	if req.GameName == "" {
		req.GameName = "untitled_game"
	}
	if len(req.Files) < 2 {
		return protocol.Error("Two files are required.")
	}

	// The folder carries a prefix of the game id; the row carries the full id.
	gameID := uuid.NewString()
	folder := fmt.Sprintf("%s_%s", req.GameName, gameID[:8])
	dir := filepath.Join(l.uploadRoot, folder)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return protocol.Errorf("Server failed to save files: %v", err)
	}
	for _, f := range req.Files {
		if err := writeGameFile(dir, f); err != nil {
			return protocol.Errorf("Server failed to save files: %v", err)
		}
	}

	doc := store.Document{
		"id":         gameID,
		"owner":      sess.Name,
		"gameName":   req.GameName,
		"folderPath": dir,
	}
	if req.Description != "" {
		doc["description"] = req.Description
	}
	if _, err := l.db.Create(ctx, store.CollectionGame, doc); err != nil {
		return protocol.Errorf("Server failed to save files: %v", err)
	}

	l.log.Infof("Game '%s' uploaded successfully to %s", req.GameName, dir)
	return protocol.OK(map[string]any{"gameId": gameID, "folder": folder})
}

func (l *Lobby) handleUpdateGame(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req updateGameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Server update error: %v", err)
	}

	// TODO: only the owner should be able to rewrite a game's assets.
	games, err := l.db.Query(ctx, store.CollectionGame, store.Document{"id": req.GameID})
	if err != nil || len(games) == 0 {
		return protocol.Error("Game not found in database.")
	}
	dir, _ := games[0]["folderPath"].(string)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return protocol.Errorf("Server update error: %v", err)
	}
	for _, f := range req.Files {
		if err := writeGameFile(dir, f); err != nil {
			return protocol.Errorf("Server update error: %v", err)
		}
	}

	l.log.Infof("Game assets updated for ID: %s at %s", req.GameID, dir)
	return protocol.OK(map[string]any{"gameId": req.GameID})
}

func (l *Lobby) handleDeleteGame(ctx context.Context, sess auth.Session, data json.RawMessage) protocol.Response {
	var req gameIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Errorf("Server delete error: %v", err)
	}

	// TODO: only the owner should be able to delete a game.
	games, err := l.db.Query(ctx, store.CollectionGame, store.Document{"id": req.GameID})
	if err != nil || len(games) == 0 {
		return protocol.Error("Game not found in database.")
	}
	dir, _ := games[0]["folderPath"].(string)

	// RemoveAll tolerates a folder that never made it to disk.
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return protocol.Errorf("Server delete error: %v", err)
		}
	}

	if err := l.db.Delete(ctx, store.CollectionGame, req.GameID); err != nil {
		return protocol.Errorf("Failed to delete from DB: %v", err)
	}

	l.log.Infof("Game asset %s removed from database.", req.GameID)
	return protocol.OK(map[string]any{"gameId": req.GameID})
}
