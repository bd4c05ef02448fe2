// internal/lobby/auth.go
package lobby

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blockhaus/blockhaus/internal/auth"
	"github.com/blockhaus/blockhaus/internal/protocol"
	"github.com/blockhaus/blockhaus/internal/store"
)

// credentials is the payload of register and login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResult is the success payload of login. The dispatcher also reads it
// to bind the session to the connection.
type loginResult struct {
	SessionID string `json:"sessionID"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
}

func (l *Lobby) handleRegister(ctx context.Context, data json.RawMessage) protocol.Response {
	var creds credentials
	if len(data) > 0 {
		_ = json.Unmarshal(data, &creds)
	}
	if creds.Username == "" || creds.Password == "" {
		return protocol.Error("Username and password are required.")
	}

	existing, err := l.db.Query(ctx, l.tier.Collection(), store.Document{"name": creds.Username})
	if err == nil && len(existing) > 0 {
		return protocol.Error("User already exists.")
	}

	doc, err := l.db.Create(ctx, l.tier.Collection(), store.Document{
		"name":         creds.Username,
		"passwordHash": auth.HashPassword(creds.Password),
	})
	if err != nil {
		return protocol.Errorf("Registration failed in DB: %v", err)
	}

	l.log.Infof("User registered: %s (ID: %v)", creds.Username, doc["id"])
	return protocol.OK(map[string]any{"userId": doc["id"], "name": doc["name"]})
}

func (l *Lobby) handleLogin(ctx context.Context, data json.RawMessage) protocol.Response {
	var creds credentials
	if len(data) > 0 {
		_ = json.Unmarshal(data, &creds)
	}
	if creds.Username == "" || creds.Password == "" {
		return protocol.Error("Username and password are required.")
	}

	users, err := l.db.Query(ctx, l.tier.Collection(), store.Document{"name": creds.Username})
	if err != nil || len(users) == 0 {
		return protocol.Error("Invalid username or password.")
	}
	user := users[0]

	// The online flag is the one-session-per-user lock; it is checked before
	// the password so a second login of an active user never probes
	// credentials.
	if online, _ := user["online"].(bool); online {
		return protocol.Error("User already online.")
	}

	hash, _ := user["passwordHash"].(string)
	if !auth.VerifyPassword(creds.Password, hash) {
		return protocol.Error("Invalid username or password.")
	}

	userID, _ := user["id"].(string)
	name, _ := user["name"].(string)
	sess := l.sessions.Create(userID, name)

	if _, err := l.db.Update(ctx, l.tier.Collection(), userID, store.Document{
		"lastLoginAt": time.Now().Unix(),
		"online":      true,
	}); err != nil {
		l.log.Warnf("Failed to mark %s online: %v", name, err)
	}

	l.log.Infof("User logged in: %s (Session: %s)", name, sess.ID)
	return protocol.OK(loginResult{SessionID: sess.ID, UserID: userID, Name: name})
}

// logoutSession clears the in-memory session and flips the store's online
// flag back off. The logout verb and the disconnect cleanup share it, so a
// dropped connection behaves exactly like an explicit logout.
func (l *Lobby) logoutSession(ctx context.Context, sessionID string) protocol.Response {
	sess, ok := l.sessions.Get(sessionID)
	if !ok {
		return protocol.Error("Invalid or expired session ID.")
	}

	if _, err := l.db.Update(ctx, l.tier.Collection(), sess.UserID, store.Document{
		"online": false,
	}); err != nil {
		l.log.Warnf("Failed to mark %s offline: %v", sess.Name, err)
	}

	l.sessions.Delete(sessionID)
	l.log.Infof("User logged out: %s (Session: %s)", sess.Name, sessionID)
	return protocol.OK(map[string]any{"message": "Logged out successfully."})
}
