// internal/config/config.go
//
// Package config reads the platform's environment configuration. Every
// variable has a default so a bare checkout runs locally; deployments
// override through the environment or a .env file (loaded by the godotenv
// autoload import in each binary).
package config

import (
	"net"
	"os"
	"strconv"
)

// Getenv returns the value of key, or def when unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvInt returns the integer value of key, or def when unset or invalid.
func GetenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ServerHost is the bind address of both lobbies and the host handed to
// spawned room processes.
func ServerHost() string { return Getenv("SERVER_HOST", "127.0.0.1") }

// DeveloperPort is the developer lobby's listen port.
func DeveloperPort() int { return GetenvInt("DEVELOPER_PORT", 8100) }

// PlayerPort is the player lobby's listen port.
func PlayerPort() int { return GetenvInt("PLAYER_PORT", 8101) }

// DBHost and DBPort locate the document store.
func DBHost() string { return Getenv("DB_HOST", "127.0.0.1") }
func DBPort() int    { return GetenvInt("DB_PORT", 8200) }

// DBAddr is the store's host:port dial address.
func DBAddr() string {
	return net.JoinHostPort(DBHost(), strconv.Itoa(DBPort()))
}

// DBFile is the path of the JSON document file backing the store.
func DBFile() string { return Getenv("DB_FILE", "database.json") }

// GameServerPortBase is the first port handed to spawned rooms; the lobby
// allocates upward from it and never recycles.
func GameServerPortBase() int { return GetenvInt("GAME_SERVER_PORT_BASE", 9000) }

// UploadRoot is the directory game assets are unpacked into.
func UploadRoot() string { return Getenv("UPLOAD_ROOT", "game") }

// GameRuntime is the interpreter used to launch a game folder's server.py.
func GameRuntime() string { return Getenv("GAME_RUNTIME", "python3") }

// LogLevel is the logrus level name for all binaries.
func LogLevel() string { return Getenv("LOG_LEVEL", "info") }
