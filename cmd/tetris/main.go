// cmd/tetris/main.go runs one authoritative room server for a single match.
// The player lobby (or an operator) starts it as:
//
//	tetris <host> <port> <roomId> [seed]
//
// It serves until the game ends, prints the result line, and exits.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/blockhaus/blockhaus/internal/config"
	"github.com/blockhaus/blockhaus/internal/tetris"
)

func main() {
	// The supervisor reads the result line from stdout, so all logging goes
	// to stderr.
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(config.LogLevel()); err == nil {
		log.SetLevel(level)
	}

	if len(os.Args) < 4 {
		log.Fatalf("usage: %s <host> <port> <roomId> [seed]", os.Args[0])
	}
	host, port, roomID := os.Args[1], os.Args[2], os.Args[3]

	var seed int64
	if len(os.Args) > 4 {
		n, err := strconv.ParseInt(os.Args[4], 10, 64)
		if err != nil {
			log.Fatalf("Invalid seed %q: %v", os.Args[4], err)
		}
		seed = n
	}

	game := tetris.NewGame(roomID, seed)
	srv := tetris.NewServer(game, log, os.Stdout)

	addr := net.JoinHostPort(host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Could not bind %s: %v", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, ln); err != nil {
		log.Fatalf("Room server failed: %v", err)
	}
}
