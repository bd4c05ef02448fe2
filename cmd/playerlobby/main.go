// cmd/playerlobby/main.go runs the player lobby: account management, the
// playable game catalog, and room lifecycle (spawning and supervising one
// game server process per room).
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
	"github.com/blockhaus/blockhaus/internal/lobby"
	"github.com/blockhaus/blockhaus/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(config.LogLevel()); err == nil {
		log.SetLevel(level)
	}

	lb := lobby.New(lobby.Config{
		Tier:     lobby.TierPlayer,
		DB:       store.NewClient(config.DBAddr()),
		Log:      log,
		Host:     config.ServerHost(),
		PortBase: config.GameServerPortBase(),
		Runtime:  config.GameRuntime(),
	})

	addr := net.JoinHostPort(config.ServerHost(), strconv.Itoa(config.PlayerPort()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Could not bind %s: %v", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Player lobby listening on %s", ln.Addr())
	err = lb.Serve(ctx, ln)

	// Serve has drained client connections; now stop the room processes.
	lb.Shutdown()
	if err != nil {
		log.Fatalf("Player lobby failed: %v", err)
	}
	log.Info("Server stopped.")
}
