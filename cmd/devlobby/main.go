// cmd/devlobby/main.go runs the developer lobby: account management plus
// game asset upload, update, and deletion.
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
		Tier:       lobby.TierDeveloper,
		DB:         store.NewClient(config.DBAddr()),
		Log:        log,
		UploadRoot: config.UploadRoot(),
	})

	addr := net.JoinHostPort(config.ServerHost(), strconv.Itoa(config.DeveloperPort()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Could not bind %s: %v", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Developer lobby listening on %s", ln.Addr())
	if err := lb.Serve(ctx, ln); err != nil {
		log.Fatalf("Developer lobby failed: %v", err)
	}
	log.Info("Server stopped.")
}
