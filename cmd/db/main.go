// cmd/db/main.go runs the JSON-file document store every other service
// persists through.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/blockhaus/blockhaus/internal/config"
	"github.com/blockhaus/blockhaus/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(config.LogLevel()); err == nil {
		log.SetLevel(level)
	}

	st := store.Open(config.DBFile(), log)
	srv := store.NewServer(st, log)

	ln, err := net.Listen("tcp", config.DBAddr())
	if err != nil {
		log.Fatalf("Could not bind %s: %v", config.DBAddr(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Database server listening on %s (file %s)", ln.Addr(), config.DBFile())
	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatalf("Database server failed: %v", err)
	}
	log.Info("Server stopped.")
}
