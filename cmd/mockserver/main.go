package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/mockserver"
	"github.com/dshills/vsbench/persistence"
)

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Config file (default $HOME/.vsbench.yml)")
		host       = flag.String("host", "", "Host to listen on")
		port       = flag.Int("port", 0, "Port to listen on")
		dbType     = flag.String("db", "", "Snapshot store: memory, bolt, badger")
		dbPath     = flag.String("path", "", "Snapshot store path")
		latency    = flag.Duration("latency", 0, "Latency added to every request")
		failEvery  = flag.Int("fail-every", 0, "Fail every n-th request")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags override the config file
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbType != "" {
		cfg.Persistence.Type = persistence.PersistenceType(*dbType)
	}
	if *dbPath != "" {
		cfg.Persistence.Path = *dbPath
	}
	if *latency != 0 {
		cfg.Server.Latency = *latency
	}
	if *failEvery != 0 {
		cfg.Server.FailEvery = *failEvery
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	closeLog, err := config.SetupLogging(cfg.Logging)
	if err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}
	defer closeLog()

	log.WithFields(log.Fields{
		"store": cfg.Persistence.Type,
		"path":  cfg.Persistence.Path,
	}).Info("Opening snapshot store")

	store, err := persistence.NewStore(cfg.Persistence)
	if err != nil {
		log.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer store.Close()

	server := mockserver.NewServer(store, cfg.Server)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}

	log.Info("Server stopped gracefully")
}
