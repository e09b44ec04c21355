package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"spaceshooter/game"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	auth := NewAuth(cfg.OwnerSecret)
	stats := NewStats()
	registry := NewRegistry(game.DefaultMatchConfig(), cfg.MaxMatches, auth, stats)
	if cfg.DefaultMatch != "" {
		if err := registry.KeepDefault(cfg.DefaultMatch, cfg.DefaultMatchPlayers); err != nil {
			log.Fatalf("default match %q: %v", cfg.DefaultMatch, err)
		}
	}

	hub := NewHub(registry, stats, cfg.MaxConnsPerIP)
	go hub.Run()

	mux := SetupRoutes(hub, cfg)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		log.Printf("Serving client files from %s", cfg.ClientDir)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
	registry.Shutdown()
	stats.Stop()
}
