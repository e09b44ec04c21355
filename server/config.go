package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the process settings. Flags override the environment, which
// may be seeded from a .env file.
type Config struct {
	Addr                string
	ClientDir           string
	PublicURL           string
	OwnerSecret         string
	DefaultMatch        string
	DefaultMatchPlayers int
	MaxMatches          int
	MaxConnsPerIP       int
}

// LoadConfig reads .env (if present), the environment and then args.
func LoadConfig(args []string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	} else if err == nil {
		log.Println("loaded environment from .env")
	}

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	var cfg Config
	fset.StringVar(&cfg.Addr, "addr", envString("ADDR", ":8080"), "HTTP listen address")
	fset.StringVar(&cfg.ClientDir, "client", envString("CLIENT_DIR", ""), "Path to client directory (default: ../client)")
	fset.StringVar(&cfg.PublicURL, "public-url", envString("PUBLIC_URL", "http://localhost:8080"), "Base URL encoded in lobby QR codes")
	fset.StringVar(&cfg.OwnerSecret, "owner-secret", envString("OWNER_SECRET", ""), "HMAC secret for match owner tokens (random if empty)")
	fset.StringVar(&cfg.DefaultMatch, "default-match", envString("DEFAULT_MATCH", ""), "Name of a public match kept open at all times")
	fset.IntVar(&cfg.DefaultMatchPlayers, "default-match-players", envInt("DEFAULT_MATCH_PLAYERS", 2), "Required players of the default match")
	fset.IntVar(&cfg.MaxMatches, "max-matches", envInt("MAX_MATCHES", 100), "Maximum concurrent matches")
	fset.IntVar(&cfg.MaxConnsPerIP, "max-conns-per-ip", envInt("MAX_CONNS_PER_IP", 5), "Maximum WebSocket connections per client IP")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ClientDir == "" {
		exe, _ := os.Executable()
		cfg.ClientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(cfg.ClientDir); os.IsNotExist(err) {
			cfg.ClientDir = "../client"
		}
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}
