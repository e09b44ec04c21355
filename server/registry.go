package main

import (
	"context"
	"errors"
	"log"
	"regexp"
	"sort"
	"sync"

	"spaceshooter/game"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchExists    = errors.New("match already exists")
	ErrInvalidName    = errors.New("invalid match name")
	ErrTooManyMatches = errors.New("too many active matches")
)

var matchNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]{0,29}$`)

// matchEntry is one registered match
type matchEntry struct {
	name     string
	match    *game.Match
	passHash []byte
	cancel   context.CancelFunc
}

// MatchListing is one row of GET /api/games.
type MatchListing struct {
	Name             string `json:"name"`
	IsPasswordLocked bool   `json:"isPasswordLocked"`
	Players          int    `json:"players"`
	MaxPlayers       int    `json:"maxPlayers"`
	Phase            string `json:"phase"`
}

// Registry maps match names to running matches and handles admission.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*matchEntry

	cfg          game.MatchConfig
	maxMatches   int
	defaultName  string
	defaultCount int
	auth         *Auth
	stats        *Stats
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewRegistry creates an empty registry. Every match it creates starts from
// cfg with its own required player count.
func NewRegistry(cfg game.MatchConfig, maxMatches int, auth *Auth, stats *Stats) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		matches:    make(map[string]*matchEntry),
		cfg:        cfg,
		maxMatches: maxMatches,
		auth:       auth,
		stats:      stats,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// KeepDefault creates a public match that is recreated whenever it ends.
func (r *Registry) KeepDefault(name string, players int) error {
	r.mu.Lock()
	r.defaultName, r.defaultCount = name, players
	r.mu.Unlock()
	_, err := r.Create(name, "", players)
	return err
}

// Create registers and starts a match. It returns the owner token needed
// to close it. players outside [2, slots] falls back to the default.
func (r *Registry) Create(name, password string, players int) (string, error) {
	if !matchNameRe.MatchString(name) {
		return "", ErrInvalidName
	}
	hash, err := r.auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	cfg := r.cfg
	if players >= 2 && players <= cfg.MaxPlayers() {
		cfg.RequiredPlayers = players
	}

	r.mu.Lock()
	if _, ok := r.matches[name]; ok {
		r.mu.Unlock()
		return "", ErrMatchExists
	}
	if len(r.matches) >= r.maxMatches {
		r.mu.Unlock()
		return "", ErrTooManyMatches
	}
	entry := &matchEntry{name: name, passHash: hash}
	entry.match = game.NewMatch(name, cfg, game.WithOnEnd(func(string) { r.reap(entry) }))
	ctx, cancel := context.WithCancel(r.ctx)
	entry.cancel = cancel
	r.matches[name] = entry
	r.mu.Unlock()

	go entry.match.Run(ctx)
	r.stats.Track(EvtMatchCreated, name)
	log.Printf("[registry] created %q for %d players", name, cfg.RequiredPlayers)
	return r.auth.OwnerToken(name)
}

// reap drops an ended match. It runs from the match's end callback, where
// the loop has already been told to exit, so it must not call Stop.
func (r *Registry) reap(entry *matchEntry) {
	r.mu.Lock()
	if cur, ok := r.matches[entry.name]; ok && cur == entry {
		delete(r.matches, entry.name)
	}
	recreate := entry.name == r.defaultName && r.ctx.Err() == nil
	players := r.defaultCount
	r.mu.Unlock()
	entry.cancel()
	r.stats.Track(EvtMatchEnded, entry.name)

	if recreate {
		if _, err := r.Create(entry.name, "", players); err != nil {
			log.Printf("[registry] recreate %q: %v", entry.name, err)
		}
	}
}

// List returns every match sorted by name.
func (r *Registry) List() []MatchListing {
	r.mu.RLock()
	entries := make([]*matchEntry, 0, len(r.matches))
	for _, e := range r.matches {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	list := make([]MatchListing, 0, len(entries))
	for _, e := range entries {
		info := e.match.Info()
		list = append(list, MatchListing{
			Name:             e.name,
			IsPasswordLocked: e.passHash != nil,
			Players:          info.Players,
			MaxPlayers:       info.MaxPlayers,
			Phase:            info.Phase,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Get returns a match by name
func (r *Registry) Get(name string) *game.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.matches[name]; ok {
		return e.match
	}
	return nil
}

// Count returns the number of registered matches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// Join admits a player into a named match after the password check.
func (r *Registry) Join(req GameRequest, ip string, s game.Sender) (*game.Match, game.PlayerInfo, error) {
	r.mu.RLock()
	e, ok := r.matches[req.MatchName]
	r.mu.RUnlock()
	if !ok {
		return nil, game.PlayerInfo{}, ErrMatchNotFound
	}
	if err := r.auth.CheckPassword(e.passHash, req.Password, ip); err != nil {
		return nil, game.PlayerInfo{}, err
	}
	info, err := e.match.Join(req.PlayerName, req.PlayerColor, s)
	if err != nil {
		return nil, game.PlayerInfo{}, err
	}
	return e.match, info, nil
}

// Remove ends a match without a winner and stops it. Players still
// connected receive game-end; the end callback unregisters it.
func (r *Registry) Remove(name string) error {
	m := r.Get(name)
	if m == nil {
		return ErrMatchNotFound
	}
	m.Close()
	log.Printf("[registry] removed %q", name)
	return nil
}

// Close removes a match on behalf of its owner.
func (r *Registry) Close(name, token string) error {
	if r.Get(name) == nil {
		return ErrMatchNotFound
	}
	if err := r.auth.ValidateOwner(token, name); err != nil {
		return err
	}
	return r.Remove(name)
}

// Shutdown stops every match.
func (r *Registry) Shutdown() {
	r.cancel()
	r.mu.Lock()
	entries := make([]*matchEntry, 0, len(r.matches))
	for name, e := range r.matches {
		entries = append(entries, e)
		delete(r.matches, name)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.match.Stop()
	}
}
