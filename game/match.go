package game

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// Phase is the lifecycle state of a match
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseCountdown
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseCountdown:
		return "countdown"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

var (
	ErrMatchFull     = errors.New("match is full")
	ErrMatchStarted  = errors.New("match already started")
	ErrMatchEnded    = errors.New("match has ended")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrAlreadyReady  = errors.New("player already ready")
)

const refPlayer byte = 'p'

// Info is the public summary of a match used by listings.
type Info struct {
	Room       string `json:"name"`
	Phase      string `json:"phase"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

type outMsg struct {
	to  Sender
	env Envelope
}

// Option customises a Match at construction.
type Option func(*Match)

// WithRand replaces the pickup spawner's random source.
func WithRand(r *rand.Rand) Option {
	return func(m *Match) { m.rng = r }
}

// WithClock replaces the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

// WithOnEnd registers a callback run once when the match ends. It runs on
// the goroutine that ended the match, outside the match lock, and must not
// call Stop.
func WithOnEnd(fn func(winner string)) Option {
	return func(m *Match) { m.onEnd = fn }
}

// Match is one authoritative simulation. All state is guarded by mu; events
// produced under the lock are queued and delivered after it is released.
type Match struct {
	Room string
	cfg  MatchConfig
	mv   Movement

	mu            sync.Mutex
	phase         Phase
	players       []*Player // join order
	senders       map[string]Sender
	slots         []bool
	projectiles   []*Projectile
	pickups       []*Pickup
	pathways      []*Pathway
	grid          *SpatialGrid
	refBuf        []EntityRef
	countdown     int
	spawnCooldown int
	winner        string

	rng   *rand.Rand
	now   func() time.Time
	onEnd func(winner string)

	// flushMu is taken before mu is released so outboxes are delivered in
	// the order they were filled, whichever goroutine filled them.
	flushMu sync.Mutex
	outbox  []outMsg
	after   []func()

	started        bool
	stopped        bool
	stop           chan struct{}
	done           chan struct{}
	countdownStart chan struct{}
}

// NewMatch creates a match in the lobby phase. Call Run to start its loop.
func NewMatch(room string, cfg MatchConfig, opts ...Option) *Match {
	m := &Match{
		Room:           room,
		cfg:            cfg,
		mv:             cfg.Movement(),
		senders:        make(map[string]Sender),
		slots:          make([]bool, cfg.MaxPlayers()),
		grid:           NewSpatialGrid(cfg.MapWidth, cfg.MapHeight),
		now:            time.Now,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		countdownStart: make(chan struct{}, 1),
	}
	for _, ps := range cfg.Pathways {
		m.pathways = append(m.pathways, &Pathway{ID: NewID(), Color: ps.Color, A: ps.A, B: ps.B})
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	m.rollSpawnCooldown()
	return m
}

// Run drives the physics, broadcast and countdown timers until Stop is
// called, ctx is cancelled or the match ends. A second call is a no-op.
func (m *Match) Run(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	defer close(m.done)

	physics := time.NewTicker(m.cfg.PhysicsPeriod)
	defer physics.Stop()
	broadcast := time.NewTicker(m.cfg.BroadcastPeriod)
	defer broadcast.Stop()

	var countdown *time.Ticker
	var countdownC <-chan time.Time
	defer func() {
		if countdown != nil {
			countdown.Stop()
		}
	}()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			m.mu.Lock()
			m.halt()
			m.mu.Unlock()
			return
		case <-physics.C:
			m.physicsTick()
		case <-broadcast.C:
			m.broadcastTick()
		case <-m.countdownStart:
			if countdown != nil {
				countdown.Stop()
			}
			countdown = time.NewTicker(time.Second)
			countdownC = countdown.C
		case <-countdownC:
			if !m.countdownTick() {
				countdown.Stop()
				countdownC = nil
			}
		}
	}
}

// Stop tears the match down. It is idempotent and, once the loop has
// started, returns only after the loop has exited so no tick fires later.
func (m *Match) Stop() {
	m.mu.Lock()
	m.halt()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// Close ends the match without a winner, unless it already ended, and
// stops it.
func (m *Match) Close() {
	m.mu.Lock()
	m.end("")
	m.unlockAndFlush()
	m.Stop()
}

// halt signals the loop to exit. Caller holds mu.
func (m *Match) halt() {
	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
}

// Phase returns the current lifecycle phase.
func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// PlayerCount returns the number of joined players.
func (m *Match) PlayerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Winner returns the winner id once the match has ended.
func (m *Match) Winner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winner
}

// Info summarises the match for listings.
func (m *Match) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{
		Room:       m.Room,
		Phase:      m.phase.String(),
		Players:    len(m.players),
		MaxPlayers: m.cfg.RequiredPlayers,
	}
}

// Join admits a player in the lobby and assigns the first free spawn slot.
// The joiner receives initial-game-state, everyone else player-connected.
func (m *Match) Join(name string, color int, s Sender) (PlayerInfo, error) {
	m.mu.Lock()
	if m.stopped || m.phase == PhaseEnded {
		m.mu.Unlock()
		return PlayerInfo{}, ErrMatchEnded
	}
	if m.phase != PhaseLobby {
		m.mu.Unlock()
		return PlayerInfo{}, ErrMatchStarted
	}
	slot := m.freeSlot()
	if len(m.players) >= m.cfg.RequiredPlayers || slot < 0 {
		m.mu.Unlock()
		return PlayerInfo{}, ErrMatchFull
	}

	p := NewPlayer(NewID(), name, color, slot, m.cfg.SpawnSlots[slot])
	m.slots[slot] = true
	m.broadcast(Envelope{T: EvPlayerConnected, Data: p.ToInfo()})
	m.players = append(m.players, p)
	m.senders[p.ID] = s
	m.sendTo(p.ID, Envelope{T: EvInitialState, Data: m.initialState()})
	info := p.ToInfo()
	log.Printf("[match %s] %s joined slot %d (%d/%d)", m.Room, p.ID, slot, len(m.players), m.cfg.RequiredPlayers)
	m.unlockAndFlush()
	return info, nil
}

// Leave removes a player. It may abort a countdown, decide the match or
// end an empty match.
func (m *Match) Leave(id string) error {
	m.mu.Lock()
	idx := m.playerIndex(id)
	if idx < 0 {
		m.mu.Unlock()
		return ErrUnknownPlayer
	}
	p := m.players[idx]
	p.ClearBuffers()
	m.players = append(m.players[:idx], m.players[idx+1:]...)
	delete(m.senders, id)
	m.slots[p.Slot] = false
	m.broadcast(Envelope{T: EvPlayerDisconnected, Data: IDMsg{ID: id}})
	log.Printf("[match %s] %s left", m.Room, id)

	switch {
	case m.phase == PhaseEnded:
	case len(m.players) == 0:
		m.end("")
	case m.phase == PhaseCountdown && len(m.players) < m.cfg.RequiredPlayers:
		m.phase = PhaseLobby
		for _, o := range m.players {
			o.Ready = false
		}
		m.broadcast(Envelope{T: EvCountdown, Data: -1})
		log.Printf("[match %s] countdown aborted", m.Room)
	case m.phase == PhaseRunning:
		m.checkWin()
	}
	m.unlockAndFlush()
	return nil
}

// Ready marks a lobby player ready and starts the countdown once every
// required player is in and ready.
func (m *Match) Ready(id string) error {
	m.mu.Lock()
	defer m.unlockAndFlush()
	switch m.phase {
	case PhaseEnded:
		return ErrMatchEnded
	case PhaseCountdown, PhaseRunning:
		return ErrMatchStarted
	}
	idx := m.playerIndex(id)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	p := m.players[idx]
	if p.Ready {
		return ErrAlreadyReady
	}
	p.Ready = true
	m.broadcast(Envelope{T: EvPlayerReady, Data: IDMsg{ID: id}})

	if len(m.players) < m.cfg.RequiredPlayers {
		return nil
	}
	for _, o := range m.players {
		if !o.Ready {
			return nil
		}
	}
	m.phase = PhaseCountdown
	m.countdown = m.cfg.CountdownSeconds
	m.broadcast(Envelope{T: EvCountdown, Data: m.countdown})
	log.Printf("[match %s] countdown started", m.Room)
	select {
	case m.countdownStart <- struct{}{}:
	default:
	}
	return nil
}

// HandleMessage applies one compact command string from a player.
// Malformed strings and unknown players are rejected before any state is
// touched; movement and fire are ignored unless the match is running and
// the player is alive.
func (m *Match) HandleMessage(id, raw string) error {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.unlockAndFlush()
	idx := m.playerIndex(id)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	p := m.players[idx]

	if cmd.Kind == CmdPing {
		m.sendTo(id, Envelope{T: EvMessage, Data: cmd.String()})
		return nil
	}
	if m.stopped || m.phase != PhaseRunning || !p.Alive {
		return nil
	}
	switch cmd.Kind {
	case CmdInput:
		p.QueueInput(cmd.Input)
	case CmdAim:
		p.QueueAngle(AngleCommand{Seq: cmd.Aim.Seq, Angle: AngleBetweenPoints(p.Position, cmd.Aim.Target)})
	case CmdFire:
		if len(m.projectiles) >= maxProjectiles {
			return nil
		}
		angle := AngleBetweenPoints(p.Position, cmd.Fire.Target)
		proj := NewProjectile(NewID(), p, angle, m.cfg.ProjectileSpeed, m.cfg.ProjectileDamage)
		m.projectiles = append(m.projectiles, proj)
		m.broadcast(Envelope{T: EvProjectileCreated, Data: proj.ToInfo()})
	}
	return nil
}

// countdownTick emits the next countdown value and reports whether the
// countdown is still going.
func (m *Match) countdownTick() bool {
	m.mu.Lock()
	defer m.unlockAndFlush()
	if m.stopped || m.phase != PhaseCountdown {
		return false
	}
	m.countdown--
	m.broadcast(Envelope{T: EvCountdown, Data: m.countdown})
	if m.countdown > 0 {
		return true
	}
	m.phase = PhaseRunning
	log.Printf("[match %s] running", m.Room)
	return false
}

// physicsTick replays buffered input, steps every ship, moves projectiles
// and resolves collisions.
func (m *Match) physicsTick() {
	m.mu.Lock()
	defer m.unlockAndFlush()
	if m.stopped || m.phase != PhaseRunning {
		return
	}

	for _, p := range m.players {
		if !p.Alive {
			p.ClearBuffers()
			continue
		}
		p.ProcessAngles()
		p.ProcessInputs(m.mv)
		p.Step(m.mv)
	}

	dims := m.cfg.Dimensions()
	kept := m.projectiles[:0]
	for _, pr := range m.projectiles {
		pr.Move()
		if IsOutOfBounds(pr.Position, dims) {
			m.broadcast(Envelope{T: EvProjectileDestroy, Data: IDMsg{ID: pr.ID}})
			continue
		}
		kept = append(kept, pr)
	}
	clear(m.projectiles[len(kept):])
	m.projectiles = kept

	m.resolveCollisions()
}

func (m *Match) resolveCollisions() {
	m.grid.Clear()
	for i, p := range m.players {
		if p.Alive {
			m.grid.InsertCircle(p.Position.X, p.Position.Y, PlayerRadius, EntityRef{Kind: refPlayer, Idx: i})
		}
	}

	kept := m.projectiles[:0]
	for _, pr := range m.projectiles {
		if m.phase != PhaseRunning || !m.projectileHit(pr) {
			kept = append(kept, pr)
		}
	}
	clear(m.projectiles[len(kept):])
	m.projectiles = kept
	if m.phase != PhaseRunning {
		return
	}

	for _, p := range m.players {
		if !p.Alive {
			continue
		}
		for _, pw := range m.pathways {
			if exit, ok := pw.Exit(p.Circle()); ok {
				Teleport(&p.Body, exit, m.mv)
				break
			}
		}
	}

	// Pickups are offered to players in join order so the first eligible
	// player wins a contested pickup.
	keptPickups := m.pickups[:0]
	for _, pk := range m.pickups {
		taken := false
		for _, p := range m.players {
			if !CheckCollision(p.Circle(), pk.Circle()) {
				continue
			}
			if ApplyPickup(p, pk.Type, m.cfg.HealAmount, m.cfg.ShieldPoints) {
				m.broadcast(Envelope{T: EvPickupTaken, Data: PickupTaken{ID: pk.ID, PlayerID: p.ID}})
				taken = true
				break
			}
		}
		if !taken {
			keptPickups = append(keptPickups, pk)
		}
	}
	clear(m.pickups[len(keptPickups):])
	m.pickups = keptPickups
}

// projectileHit damages the first non-owner player the projectile touches
// and reports whether the projectile was spent.
func (m *Match) projectileHit(pr *Projectile) bool {
	box := pr.Box()
	m.refBuf = m.grid.QueryBuf(box.Center.X, box.Center.Y, box.BoundingRadius(), m.refBuf[:0])
	for _, ref := range m.refBuf {
		p := m.players[ref.Idx]
		if !p.Alive || p.ID == pr.PlayerID {
			continue
		}
		if !CheckCircleBoxCollision(p.Circle(), box) {
			continue
		}
		died := ApplyDamage(p, pr.Damage, m.cfg.ShieldFactor)
		m.broadcast(Envelope{T: EvPlayerShot, Data: PlayerShot{ID: p.ID, Health: p.Health, ShieldPoints: p.ShieldPoints}})
		m.broadcast(Envelope{T: EvProjectileDestroy, Data: IDMsg{ID: pr.ID}})
		if died {
			log.Printf("[match %s] %s destroyed by %s", m.Room, p.ID, pr.PlayerID)
			m.checkWin()
		}
		return true
	}
	return false
}

// broadcastTick sends the world snapshot and runs the pickup spawner.
func (m *Match) broadcastTick() {
	m.mu.Lock()
	defer m.unlockAndFlush()
	if m.stopped || m.phase != PhaseRunning {
		return
	}

	states := make([]PlayerSnapshot, 0, len(m.players))
	for _, p := range m.players {
		states = append(states, p.ToSnapshot())
	}
	m.broadcast(Envelope{T: EvServerUpdate, Data: EncodeSnapshot(m.now(), states)})

	if len(m.pickups) >= m.cfg.PickupCap {
		return
	}
	if m.spawnCooldown > 0 {
		m.spawnCooldown--
		return
	}
	m.spawnPickup()
	m.rollSpawnCooldown()
}

func (m *Match) spawnPickup() {
	t := PickupHealth
	if m.rng.IntN(2) == 1 {
		t = PickupShield
	}
	pk := &Pickup{
		ID:   NewID(),
		Type: t,
		Position: Vector{
			X: PickupRadius + m.rng.Float64()*(m.cfg.MapWidth-2*PickupRadius),
			Y: PickupRadius + m.rng.Float64()*(m.cfg.MapHeight-2*PickupRadius),
		},
	}
	m.pickups = append(m.pickups, pk)
	m.broadcast(Envelope{T: EvPickupSpawned, Data: pk.ToInfo()})
}

func (m *Match) rollSpawnCooldown() {
	lo, hi := m.cfg.PickupCooldownMin, m.cfg.PickupCooldownMax
	if hi <= lo {
		m.spawnCooldown = lo
		return
	}
	m.spawnCooldown = lo + m.rng.IntN(hi-lo+1)
}

// checkWin ends a running match once at most one player is left alive.
func (m *Match) checkWin() {
	if m.phase != PhaseRunning {
		return
	}
	alive := 0
	var last string
	for _, p := range m.players {
		if p.Alive {
			alive++
			last = p.ID
		}
	}
	switch alive {
	case 0:
		m.end("")
	case 1:
		m.end(last)
	}
}

// end broadcasts game-end and stops the loop. Caller holds mu.
func (m *Match) end(winner string) {
	if m.phase == PhaseEnded {
		return
	}
	m.phase = PhaseEnded
	m.winner = winner
	m.broadcast(Envelope{T: EvGameEnd, Data: GameEnd{Winner: winner}})
	m.halt()
	if m.onEnd != nil {
		fn := m.onEnd
		m.after = append(m.after, func() { fn(winner) })
	}
	log.Printf("[match %s] ended, winner %q", m.Room, winner)
}

func (m *Match) initialState() InitialGameState {
	s := InitialGameState{
		Players:     make([]PlayerInfo, 0, len(m.players)),
		Pathways:    make([]PathwayInfo, 0, len(m.pathways)),
		Pickups:     make([]PickupInfo, 0, len(m.pickups)),
		Projectiles: make([]ProjectileInfo, 0, len(m.projectiles)),
	}
	for _, p := range m.players {
		s.Players = append(s.Players, p.ToInfo())
	}
	for _, pw := range m.pathways {
		s.Pathways = append(s.Pathways, pw.ToInfo())
	}
	for _, pk := range m.pickups {
		s.Pickups = append(s.Pickups, pk.ToInfo())
	}
	for _, pr := range m.projectiles {
		s.Projectiles = append(s.Projectiles, pr.ToInfo())
	}
	return s
}

func (m *Match) freeSlot() int {
	for i, used := range m.slots {
		if !used {
			return i
		}
	}
	return -1
}

func (m *Match) playerIndex(id string) int {
	for i, p := range m.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// broadcast queues an event for every player. Caller holds mu.
func (m *Match) broadcast(env Envelope) {
	for _, p := range m.players {
		if s := m.senders[p.ID]; s != nil {
			m.outbox = append(m.outbox, outMsg{to: s, env: env})
		}
	}
}

// sendTo queues an event for one player. Caller holds mu.
func (m *Match) sendTo(id string, env Envelope) {
	if s := m.senders[id]; s != nil {
		m.outbox = append(m.outbox, outMsg{to: s, env: env})
	}
}

// unlockAndFlush releases mu and then delivers queued events and callbacks.
// Senders must not call back into the match.
func (m *Match) unlockAndFlush() {
	out, after := m.outbox, m.after
	m.outbox, m.after = nil, nil
	m.flushMu.Lock()
	m.mu.Unlock()
	for _, o := range out {
		o.to.Send(o.env)
	}
	m.flushMu.Unlock()
	for _, fn := range after {
		fn()
	}
}
