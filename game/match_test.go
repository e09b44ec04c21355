package game

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"
)

// recorder captures sent events for testing
type recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *recorder) Send(e Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, e := range r.events {
		if e.T == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testConfig() MatchConfig {
	cfg := DefaultMatchConfig()
	cfg.Pathways = nil
	cfg.PickupCooldownMin = 1 << 20
	cfg.PickupCooldownMax = 1 << 20
	return cfg
}

func newTestMatch(cfg MatchConfig, opts ...Option) *Match {
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return NewMatch("test", cfg, opts...)
}

func mustJoin(t *testing.T, m *Match, name string) (PlayerInfo, *recorder) {
	t.Helper()
	rec := &recorder{}
	info, err := m.Join(name, 0xffffff, rec)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return info, rec
}

// forceRunning skips the lobby and countdown.
func forceRunning(m *Match) {
	m.mu.Lock()
	m.phase = PhaseRunning
	m.mu.Unlock()
}

func (m *Match) player(id string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.playerIndex(id); i >= 0 {
		return m.players[i]
	}
	return nil
}

func tickUntil(t *testing.T, m *Match, rec *recorder, event string, max int) {
	t.Helper()
	for i := 0; i < max; i++ {
		if len(rec.ofType(event)) > 0 {
			return
		}
		m.physicsTick()
	}
	if len(rec.ofType(event)) == 0 {
		t.Fatalf("no %s after %d ticks", event, max)
	}
}

func TestMatchEndToEnd(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	b, recB := mustJoin(t, m, "B")

	if a.Slot != 0 || a.Position != (Vector{60, 60}) {
		t.Errorf("A: slot %d at %v", a.Slot, a.Position)
	}
	if b.Slot != 1 || b.Position != (Vector{800, 60}) {
		t.Errorf("B: slot %d at %v", b.Slot, b.Position)
	}
	if len(recA.ofType(EvInitialState)) != 1 || len(recA.ofType(EvPlayerConnected)) != 1 {
		t.Error("A should see its initial state and B connecting")
	}
	if len(recB.ofType(EvPlayerConnected)) != 0 {
		t.Error("B should not be told about its own connection")
	}

	if err := m.Ready(a.ID); err != nil {
		t.Fatal(err)
	}
	if m.Phase() != PhaseLobby {
		t.Fatal("countdown started with one player ready")
	}
	if err := m.Ready(b.ID); err != nil {
		t.Fatal(err)
	}
	if m.Phase() != PhaseCountdown {
		t.Fatalf("expected countdown, got %s", m.Phase())
	}
	for m.countdownTick() {
	}
	var got []int
	for _, e := range recA.ofType(EvCountdown) {
		got = append(got, e.Data.(int))
	}
	want := []int{5, 4, 3, 2, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("countdown %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("countdown %v, want %v", got, want)
		}
	}
	if m.Phase() != PhaseRunning {
		t.Fatalf("expected running, got %s", m.Phase())
	}

	if err := m.HandleMessage(a.ID, "f.800-60"); err != nil {
		t.Fatal(err)
	}
	if len(recB.ofType(EvProjectileCreated)) != 1 {
		t.Fatal("B not told about the projectile")
	}
	tickUntil(t, m, recB, EvPlayerShot, 400)
	shot := recB.ofType(EvPlayerShot)[0].Data.(PlayerShot)
	if shot.ID != b.ID || shot.Health != 95 {
		t.Errorf("unexpected shot %+v", shot)
	}
	if len(recA.ofType(EvProjectileDestroy)) != 1 {
		t.Error("projectile not destroyed on hit")
	}

	for i := 0; i < 19; i++ {
		if err := m.HandleMessage(a.ID, "f.800-60"); err != nil {
			t.Fatal(err)
		}
	}
	tickUntil(t, m, recA, EvGameEnd, 400)
	ends := recA.ofType(EvGameEnd)
	if len(ends) != 1 || ends[0].Data.(GameEnd).Winner != a.ID {
		t.Fatalf("expected one game-end won by A, got %+v", ends)
	}
	if m.Phase() != PhaseEnded || m.Winner() != a.ID {
		t.Errorf("phase %s winner %q", m.Phase(), m.Winner())
	}
	if bp := m.player(b.ID); bp.Alive || bp.Health != 0 {
		t.Errorf("B should be dead, got %+v", bp)
	}
}

func TestMatchShieldedHit(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	b, recB := mustJoin(t, m, "B")
	forceRunning(m)
	m.player(b.ID).ShieldPoints = 3

	m.HandleMessage(a.ID, "f.800-60")
	tickUntil(t, m, recB, EvPlayerShot, 400)
	shot := recB.ofType(EvPlayerShot)[0].Data.(PlayerShot)
	if shot.Health != 99 || shot.ShieldPoints != 2 {
		t.Errorf("expected 99 health and 2 shield, got %+v", shot)
	}
}

func TestMatchProjectileIgnoresOwner(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	// fired away from B, passes only through the shooter
	m.HandleMessage(a.ID, "f.60-700")
	for i := 0; i < 300; i++ {
		m.physicsTick()
	}
	if len(recA.ofType(EvPlayerShot)) != 0 {
		t.Error("projectile hit its own shooter")
	}
	if len(recA.ofType(EvProjectileDestroy)) != 1 {
		t.Error("projectile should be destroyed leaving the map")
	}
	m.mu.Lock()
	n := len(m.projectiles)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no projectiles left, got %d", n)
	}
}

func TestMatchWinConditionSequentialDeaths(t *testing.T) {
	cfg := testConfig()
	cfg.RequiredPlayers = 3
	m := newTestMatch(cfg)
	a, recA := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	c, _ := mustJoin(t, m, "C")
	forceRunning(m)
	m.player(b.ID).Health = 5
	m.player(c.ID).Health = 5

	m.HandleMessage(a.ID, "f.800-60")
	tickUntil(t, m, recA, EvPlayerShot, 400)
	if m.Phase() != PhaseRunning {
		t.Fatal("match ended with two players alive")
	}
	if len(recA.ofType(EvGameEnd)) != 0 {
		t.Fatal("premature game-end")
	}

	recA.reset()
	m.HandleMessage(a.ID, "f.60-600")
	tickUntil(t, m, recA, EvGameEnd, 400)
	for i := 0; i < 10; i++ {
		m.physicsTick()
		m.broadcastTick()
	}
	ends := recA.ofType(EvGameEnd)
	if len(ends) != 1 || ends[0].Data.(GameEnd).Winner != a.ID {
		t.Fatalf("expected one game-end for A, got %+v", ends)
	}
	if len(recA.ofType(EvServerUpdate)) != 0 {
		t.Error("server-update after the match ended")
	}
}

func TestMatchPickupExclusivity(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	forceRunning(m)

	spot := Vector{500, 400}
	m.mu.Lock()
	for _, p := range m.players {
		p.Position = spot
	}
	m.pickups = append(m.pickups, &Pickup{ID: "pk", Type: PickupShield, Position: spot})
	m.mu.Unlock()

	m.physicsTick()

	taken := recA.ofType(EvPickupTaken)
	if len(taken) != 1 || taken[0].Data.(PickupTaken).PlayerID != a.ID {
		t.Fatalf("expected A to take the pickup once, got %+v", taken)
	}
	if m.player(a.ID).ShieldPoints != 3 || m.player(b.ID).ShieldPoints != 0 {
		t.Error("shield granted to the wrong player")
	}
	m.mu.Lock()
	left := len(m.pickups)
	m.mu.Unlock()
	if left != 0 {
		t.Errorf("pickup not removed, %d left", left)
	}
}

func TestMatchHealthPickupStaysForFullHealth(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	m.mu.Lock()
	m.pickups = append(m.pickups, &Pickup{ID: "pk", Type: PickupHealth, Position: Vector{60, 60}})
	m.mu.Unlock()
	m.physicsTick()
	if len(recA.ofType(EvPickupTaken)) != 0 {
		t.Fatal("full health player consumed a health pickup")
	}

	m.player(a.ID).Health = 90
	m.physicsTick()
	if len(recA.ofType(EvPickupTaken)) != 1 || m.player(a.ID).Health != 100 {
		t.Errorf("health pickup not applied, health %d", m.player(a.ID).Health)
	}
}

func TestMatchWormholeTeleport(t *testing.T) {
	cfg := testConfig()
	cfg.Pathways = []PathwaySpec{{Color: 1, A: Vector{250, 400}, B: Vector{750, 150}}}
	m := newTestMatch(cfg)
	a, _ := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	p := m.player(a.ID)
	m.mu.Lock()
	p.Position = Vector{250, 400}
	p.Rotation = 0
	m.mu.Unlock()
	m.physicsTick()

	want := Vector{750 + WormholeExitNudge, 150}
	if p.Position != want {
		t.Errorf("expected exit at %v, got %v", want, p.Position)
	}
	// must not bounce straight back on the next tick
	m.physicsTick()
	if p.Position != want {
		t.Errorf("teleported again: %v", p.Position)
	}
}

func TestMatchInputReplay(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	mustJoin(t, m, "B")

	// ignored outside running
	m.HandleMessage(a.ID, "i.r.1")
	if m.player(a.ID).PendingInputs() != 0 {
		t.Fatal("input buffered in lobby")
	}
	forceRunning(m)

	m.HandleMessage(a.ID, "i.r.1")
	m.HandleMessage(a.ID, "i.r.2")
	m.physicsTick()
	m.HandleMessage(a.ID, "i.r.2")
	m.HandleMessage(a.ID, "i.r.1")
	m.physicsTick()

	p := m.player(a.ID)
	if p.Position.X != 64 || p.LastInputSeq != 2 {
		t.Errorf("expected x=64 seq=2, got x=%f seq=%d", p.Position.X, p.LastInputSeq)
	}
}

func TestMatchAimSetsRotation(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	m.HandleMessage(a.ID, "m.60-160.1")
	m.physicsTick()
	p := m.player(a.ID)
	if p.LastAngleSeq != 1 || p.Rotation != AngleBetweenPoints(Vector{60, 60}, Vector{60, 160}) {
		t.Errorf("rotation %f seq %d", p.Rotation, p.LastAngleSeq)
	}
}

func TestMatchMalformedMessages(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)
	recA.reset()

	if err := m.HandleMessage(a.ID, "garbage"); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
	if err := m.HandleMessage("nobody", "f.1-1"); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
	if recA.count() != 0 {
		t.Error("rejected messages produced events")
	}
}

func TestMatchPingEcho(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	_, recB := mustJoin(t, m, "B")

	m.HandleMessage(a.ID, "p.12345")
	msgs := recA.ofType(EvMessage)
	if len(msgs) != 1 || msgs[0].Data != "p.12345" {
		t.Fatalf("expected echo, got %+v", msgs)
	}
	if len(recB.ofType(EvMessage)) != 0 {
		t.Error("ping echoed to another player")
	}
}

func TestMatchAdmission(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	mustJoin(t, m, "B")

	if _, err := m.Join("C", 0, &recorder{}); !errors.Is(err, ErrMatchFull) {
		t.Errorf("expected ErrMatchFull, got %v", err)
	}

	// a freed slot is handed to the next joiner
	m.Leave(a.ID)
	c, _ := mustJoin(t, m, "C")
	if c.Slot != 0 {
		t.Errorf("expected recycled slot 0, got %d", c.Slot)
	}

	forceRunning(m)
	m.Leave(c.ID)
	if _, err := m.Join("D", 0, &recorder{}); !errors.Is(err, ErrMatchEnded) && !errors.Is(err, ErrMatchStarted) {
		t.Errorf("expected rejection after start, got %v", err)
	}
}

func TestMatchReadyErrors(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")

	if err := m.Ready("nobody"); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
	m.Ready(a.ID)
	if err := m.Ready(a.ID); !errors.Is(err, ErrAlreadyReady) {
		t.Errorf("expected ErrAlreadyReady, got %v", err)
	}
}

func TestMatchCountdownAbort(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	m.Ready(a.ID)
	m.Ready(b.ID)
	m.countdownTick()

	m.Leave(b.ID)
	if m.Phase() != PhaseLobby {
		t.Fatalf("expected lobby after abort, got %s", m.Phase())
	}
	cd := recA.ofType(EvCountdown)
	if last := cd[len(cd)-1].Data.(int); last != -1 {
		t.Errorf("expected abort signal -1, got %d", last)
	}
	if m.countdownTick() {
		t.Error("countdown kept running after abort")
	}
	if m.player(a.ID).Ready {
		t.Error("ready flag should reset after abort")
	}
}

func TestMatchEmptyEnds(t *testing.T) {
	var ended []string
	m := newTestMatch(testConfig(), WithOnEnd(func(w string) { ended = append(ended, w) }))
	a, _ := mustJoin(t, m, "A")
	m.Leave(a.ID)

	if m.Phase() != PhaseEnded {
		t.Fatalf("expected ended, got %s", m.Phase())
	}
	if len(ended) != 1 || ended[0] != "" {
		t.Errorf("expected one abandonment callback, got %v", ended)
	}
	if err := m.Leave(a.ID); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestMatchPickupSpawnCap(t *testing.T) {
	cfg := testConfig()
	cfg.PickupCooldownMin = 0
	cfg.PickupCooldownMax = 0
	m := newTestMatch(cfg)
	_, recA := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	for i := 0; i < 20; i++ {
		m.broadcastTick()
	}
	spawned := recA.ofType(EvPickupSpawned)
	if len(spawned) != cfg.PickupCap {
		t.Errorf("expected %d pickups, got %d", cfg.PickupCap, len(spawned))
	}
	for _, e := range spawned {
		pk := e.Data.(PickupInfo)
		if pk.Position.X < PickupRadius || pk.Position.X > cfg.MapWidth-PickupRadius {
			t.Errorf("pickup spawned off map: %v", pk.Position)
		}
	}
	if n := len(recA.ofType(EvServerUpdate)); n != 20 {
		t.Errorf("expected 20 snapshots, got %d", n)
	}
}

func TestMatchSnapshotContents(t *testing.T) {
	clock := func() time.Time { return time.UnixMilli(777) }
	m := newTestMatch(testConfig(), WithClock(clock))
	a, recA := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	forceRunning(m)
	m.HandleMessage(a.ID, "i.d+.1")
	m.physicsTick()
	m.broadcastTick()

	ups := recA.ofType(EvServerUpdate)
	if len(ups) != 1 {
		t.Fatalf("expected one update, got %d", len(ups))
	}
	snap, err := DecodeSnapshot(ups[0].Data.(Snapshot))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Time != 777 || len(snap.Players) != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if got := snap.Players[a.ID]; got.LastInputSeq != 1 || !got.Driving {
		t.Errorf("A record %+v", got)
	}
	if got := snap.Players[b.ID]; got.Position != (Vector{800, 60}) {
		t.Errorf("B record %+v", got)
	}
}

func TestMatchStopIdempotent(t *testing.T) {
	m := newTestMatch(testConfig())
	m.Stop()
	m.Stop()
	// Run after Stop returns immediately
	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return on a stopped match")
	}
}

func TestMatchNoEventsAfterStop(t *testing.T) {
	cfg := testConfig()
	cfg.PickupCooldownMin = 0
	cfg.PickupCooldownMax = 0
	m := newTestMatch(cfg)
	_, recA := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)

	go m.Run(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for len(recA.ofType(EvServerUpdate)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no server-update from the running loop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	recA.reset()
	time.Sleep(200 * time.Millisecond)
	if n := recA.count(); n != 0 {
		t.Errorf("expected no events after stop, got %d", n)
	}
	m.Stop()
}

func TestMatchLastSurvivorTearsDownLoop(t *testing.T) {
	m := newTestMatch(testConfig())
	a, recA := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	forceRunning(m)

	go m.Run(context.Background())
	m.Leave(b.ID)

	ends := recA.ofType(EvGameEnd)
	if len(ends) != 1 || ends[0].Data.(GameEnd).Winner != a.ID {
		t.Fatalf("expected A to win on forfeit, got %+v", ends)
	}
	m.Stop()
	recA.reset()
	time.Sleep(200 * time.Millisecond)
	if n := recA.count(); n != 0 {
		t.Errorf("expected no events after game-end, got %d", n)
	}
}

func TestMatchRunCancelledByContext(t *testing.T) {
	m := newTestMatch(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run ignored context cancellation")
	}
	m.Stop()
}

func TestMatchThrustKeepsMovingWithoutInput(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	mustJoin(t, m, "B")
	forceRunning(m)
	mv := testConfig().Movement()

	m.HandleMessage(a.ID, "i.d+.1")
	m.physicsTick()
	p := m.player(a.ID)
	last := p.Position.X
	for i := 0; i < 50; i++ {
		m.physicsTick()
		if p.Position.X <= last {
			t.Fatalf("tick %d: ship stopped at x=%f", i, p.Position.X)
		}
		last = p.Position.X
	}
	if math.Abs(p.Velocity.X-mv.MaxVelocity) > 1e-9 {
		t.Errorf("expected cruise speed %f, got %v", mv.MaxVelocity, p.Velocity)
	}

	m.HandleMessage(a.ID, "i.d-.2")
	m.physicsTick()
	if p.Driving || p.Velocity.X >= mv.MaxVelocity {
		t.Errorf("thrust release did not apply drag: %+v", p.Body)
	}
}

func TestMatchSpeedIndependentOfSendRate(t *testing.T) {
	m := newTestMatch(testConfig())
	a, _ := mustJoin(t, m, "A")
	b, _ := mustJoin(t, m, "B")
	forceRunning(m)

	seqA, seqB := uint32(0), uint32(0)
	for tick := 0; tick < 30; tick++ {
		seqA++
		m.HandleMessage(a.ID, "i.d+."+strconv.FormatUint(uint64(seqA), 10))
		for i := 0; i < 4; i++ {
			seqB++
			m.HandleMessage(b.ID, "i.d+."+strconv.FormatUint(uint64(seqB), 10))
		}
		m.physicsTick()
	}

	da := m.player(a.ID).Position.X - 60
	db := m.player(b.ID).Position.X - 800
	if math.Abs(da-db) > 1e-9 {
		t.Errorf("flooding inputs changed distance travelled: %f vs %f", da, db)
	}
}

// slowRecorder takes a while to hand over projectile-created, the way a
// connection does while it marshals.
type slowRecorder struct {
	recorder
}

func (r *slowRecorder) Send(e Envelope) {
	if e.T == EvProjectileCreated {
		time.Sleep(200 * time.Microsecond)
	}
	r.recorder.Send(e)
}

func TestMatchDeliversEventsInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.ProjectileDamage = 0
	m := newTestMatch(cfg)
	a, _ := mustJoin(t, m, "A")
	recB := &slowRecorder{}
	if _, err := m.Join("B", 0, recB); err != nil {
		t.Fatal(err)
	}
	forceRunning(m)
	m.mu.Lock()
	m.players[1].Position = m.players[0].Position
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for i := 0; i < 300; i++ {
		m.HandleMessage(a.ID, "f.800-60")
		if i%10 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	created := make(map[string]bool)
	destroyed, early := 0, 0
	recB.mu.Lock()
	events := append([]Envelope(nil), recB.events...)
	recB.mu.Unlock()
	for _, e := range events {
		switch e.T {
		case EvProjectileCreated:
			created[e.Data.(ProjectileInfo).ID] = true
		case EvProjectileDestroy:
			destroyed++
			if !created[e.Data.(IDMsg).ID] {
				early++
			}
		}
	}
	if destroyed == 0 {
		t.Fatal("no projectile hit B")
	}
	if early > 0 {
		t.Errorf("%d of %d projectile-destroyed delivered before projectile-created", early, destroyed)
	}
}
