// Package predict is the client half of the netcode: it predicts the local
// ship from its own input, reconciles against server snapshots and
// interpolates every other ship between buffered snapshots.
package predict

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"spaceshooter/game"
)

const maxPendingInputs = 1024

// Sender transmits compact command strings to the server.
type Sender interface {
	SendCommand(cmd string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(string) error

func (f SenderFunc) SendCommand(cmd string) error { return f(cmd) }

// Config holds the client tuning.
type Config struct {
	Match               game.MatchConfig
	BufferSize          int
	InterpolationOffset time.Duration
	Prediction          bool
	Interpolation       bool // false snaps remotes to the later snapshot
}

// DefaultConfig returns the reference client settings.
func DefaultConfig() Config {
	return Config{
		Match:               game.DefaultMatchConfig(),
		BufferSize:          60,
		InterpolationOffset: 100 * time.Millisecond,
		Prediction:          true,
		Interpolation:       true,
	}
}

type inbound struct {
	env  *game.InEnvelope
	snap *game.DecodedSnapshot
	at   time.Time
}

// Engine mirrors one match on the client.
//
// HandleEvent and PushSnapshot may be called from a network goroutine; they
// only queue. Every other method belongs to the render goroutine and must
// not be called concurrently.
type Engine struct {
	cfg    Config
	mv     game.Movement
	sender Sender
	selfID string
	now    func() time.Time

	inMu    sync.Mutex
	pending []inbound

	snapshots  *SnapshotBuffer
	receivedAt time.Time
	fresh      bool

	self    *game.Player
	remotes map[string]*game.Player
	order   []string

	inputSeq, appliedInput, ackedInput uint32
	angleSeq, appliedAngle, ackedAngle uint32
	pendingInputs                      []game.InputCommand
	pendingAngles                      []game.AngleCommand

	projectiles map[string]*game.Projectile
	pickups     map[string]*game.Pickup
	pathways    []game.PathwayInfo

	countdown  int
	ended      bool
	winner     string
	netPing    time.Duration
	netLatency time.Duration
}

// NewEngine creates an engine for the player selfID.
func NewEngine(selfID string, sender Sender, cfg Config) *Engine {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 60
	}
	return &Engine{
		cfg:         cfg,
		mv:          cfg.Match.Movement(),
		sender:      sender,
		selfID:      selfID,
		now:         time.Now,
		snapshots:   NewSnapshotBuffer(cfg.BufferSize),
		remotes:     make(map[string]*game.Player),
		projectiles: make(map[string]*game.Projectile),
		pickups:     make(map[string]*game.Pickup),
		countdown:   -1,
	}
}

// HandleEvent queues a server event for the next Frame. server-update
// events are decoded and buffered like PushSnapshot.
func (e *Engine) HandleEvent(env game.InEnvelope) error {
	if env.T == game.EvServerUpdate {
		var s game.Snapshot
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return fmt.Errorf("server-update: %w", err)
		}
		return e.PushSnapshot(s, e.now())
	}
	e.inMu.Lock()
	e.pending = append(e.pending, inbound{env: &env})
	e.inMu.Unlock()
	return nil
}

// PushSnapshot decodes and queues a snapshot received at the given time.
func (e *Engine) PushSnapshot(s game.Snapshot, receivedAt time.Time) error {
	d, err := game.DecodeSnapshot(s)
	if err != nil {
		return err
	}
	e.inMu.Lock()
	e.pending = append(e.pending, inbound{snap: &d, at: receivedAt})
	e.inMu.Unlock()
	return nil
}

// Frame drains queued events and snapshots, reconciles the local ship
// against the newest snapshot and interpolates everybody else.
func (e *Engine) Frame(now time.Time) {
	e.inMu.Lock()
	queue := e.pending
	e.pending = nil
	e.inMu.Unlock()

	for _, in := range queue {
		if in.snap != nil {
			if e.snapshots.Push(*in.snap) {
				e.receivedAt = in.at
				e.fresh = true
			}
			continue
		}
		e.apply(*in.env, now)
	}

	if e.fresh {
		e.fresh = false
		if latest, ok := e.snapshots.Latest(); ok && e.cfg.Prediction && e.self != nil {
			if s, ok := latest.Players[e.selfID]; ok {
				e.reconcile(s)
			}
		}
	}
	e.interpolate(now)
}

// PhysicsStep runs one client physics tick: buffered input not yet applied
// to the prediction is replayed, the local ship is stepped like the server
// steps it and mirrored projectiles move.
func (e *Engine) PhysicsStep() {
	if e.self != nil && e.cfg.Prediction {
		for _, a := range e.pendingAngles {
			if a.Seq > e.appliedAngle {
				e.self.ApplyAngle(a)
				e.appliedAngle = a.Seq
			}
		}
		for _, in := range e.pendingInputs {
			if in.Seq > e.appliedInput {
				e.self.ApplyInput(in, e.mv)
				e.appliedInput = in.Seq
			}
		}
		if e.self.Alive {
			e.self.Step(e.mv)
		}
	}
	dims := e.cfg.Match.Dimensions()
	for id, pr := range e.projectiles {
		pr.Move()
		if game.IsOutOfBounds(pr.Position, dims) {
			delete(e.projectiles, id)
		}
	}
}

// Input toggles thrust and sends it as the next movement command.
func (e *Engine) Input(drive bool) error {
	return e.input(game.InputCommand{Drive: drive})
}

// Steer sends a legacy directional movement command.
func (e *Engine) Steer(keys game.Direction) error {
	if keys == 0 {
		return nil
	}
	return e.input(game.InputCommand{Keys: keys})
}

func (e *Engine) input(in game.InputCommand) error {
	if !e.canAct() {
		return nil
	}
	e.inputSeq++
	in.Seq = e.inputSeq
	if e.cfg.Prediction {
		if len(e.pendingInputs) >= maxPendingInputs {
			e.pendingInputs = e.pendingInputs[1:]
		}
		e.pendingInputs = append(e.pendingInputs, in)
		e.self.ApplyInput(in, e.mv)
		e.appliedInput = in.Seq
	}
	return e.sender.SendCommand(game.Command{Kind: game.CmdInput, Input: in}.String())
}

// Aim turns the ship towards a map coordinate.
func (e *Engine) Aim(target game.Vector) error {
	if !e.canAct() {
		return nil
	}
	e.angleSeq++
	cmd := game.Command{Kind: game.CmdAim, Aim: game.AimCommand{Seq: e.angleSeq, Target: target}}
	if e.cfg.Prediction {
		a := game.AngleCommand{Seq: e.angleSeq, Angle: game.AngleBetweenPoints(e.self.Position, target)}
		if len(e.pendingAngles) >= maxPendingInputs {
			e.pendingAngles = e.pendingAngles[1:]
		}
		e.pendingAngles = append(e.pendingAngles, a)
		e.self.ApplyAngle(a)
		e.appliedAngle = a.Seq
	}
	return e.sender.SendCommand(cmd.String())
}

// Fire shoots towards a map coordinate. The projectile appears once the
// server announces it.
func (e *Engine) Fire(target game.Vector) error {
	if !e.canAct() {
		return nil
	}
	return e.sender.SendCommand(game.Command{Kind: game.CmdFire, Fire: game.FireCommand{Target: target}}.String())
}

// Ping sends the current time so the server echo measures latency.
func (e *Engine) Ping() error {
	ms := strconv.FormatInt(e.now().UnixMilli(), 10)
	return e.sender.SendCommand(game.Command{Kind: game.CmdPing, Ping: ms}.String())
}

func (e *Engine) canAct() bool {
	return e.self != nil && e.self.Alive && !e.ended
}

// SetPrediction switches client-side prediction. With prediction off the
// local ship follows the snapshots like a remote one.
func (e *Engine) SetPrediction(on bool) {
	if e.cfg.Prediction == on {
		return
	}
	e.cfg.Prediction = on
	e.pendingInputs = nil
	e.pendingAngles = nil
	e.appliedInput, e.ackedInput = e.inputSeq, e.inputSeq
	e.appliedAngle, e.ackedAngle = e.angleSeq, e.angleSeq
}

// SetInterpolation switches between interpolating remotes and snapping them
// to the later snapshot.
func (e *Engine) SetInterpolation(on bool) {
	e.cfg.Interpolation = on
}

// reconcile snaps the local ship to the server state for the newest
// acknowledged input and drops the inputs the server has already applied.
// The rest are replayed by the next PhysicsStep.
func (e *Engine) reconcile(s game.PlayerSnapshot) {
	if ack := s.LastInputSeq; ack > e.ackedInput {
		idx := -1
		for i, in := range e.pendingInputs {
			if in.Seq == ack {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0:
			e.pendingInputs = e.pendingInputs[idx+1:]
			e.snapMotion(s)
			e.appliedInput = ack
		case len(e.pendingInputs) == 0 || ack >= e.pendingInputs[len(e.pendingInputs)-1].Seq:
			e.pendingInputs = e.pendingInputs[:0]
			e.snapMotion(s)
			e.appliedInput = max(e.appliedInput, ack)
		}
		e.ackedInput = ack
	}

	if ack := s.LastAngleSeq; ack > e.ackedAngle {
		idx := -1
		for i, a := range e.pendingAngles {
			if a.Seq == ack {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0:
			e.pendingAngles = e.pendingAngles[idx+1:]
			e.self.Rotation = s.Rotation
			e.appliedAngle = ack
		case len(e.pendingAngles) == 0 || ack >= e.pendingAngles[len(e.pendingAngles)-1].Seq:
			e.pendingAngles = e.pendingAngles[:0]
			e.self.Rotation = s.Rotation
			e.appliedAngle = max(e.appliedAngle, ack)
		}
		e.ackedAngle = ack
	}
}

func (e *Engine) snapMotion(s game.PlayerSnapshot) {
	e.self.Position = s.Position
	if s.HasMotion {
		e.self.Velocity = s.Velocity
		e.self.Driving = s.Driving
	}
}

// interpolate places remote ships, and the local one without prediction,
// at renderTime between the two bracketing snapshots. Without a bracket
// nothing moves.
func (e *Engine) interpolate(now time.Time) {
	latest, ok := e.snapshots.Latest()
	if !ok {
		return
	}
	renderTime := float64(latest.Time) +
		float64(now.Sub(e.receivedAt))/float64(time.Millisecond) -
		float64(e.cfg.InterpolationOffset)/float64(time.Millisecond)
	from, to, t, ok := e.snapshots.Bracket(renderTime)
	if !ok {
		return
	}
	for id, p := range e.remotes {
		e.place(p, id, from, to, t)
	}
	if e.self != nil && !e.cfg.Prediction {
		e.place(e.self, e.selfID, from, to, t)
	}
}

func (e *Engine) place(p *game.Player, id string, from, to game.DecodedSnapshot, t float64) {
	a, okA := from.Players[id]
	b, okB := to.Players[id]
	if !okA || !okB {
		return
	}
	if e.cfg.Interpolation {
		p.Position = game.VectorLerp(a.Position, b.Position, t)
		p.Rotation = game.LerpAngle(a.Rotation, b.Rotation, t)
	} else {
		p.Position = b.Position
		p.Rotation = b.Rotation
	}
	p.Velocity = b.Velocity
	p.Driving = b.Driving
}

func (e *Engine) logf(format string, args ...any) {
	log.Printf("[predict %s] "+format, append([]any{e.selfID}, args...)...)
}
