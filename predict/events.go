package predict

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"spaceshooter/game"
)

// apply updates the local mirror from one discrete server event.
func (e *Engine) apply(env game.InEnvelope, now time.Time) {
	var err error
	switch env.T {
	case game.EvInitialState:
		var s game.InitialGameState
		if err = json.Unmarshal(env.Data, &s); err == nil {
			e.reset(s)
		}
	case game.EvPlayerConnected:
		var p game.PlayerInfo
		if err = json.Unmarshal(env.Data, &p); err == nil {
			e.addPlayer(p)
		}
	case game.EvPlayerDisconnected:
		var m game.IDMsg
		if err = json.Unmarshal(env.Data, &m); err == nil {
			e.removePlayer(m.ID)
		}
	case game.EvPlayerReady:
		var m game.IDMsg
		if err = json.Unmarshal(env.Data, &m); err == nil {
			if p := e.player(m.ID); p != nil {
				p.Ready = true
			}
		}
	case game.EvProjectileCreated:
		var info game.ProjectileInfo
		if err = json.Unmarshal(env.Data, &info); err == nil {
			e.projectiles[info.ID] = game.NewProjectileFromInfo(info)
		}
	case game.EvProjectileDestroy:
		var m game.IDMsg
		if err = json.Unmarshal(env.Data, &m); err == nil {
			delete(e.projectiles, m.ID)
		}
	case game.EvPickupSpawned:
		var info game.PickupInfo
		if err = json.Unmarshal(env.Data, &info); err == nil {
			e.pickups[info.ID] = &game.Pickup{ID: info.ID, Type: info.Type, Position: info.Position}
		}
	case game.EvPickupTaken:
		var m game.PickupTaken
		if err = json.Unmarshal(env.Data, &m); err == nil {
			if pk, ok := e.pickups[m.ID]; ok {
				if p := e.player(m.PlayerID); p != nil {
					game.ApplyPickup(p, pk.Type, e.cfg.Match.HealAmount, e.cfg.Match.ShieldPoints)
				}
				delete(e.pickups, m.ID)
			}
		}
	case game.EvPlayerShot:
		var m game.PlayerShot
		if err = json.Unmarshal(env.Data, &m); err == nil {
			if p := e.player(m.ID); p != nil {
				p.Health = m.Health
				p.ShieldPoints = m.ShieldPoints
				if p.Health <= 0 {
					p.Alive = false
					p.Driving = false
				}
			}
		}
	case game.EvCountdown:
		err = json.Unmarshal(env.Data, &e.countdown)
		if err == nil && e.countdown == -1 {
			for _, p := range e.allPlayers() {
				p.Ready = false
			}
		}
	case game.EvGameEnd:
		var m game.GameEnd
		if err = json.Unmarshal(env.Data, &m); err == nil {
			e.ended = true
			e.winner = m.Winner
		}
	case game.EvMessage:
		var msg string
		if err = json.Unmarshal(env.Data, &msg); err == nil {
			e.handleMessage(msg, now)
		}
	}
	if err != nil {
		e.logf("bad %s event: %v", env.T, err)
	}
}

// handleMessage reads ping echoes.
func (e *Engine) handleMessage(msg string, now time.Time) {
	ms, ok := strings.CutPrefix(msg, "p.")
	if !ok {
		return
	}
	sent, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return
	}
	e.netPing = now.Sub(time.UnixMilli(sent))
	e.netLatency = e.netPing / 2
}

func (e *Engine) reset(s game.InitialGameState) {
	e.self = nil
	clear(e.remotes)
	e.order = e.order[:0]
	clear(e.projectiles)
	clear(e.pickups)
	e.snapshots.Clear()
	e.pendingInputs = e.pendingInputs[:0]
	e.pendingAngles = e.pendingAngles[:0]
	e.inputSeq, e.appliedInput, e.ackedInput = 0, 0, 0
	e.angleSeq, e.appliedAngle, e.ackedAngle = 0, 0, 0
	e.ended = false
	e.winner = ""
	e.countdown = -1

	for _, p := range s.Players {
		e.addPlayer(p)
	}
	e.pathways = append(e.pathways[:0], s.Pathways...)
	for _, pk := range s.Pickups {
		e.pickups[pk.ID] = &game.Pickup{ID: pk.ID, Type: pk.Type, Position: pk.Position}
	}
	for _, pr := range s.Projectiles {
		e.projectiles[pr.ID] = game.NewProjectileFromInfo(pr)
	}
}

func (e *Engine) addPlayer(info game.PlayerInfo) {
	p := game.NewPlayer(info.ID, info.Name, info.Color, info.Slot, info.Position)
	p.Rotation = info.Rotation
	p.Health = info.Health
	p.ShieldPoints = info.ShieldPoints
	p.Alive = info.Alive
	p.Ready = info.Ready
	if info.ID == e.selfID {
		e.self = p
		return
	}
	if _, ok := e.remotes[info.ID]; !ok {
		e.order = append(e.order, info.ID)
	}
	e.remotes[info.ID] = p
}

func (e *Engine) removePlayer(id string) {
	if id == e.selfID {
		e.self = nil
		return
	}
	delete(e.remotes, id)
	for i, o := range e.order {
		if o == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Engine) player(id string) *game.Player {
	if id == e.selfID {
		return e.self
	}
	return e.remotes[id]
}

func (e *Engine) allPlayers() []*game.Player {
	out := make([]*game.Player, 0, len(e.remotes)+1)
	if e.self != nil {
		out = append(out, e.self)
	}
	for _, id := range e.order {
		out = append(out, e.remotes[id])
	}
	return out
}

// Self returns the local ship, or false before initial-game-state.
func (e *Engine) Self() (game.PlayerInfo, bool) {
	if e.self == nil {
		return game.PlayerInfo{}, false
	}
	return e.self.ToInfo(), true
}

// Players returns every known ship, local first then remotes in join order.
func (e *Engine) Players() []game.PlayerInfo {
	ps := e.allPlayers()
	out := make([]game.PlayerInfo, len(ps))
	for i, p := range ps {
		out[i] = p.ToInfo()
	}
	return out
}

// Projectiles returns the mirrored projectiles.
func (e *Engine) Projectiles() []game.ProjectileInfo {
	out := make([]game.ProjectileInfo, 0, len(e.projectiles))
	for _, pr := range e.projectiles {
		out = append(out, pr.ToInfo())
	}
	return out
}

// Pickups returns the mirrored pickups.
func (e *Engine) Pickups() []game.PickupInfo {
	out := make([]game.PickupInfo, 0, len(e.pickups))
	for _, pk := range e.pickups {
		out = append(out, pk.ToInfo())
	}
	return out
}

// Pathways returns the static wormhole pairs of the match.
func (e *Engine) Pathways() []game.PathwayInfo { return e.pathways }

// Countdown returns the last countdown value, -1 when none is running.
func (e *Engine) Countdown() int { return e.countdown }

// Ended reports whether game-end arrived and who won.
func (e *Engine) Ended() (bool, string) { return e.ended, e.winner }

// Latency returns the last measured round trip and one-way estimate.
func (e *Engine) Latency() (ping, oneWay time.Duration) { return e.netPing, e.netLatency }
