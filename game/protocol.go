package game

import "encoding/json"

// Server -> client event types
const (
	EvInitialState       = "initial-game-state"
	EvPlayerConnected    = "player-connected"
	EvPlayerDisconnected = "player-disconnected"
	EvPlayerReady        = "player-ready"
	EvServerUpdate       = "server-update"
	EvProjectileCreated  = "projectile-created"
	EvProjectileDestroy  = "projectile-destroyed"
	EvPickupSpawned      = "pickup-spawned"
	EvPickupTaken        = "pickup-taken"
	EvPlayerShot         = "player-shot"
	EvCountdown          = "game-start-countdown"
	EvGameEnd            = "game-end"
	EvMessage            = "message"
)

// Envelope wraps all outgoing events with a type field
type Envelope struct {
	T    string `json:"t" msgpack:"t"`
	Data any    `json:"d,omitempty" msgpack:"d,omitempty"`
}

// InEnvelope is the receiving side of Envelope; Data is decoded per type.
type InEnvelope struct {
	T    string          `json:"t"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Sender delivers events to one connection. Implementations must not block:
// a slow peer drops events instead of stalling the match. Send runs while
// the match holds its delivery lock and must not call back into the match.
type Sender interface {
	Send(Envelope)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(Envelope)

func (f SenderFunc) Send(e Envelope) { f(e) }

// PlayerInfo is the full description of a player sent on join.
type PlayerInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Color        int     `json:"color"`
	Slot         int     `json:"slot"`
	Position     Vector  `json:"position"`
	Rotation     float64 `json:"rotation"`
	Health       int     `json:"health"`
	ShieldPoints int     `json:"shieldPoints"`
	Alive        bool    `json:"isAlive"`
	Ready        bool    `json:"isReady"`
}

// PathwayInfo describes a wormhole pair.
type PathwayInfo struct {
	ID        string `json:"id"`
	Color     int    `json:"color"`
	WormholeA Vector `json:"wormholeAPosition"`
	WormholeB Vector `json:"wormholeBPosition"`
}

// PickupInfo is the pickup-spawned payload.
type PickupInfo struct {
	ID       string     `json:"id"`
	Type     PickupType `json:"type"`
	Position Vector     `json:"position"`
}

// ProjectileInfo is the projectile-created payload.
type ProjectileInfo struct {
	ID               string  `json:"id"`
	PlayerID         string  `json:"playerId"`
	StartingPosition Vector  `json:"startingPosition"`
	Angle            float64 `json:"angle"`
	Velocity         float64 `json:"velocity"`
	Damage           int     `json:"damage"`
}

// InitialGameState is sent to a player right after joining.
type InitialGameState struct {
	Players     []PlayerInfo     `json:"players"`
	Pathways    []PathwayInfo    `json:"pathways"`
	Pickups     []PickupInfo     `json:"pickups"`
	Projectiles []ProjectileInfo `json:"projectiles"`
}

// PlayerShot reports the state of a player after a hit.
type PlayerShot struct {
	ID           string `json:"id"`
	Health       int    `json:"health"`
	ShieldPoints int    `json:"shieldPoints"`
}

// PickupTaken reports which player consumed a pickup.
type PickupTaken struct {
	ID       string `json:"id"`
	PlayerID string `json:"playerId"`
}

// IDMsg carries a bare entity id (disconnect, ready, projectile destroyed).
type IDMsg struct {
	ID string `json:"id"`
}

// GameEnd names the winner; empty when the match was abandoned.
type GameEnd struct {
	Winner string `json:"winner"`
}

// SnapshotFrame is the binary (msgpack) form of a server-update event.
type SnapshotFrame struct {
	T    string   `msgpack:"t"`
	Data Snapshot `msgpack:"d"`
}
