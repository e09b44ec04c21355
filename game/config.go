package game

import "time"

const (
	PlayerRadius      = 20.0
	PlayerMaxHealth   = 100
	WormholeRadius    = 5.0
	WormholeExitNudge = 30.0 // clears PlayerRadius+WormholeRadius on exit
	PickupRadius      = 15.0
	ProjectileLength  = 15.0
	ProjectileWidth   = 5.0
	maxBufferedInputs = 256
	maxProjectiles    = 500
)

// MatchConfig holds settings for a match
type MatchConfig struct {
	MapWidth        float64
	MapHeight       float64
	RequiredPlayers int

	PhysicsPeriod    time.Duration
	BroadcastPeriod  time.Duration
	CountdownSeconds int

	// Ship handling, applied once per input command.
	MaxVelocity float64
	Accel       float64
	Drag        float64

	ProjectileSpeed  float64 // pixels per physics tick
	ProjectileDamage int

	PickupCap         int
	PickupCooldownMin int // broadcast ticks
	PickupCooldownMax int
	HealAmount        int
	ShieldPoints      int
	ShieldFactor      float64 // share of damage that gets through a shield

	SpawnSlots []Vector
	Pathways   []PathwaySpec
}

// PathwaySpec describes a static wormhole pair of the arena layout.
type PathwaySpec struct {
	Color int
	A, B  Vector
}

// DefaultMatchConfig returns the tuning of the reference deployment.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MapWidth:         1000,
		MapHeight:        800,
		RequiredPlayers:  2,
		PhysicsPeriod:    15 * time.Millisecond,
		BroadcastPeriod:  45 * time.Millisecond,
		CountdownSeconds: 5,

		MaxVelocity: 2,
		Accel:       0.08,
		Drag:        0.985,

		ProjectileSpeed:  3,
		ProjectileDamage: 5,

		PickupCap:         5,
		PickupCooldownMin: 500,
		PickupCooldownMax: 1200,
		HealAmount:        15,
		ShieldPoints:      3,
		ShieldFactor:      0.2,

		SpawnSlots: []Vector{
			{X: 60, Y: 60},
			{X: 800, Y: 60},
			{X: 60, Y: 600},
			{X: 800, Y: 600},
		},
		Pathways: []PathwaySpec{
			{Color: 0x40ffec, A: Vector{X: 250, Y: 400}, B: Vector{X: 750, Y: 150}},
			{Color: 0xff40b6, A: Vector{X: 500, Y: 650}, B: Vector{X: 900, Y: 400}},
		},
	}
}

// MaxPlayers is the hard seat limit of a match.
func (c MatchConfig) MaxPlayers() int {
	return len(c.SpawnSlots)
}

// Dimensions returns the map size as a vector.
func (c MatchConfig) Dimensions() Vector {
	return Vector{X: c.MapWidth, Y: c.MapHeight}
}

// Movement extracts the parameters the shared ship model needs.
func (c MatchConfig) Movement() Movement {
	return Movement{
		MaxVelocity: c.MaxVelocity,
		Accel:       c.Accel,
		Drag:        c.Drag,
		Radius:      PlayerRadius,
		Map:         c.Dimensions(),
	}
}
