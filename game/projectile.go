package game

import "math"

// Projectile represents a laser projectile
type Projectile struct {
	ID       string
	PlayerID string
	Damage   int
	Position Vector
	Angle    float64
	Speed    float64
	Velocity Vector // per physics tick
}

// NewProjectile fires from the owner's position towards angle.
func NewProjectile(id string, owner *Player, angle, speed float64, damage int) *Projectile {
	return &Projectile{
		ID:       id,
		PlayerID: owner.ID,
		Damage:   damage,
		Position: owner.Position,
		Angle:    angle,
		Speed:    speed,
		Velocity: Vector{X: speed * math.Cos(angle), Y: speed * math.Sin(angle)},
	}
}

// NewProjectileFromInfo rebuilds a projectile announced by the server.
func NewProjectileFromInfo(info ProjectileInfo) *Projectile {
	return &Projectile{
		ID:       info.ID,
		PlayerID: info.PlayerID,
		Damage:   info.Damage,
		Position: info.StartingPosition,
		Angle:    info.Angle,
		Speed:    info.Velocity,
		Velocity: Vector{X: info.Velocity * math.Cos(info.Angle), Y: info.Velocity * math.Sin(info.Angle)},
	}
}

// Move advances the projectile one physics tick.
func (p *Projectile) Move() {
	p.Position = p.Position.Add(p.Velocity)
}

// Box derives the hitbox from the current position and heading.
func (p *Projectile) Box() OrientedBox {
	return OrientedBox{
		Center:     p.Position,
		HalfLength: ProjectileLength / 2,
		HalfWidth:  ProjectileWidth / 2,
		Angle:      p.Angle,
	}
}

// ToInfo converts to the projectile-created payload.
func (p *Projectile) ToInfo() ProjectileInfo {
	return ProjectileInfo{
		ID:               p.ID,
		PlayerID:         p.PlayerID,
		StartingPosition: p.Position,
		Angle:            p.Angle,
		Velocity:         p.Speed,
		Damage:           p.Damage,
	}
}
