package game

import "math"

// Pathway is a static pair of linked wormholes.
type Pathway struct {
	ID    string
	Color int
	A     Vector
	B     Vector
}

// WormholeA is the hitbox of the first endpoint.
func (p *Pathway) WormholeA() Circle {
	return Circle{Center: p.A, Radius: WormholeRadius}
}

// WormholeB is the hitbox of the second endpoint.
func (p *Pathway) WormholeB() Circle {
	return Circle{Center: p.B, Radius: WormholeRadius}
}

// Exit returns the endpoint opposite to the one the circle touches.
func (p *Pathway) Exit(c Circle) (Vector, bool) {
	switch {
	case CheckCollision(c, p.WormholeA()):
		return p.B, true
	case CheckCollision(c, p.WormholeB()):
		return p.A, true
	}
	return Vector{}, false
}

// Teleport moves the body to exit, pushed along its direction of travel by
// its speed plus WormholeExitNudge so it does not land on a wormhole again.
// A body at rest is pushed along its heading.
func Teleport(b *Body, exit Vector, mv Movement) {
	speed := b.Velocity.Len()
	var dir Vector
	if speed > 0 {
		dir = b.Velocity.Scale(1 / speed)
	} else {
		dir = Vector{X: math.Cos(b.Rotation), Y: math.Sin(b.Rotation)}
	}
	b.Position = exit.Add(dir.Scale(speed + WormholeExitNudge))
	b.ClampToMap(mv)
}

// ToInfo converts to protocol state
func (p *Pathway) ToInfo() PathwayInfo {
	return PathwayInfo{ID: p.ID, Color: p.Color, WormholeA: p.A, WormholeB: p.B}
}
