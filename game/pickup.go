package game

// PickupType distinguishes the pickup effects.
type PickupType string

const (
	PickupHealth PickupType = "health"
	PickupShield PickupType = "shield"
)

// Pickup is a collectable that stays on the map until someone uses it.
type Pickup struct {
	ID       string
	Type     PickupType
	Position Vector
}

// Circle derives the hitbox from the position.
func (p *Pickup) Circle() Circle {
	return Circle{Center: p.Position, Radius: PickupRadius}
}

// ToInfo converts to protocol state
func (p *Pickup) ToInfo() PickupInfo {
	return PickupInfo{ID: p.ID, Type: p.Type, Position: p.Position}
}
