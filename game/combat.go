package game

import "math"

// ApplyDamage applies one hit to a player and returns true if they died.
// A shield lets only factor of the hit through and loses one point per
// hit whatever the damage. Dead players take no damage.
func ApplyDamage(p *Player, damage int, factor float64) bool {
	if !p.Alive {
		return false
	}
	if p.ShieldPoints > 0 {
		damage = int(math.Round(float64(damage) * factor))
		p.ShieldPoints--
	}
	p.Health -= damage
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		p.Driving = false
		p.ClearBuffers()
		return true
	}
	return false
}

// ApplyPickup consumes a pickup if the player can use it and reports
// whether it was taken.
func ApplyPickup(p *Player, t PickupType, heal, shield int) bool {
	if !p.CanConsume(t) {
		return false
	}
	switch t {
	case PickupHealth:
		p.Health = min(p.Health+heal, PlayerMaxHealth)
	case PickupShield:
		p.ShieldPoints = shield
	}
	return true
}
