package game

import (
	"cmp"
	"math"
	"slices"
)

// Direction is a bitmask of legacy directional keys.
type Direction uint8

const (
	DirLeft Direction = 1 << iota
	DirRight
	DirUp
	DirDown
)

// Vector returns the unit step of the pressed keys. Opposing keys resolve
// to the one listed last, as in the reference client.
func (d Direction) Vector() Vector {
	var v Vector
	if d&DirLeft != 0 {
		v.X = -1
	}
	if d&DirRight != 0 {
		v.X = 1
	}
	if d&DirUp != 0 {
		v.Y = -1
	}
	if d&DirDown != 0 {
		v.Y = 1
	}
	return v
}

// InputCommand is one sequenced movement input. Keys != 0 selects the
// legacy directional form, otherwise Drive toggles thrust.
type InputCommand struct {
	Seq   uint32
	Keys  Direction
	Drive bool
}

// AngleCommand is one sequenced rotation input.
type AngleCommand struct {
	Seq   uint32
	Angle float64
}

// Movement parameterises the shared ship model.
type Movement struct {
	MaxVelocity float64
	Accel       float64
	Drag        float64
	Radius      float64
	Map         Vector
}

// Body is the kinematic state shared by the server simulation and the
// client predictor. Both sides advance it only through ApplyInput,
// ApplyAngle and one Step per physics tick so they stay in lockstep.
type Body struct {
	Position Vector
	Velocity Vector
	Rotation float64
	Driving  bool
}

// ApplyInput applies one input command. A key command steps the ship
// directly; a thrust command only switches Driving, the motion itself
// happens in Step.
func (b *Body) ApplyInput(in InputCommand, mv Movement) {
	if in.Keys == 0 {
		b.Driving = in.Drive
		return
	}
	step := in.Keys.Vector()
	b.Position = b.Position.Add(step.Scale(mv.MaxVelocity))
	b.ClampToMap(mv)
}

// Step advances the body by one physics tick: thrust or drag, then
// integrate velocity into position and keep it on the map.
func (b *Body) Step(mv Movement) {
	if b.Driving {
		b.Velocity.X += math.Cos(b.Rotation) * mv.Accel
		b.Velocity.Y += math.Sin(b.Rotation) * mv.Accel
		if speed := b.Velocity.Len(); speed > mv.MaxVelocity {
			b.Velocity = b.Velocity.Scale(mv.MaxVelocity / speed)
		}
	} else {
		b.Velocity = b.Velocity.Scale(mv.Drag)
		if b.Velocity.Len() < 0.01 {
			b.Velocity = Vector{}
		}
	}
	b.Position = b.Position.Add(b.Velocity)
	b.ClampToMap(mv)
}

// ApplyAngle sets the heading.
func (b *Body) ApplyAngle(in AngleCommand) {
	b.Rotation = in.Angle
}

// ClampToMap stops the body at the map edge, zeroing the velocity
// component of each axis that hit the wall.
func (b *Body) ClampToMap(mv Movement) {
	pos, cx, cy := ClampToBounds(b.Position, Vector{X: mv.Radius, Y: mv.Radius}, mv.Map)
	b.Position = pos
	if cx {
		b.Velocity.X = 0
	}
	if cy {
		b.Velocity.Y = 0
	}
}

// Player represents a player in the game
type Player struct {
	Body

	ID           string
	Name         string
	Color        int
	Slot         int
	Ready        bool
	Alive        bool
	Health       int
	ShieldPoints int

	LastInputSeq uint32
	LastAngleSeq uint32

	inputs []InputCommand
	angles []AngleCommand
}

// NewPlayer creates a player standing at its spawn slot.
func NewPlayer(id, name string, color, slot int, spawn Vector) *Player {
	return &Player{
		Body:   Body{Position: spawn},
		ID:     id,
		Name:   name,
		Color:  color,
		Slot:   slot,
		Alive:  true,
		Health: PlayerMaxHealth,
	}
}

// Circle derives the hitbox from the current position.
func (p *Player) Circle() Circle {
	return Circle{Center: p.Position, Radius: PlayerRadius}
}

// QueueInput buffers an input for the next physics tick.
func (p *Player) QueueInput(in InputCommand) {
	if len(p.inputs) >= maxBufferedInputs {
		p.inputs = p.inputs[1:]
	}
	p.inputs = append(p.inputs, in)
}

// QueueAngle buffers a rotation for the next physics tick.
func (p *Player) QueueAngle(in AngleCommand) {
	if len(p.angles) >= maxBufferedInputs {
		p.angles = p.angles[1:]
	}
	p.angles = append(p.angles, in)
}

// ProcessInputs replays buffered inputs in sequence order. Anything at or
// below LastInputSeq has already been applied and is skipped.
func (p *Player) ProcessInputs(mv Movement) {
	slices.SortStableFunc(p.inputs, func(a, b InputCommand) int { return cmp.Compare(a.Seq, b.Seq) })
	for _, in := range p.inputs {
		if in.Seq <= p.LastInputSeq {
			continue
		}
		p.ApplyInput(in, mv)
		p.LastInputSeq = in.Seq
	}
	p.inputs = p.inputs[:0]
}

// ProcessAngles is ProcessInputs for rotation commands.
func (p *Player) ProcessAngles() {
	slices.SortStableFunc(p.angles, func(a, b AngleCommand) int { return cmp.Compare(a.Seq, b.Seq) })
	for _, in := range p.angles {
		if in.Seq <= p.LastAngleSeq {
			continue
		}
		p.ApplyAngle(in)
		p.LastAngleSeq = in.Seq
	}
	p.angles = p.angles[:0]
}

// ClearBuffers drops pending inputs without applying them.
func (p *Player) ClearBuffers() {
	p.inputs = nil
	p.angles = nil
}

// PendingInputs reports how many inputs wait for the next tick.
func (p *Player) PendingInputs() int {
	return len(p.inputs)
}

// CanConsume reports whether the player would benefit from a pickup.
func (p *Player) CanConsume(t PickupType) bool {
	if !p.Alive {
		return false
	}
	switch t {
	case PickupHealth:
		return p.Health < PlayerMaxHealth
	case PickupShield:
		return p.ShieldPoints == 0
	}
	return false
}

// ToInfo converts to the join/spawn payload.
func (p *Player) ToInfo() PlayerInfo {
	return PlayerInfo{
		ID:           p.ID,
		Name:         p.Name,
		Color:        p.Color,
		Slot:         p.Slot,
		Position:     p.Position,
		Rotation:     p.Rotation,
		Health:       p.Health,
		ShieldPoints: p.ShieldPoints,
		Alive:        p.Alive,
		Ready:        p.Ready,
	}
}

// ToSnapshot converts to the per-tick snapshot tuple.
func (p *Player) ToSnapshot() PlayerSnapshot {
	return PlayerSnapshot{
		ID:           p.ID,
		Position:     p.Position,
		Rotation:     p.Rotation,
		LastInputSeq: p.LastInputSeq,
		LastAngleSeq: p.LastAngleSeq,
		HasMotion:    true,
		Velocity:     p.Velocity,
		Driving:      p.Driving,
	}
}
