package game

import (
	"math"

	"github.com/google/uuid"
)

// Vector is a 2D point or displacement in map coordinates.
type Vector struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Add returns v+o.
func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y} }

// Scale returns v*s.
func (v Vector) Scale(s float64) Vector { return Vector{v.X * s, v.Y * s} }

// Len returns the Euclidean length of v.
func (v Vector) Len() float64 { return math.Hypot(v.X, v.Y) }

// NewID returns a random UUID string used for every entity id.
func NewID() string {
	return uuid.NewString()
}

// AngleBetweenPoints returns the heading in radians from a to b.
func AngleBetweenPoints(a, b Vector) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// Lerp interpolates from→to by t clamped to [0,1]. A NaN or infinite t
// degrades to 0 so garbage factors never reach a position.
func Lerp(from, to, t float64) float64 {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		t = 0
	}
	t = Clamp(t, 0, 1)
	return from + t*(to-from)
}

// VectorLerp is the component-wise Lerp.
func VectorLerp(from, to Vector, t float64) Vector {
	return Vector{X: Lerp(from.X, to.X, t), Y: Lerp(from.Y, to.Y, t)}
}

// ClampToBounds keeps an entity with the given half extents fully inside
// the map. clampedX / clampedY report which axes were corrected.
func ClampToBounds(pos, half, dims Vector) (out Vector, clampedX, clampedY bool) {
	out = pos
	if out.X < half.X {
		out.X, clampedX = half.X, true
	} else if out.X > dims.X-half.X {
		out.X, clampedX = dims.X-half.X, true
	}
	if out.Y < half.Y {
		out.Y, clampedY = half.Y, true
	} else if out.Y > dims.Y-half.Y {
		out.Y, clampedY = dims.Y-half.Y, true
	}
	return out, clampedX, clampedY
}

// IsOutOfBounds reports whether pos lies strictly outside the map.
// A position exactly on an edge is still in bounds.
func IsOutOfBounds(pos, dims Vector) bool {
	return pos.X < 0 || pos.X > dims.X || pos.Y < 0 || pos.Y > dims.Y
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(a, b Vector) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// NormalizeAngle wraps angle to [-PI, PI]. NaN and infinities give 0.
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	return math.Remainder(a, 2*math.Pi)
}

// LerpAngle interpolates between two angles taking the short path
func LerpAngle(from, to, t float64) float64 {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		t = 0
	}
	diff := NormalizeAngle(to - from)
	return from + diff*Clamp(t, 0, 1)
}
