package game

import "math"

// Circle is a bounding circle placed at Center.
type Circle struct {
	Center Vector
	Radius float64
}

// OrientedBox is a rectangle centred on Center and rotated by Angle.
// HalfLength runs along the heading, HalfWidth across it.
type OrientedBox struct {
	Center     Vector
	HalfLength float64
	HalfWidth  float64
	Angle      float64
}

// BoundingRadius is the radius of the circle enclosing the box.
func (b OrientedBox) BoundingRadius() float64 {
	return math.Hypot(b.HalfLength, b.HalfWidth)
}

// CheckCollision checks if two circles overlap
func CheckCollision(a, b Circle) bool {
	dx := b.Center.X - a.Center.X
	dy := b.Center.Y - a.Center.Y
	radSum := a.Radius + b.Radius
	return dx*dx+dy*dy <= radSum*radSum
}

// CheckCircleBoxCollision tests a circle against an oriented box by moving
// the circle centre into the box frame and measuring the distance to the
// closest point on the box.
func CheckCircleBoxCollision(c Circle, b OrientedBox) bool {
	dx := c.Center.X - b.Center.X
	dy := c.Center.Y - b.Center.Y
	cosR := math.Cos(-b.Angle)
	sinR := math.Sin(-b.Angle)
	lx := dx*cosR - dy*sinR
	ly := dx*sinR + dy*cosR

	ex := lx - Clamp(lx, -b.HalfLength, b.HalfLength)
	ey := ly - Clamp(ly, -b.HalfWidth, b.HalfWidth)
	return ex*ex+ey*ey <= c.Radius*c.Radius
}
