package game

import (
	"math"
	"testing"
)

func TestCheckCollision(t *testing.T) {
	// Overlapping circles
	if !CheckCollision(Circle{Vector{0, 0}, 10}, Circle{Vector{15, 0}, 10}) {
		t.Error("circles should collide (overlapping)")
	}

	// Touching circles
	if !CheckCollision(Circle{Vector{0, 0}, 10}, Circle{Vector{20, 0}, 10}) {
		t.Error("circles should collide (touching)")
	}

	// Non-overlapping circles
	if CheckCollision(Circle{Vector{0, 0}, 10}, Circle{Vector{25, 0}, 10}) {
		t.Error("circles should not collide")
	}
}

func TestCheckCircleBoxCollision(t *testing.T) {
	box := OrientedBox{Center: Vector{100, 100}, HalfLength: 7.5, HalfWidth: 2.5}

	tests := []struct {
		name   string
		circle Circle
		angle  float64
		want   bool
	}{
		{"centre inside", Circle{Vector{100, 100}, 1}, 0, true},
		{"along length", Circle{Vector{125, 100}, 20}, 0, true},
		{"beyond length", Circle{Vector{128, 100}, 20}, 0, false},
		{"beside width", Circle{Vector{100, 122}, 20}, 0, true},
		{"beyond width", Circle{Vector{100, 123}, 20}, 0, false},
		// rotated a quarter turn the long axis points along y
		{"rotated along y", Circle{Vector{100, 125}, 20}, math.Pi / 2, true},
		{"rotated beside x", Circle{Vector{123, 100}, 20}, math.Pi / 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := box
			b.Angle = tt.angle
			if got := CheckCircleBoxCollision(tt.circle, b); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundingRadius(t *testing.T) {
	b := OrientedBox{HalfLength: 3, HalfWidth: 4}
	if b.BoundingRadius() != 5 {
		t.Errorf("expected 5, got %f", b.BoundingRadius())
	}
}
