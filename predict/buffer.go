package predict

import "spaceshooter/game"

// SnapshotBuffer keeps the most recent server snapshots in arrival order,
// dropping the oldest once full.
type SnapshotBuffer struct {
	size  int
	snaps []game.DecodedSnapshot
}

// NewSnapshotBuffer creates a buffer holding at most size snapshots.
func NewSnapshotBuffer(size int) *SnapshotBuffer {
	if size < 2 {
		size = 2
	}
	return &SnapshotBuffer{size: size, snaps: make([]game.DecodedSnapshot, 0, size)}
}

// Push appends a snapshot. Snapshots older than the newest one are dropped.
func (b *SnapshotBuffer) Push(s game.DecodedSnapshot) bool {
	if n := len(b.snaps); n > 0 && s.Time < b.snaps[n-1].Time {
		return false
	}
	if len(b.snaps) == b.size {
		copy(b.snaps, b.snaps[1:])
		b.snaps = b.snaps[:b.size-1]
	}
	b.snaps = append(b.snaps, s)
	return true
}

// Len returns the number of buffered snapshots.
func (b *SnapshotBuffer) Len() int { return len(b.snaps) }

// Latest returns the newest snapshot.
func (b *SnapshotBuffer) Latest() (game.DecodedSnapshot, bool) {
	if len(b.snaps) == 0 {
		return game.DecodedSnapshot{}, false
	}
	return b.snaps[len(b.snaps)-1], true
}

// Bracket finds the pair of consecutive snapshots around renderTime (unix
// millis) and the normalised position of renderTime between them.
// ok is false when fewer than two snapshots are buffered or renderTime
// lies outside the buffered range.
func (b *SnapshotBuffer) Bracket(renderTime float64) (from, to game.DecodedSnapshot, t float64, ok bool) {
	for i := len(b.snaps) - 2; i >= 0; i-- {
		a, c := b.snaps[i], b.snaps[i+1]
		if float64(a.Time) <= renderTime && renderTime <= float64(c.Time) {
			span := float64(c.Time - a.Time)
			return a, c, (renderTime - float64(a.Time)) / span, true
		}
	}
	return game.DecodedSnapshot{}, game.DecodedSnapshot{}, 0, false
}

// Clear drops all snapshots.
func (b *SnapshotBuffer) Clear() {
	b.snaps = b.snaps[:0]
}
