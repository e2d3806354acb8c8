package core

// TrailBuffer keeps the last N recorded positions of a body for path
// visualization. Pure ring-buffer semantics: Push is O(1) amortised and the
// oldest entry is evicted on overflow. No interpolation or smoothing.
type TrailBuffer struct {
	buf   []Vec3
	head  int // index of the oldest entry
	count int
}

// NewTrailBuffer constructs a buffer holding up to capacity positions.
// Capacity below 1 is treated as 1.
func NewTrailBuffer(capacity int) *TrailBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TrailBuffer{buf: make([]Vec3, capacity)}
}

// Push appends a position, evicting the oldest when full.
func (t *TrailBuffer) Push(position Vec3) {
	if t.count < len(t.buf) {
		t.buf[(t.head+t.count)%len(t.buf)] = position
		t.count++
		return
	}
	t.buf[t.head] = position
	t.head = (t.head + 1) % len(t.buf)
}

// Len returns the number of recorded positions.
func (t *TrailBuffer) Len() int {
	return t.count
}

// Snapshot returns the recorded positions oldest to newest as a fresh slice.
func (t *TrailBuffer) Snapshot() []Vec3 {
	out := make([]Vec3, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.buf[(t.head+i)%len(t.buf)]
	}
	return out
}
