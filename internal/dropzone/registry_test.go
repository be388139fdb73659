package dropzone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("A", Rect{X: 0, Y: 0, W: 100, H: 100})
	r.Register("B", Rect{X: 100, Y: 0, W: 100, H: 100})

	id, ok := r.Resolve(Point{X: 50, Y: 50})
	assert.True(t, ok)
	assert.Equal(t, "A", id)

	id, ok = r.Resolve(Point{X: 150, Y: 50})
	assert.True(t, ok)
	assert.Equal(t, "B", id)

	_, ok = r.Resolve(Point{X: 250, Y: 50})
	assert.False(t, ok)
}

func TestResolveInclusiveEdges(t *testing.T) {
	r := NewRegistry()
	r.Register("A", Rect{X: 0, Y: 0, W: 100, H: 100})

	for _, p := range []Point{{0, 0}, {100, 0}, {0, 100}, {100, 100}} {
		id, ok := r.Resolve(p)
		assert.True(t, ok, "corner %v", p)
		assert.Equal(t, "A", id)
	}
}

func TestOverlapFirstRegisteredWins(t *testing.T) {
	r := NewRegistry()
	r.Register("A", Rect{X: 0, Y: 0, W: 100, H: 100})
	r.Register("B", Rect{X: 0, Y: 0, W: 100, H: 100}) // stale overlap

	id, ok := r.Resolve(Point{X: 10, Y: 10})
	assert.True(t, ok)
	assert.Equal(t, "A", id)
}

func TestReRegisterKeepsSlot(t *testing.T) {
	r := NewRegistry()
	r.Register("A", Rect{X: 0, Y: 0, W: 10, H: 10})
	r.Register("B", Rect{X: 0, Y: 0, W: 100, H: 100})
	// Layout change: A now also covers the origin. A keeps its first slot.
	r.Register("A", Rect{X: 0, Y: 0, W: 100, H: 100})

	id, ok := r.Resolve(Point{X: 50, Y: 50})
	assert.True(t, ok)
	assert.Equal(t, "A", id)
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("A", Rect{X: 0, Y: 0, W: 100, H: 100})
	r.Unregister("A")
	r.Unregister("A") // second unregister is a no-op

	_, ok := r.Resolve(Point{X: 50, Y: 50})
	assert.False(t, ok)
}
