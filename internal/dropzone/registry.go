// Package dropzone resolves drag gesture coordinates to board columns.
package dropzone

import "sync"

type Point struct {
	X, Y float64
}

// Rect is a column's measured bounds in absolute screen coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Contains uses inclusive bounds on all four edges.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W &&
		p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Registry tracks the registered drop zones in registration order.
// Zones never legitimately overlap; when a stale registration makes them,
// the first registered zone wins.
type Registry struct {
	mu    sync.RWMutex
	order []string
	zones map[string]Rect
}

func NewRegistry() *Registry {
	return &Registry{
		zones: make(map[string]Rect),
	}
}

// Register records a column's bounds. Re-registering (layout change)
// replaces the rect but keeps the column's original slot in the order.
func (r *Registry) Register(columnID string, rect Rect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[columnID]; !ok {
		r.order = append(r.order, columnID)
	}
	r.zones[columnID] = rect
}

func (r *Registry) Unregister(columnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[columnID]; !ok {
		return
	}
	delete(r.zones, columnID)
	for i, id := range r.order {
		if id == columnID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Resolve returns the first registered zone containing p. A miss is a
// normal outcome (drop outside every column), not an error.
func (r *Registry) Resolve(p Point) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.zones[id].Contains(p) {
			return id, true
		}
	}
	return "", false
}
