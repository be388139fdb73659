// Package autoscroll drives container scrolling while a drag gesture
// hovers near a viewport edge.
package autoscroll

import (
	"sync"
	"time"
)

type Direction int

const (
	None Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

type Config struct {
	// EdgeThreshold is the distance from a viewport edge inside which
	// scrolling engages.
	EdgeThreshold float64
	// SpeedZone scales how quickly the multiplier ramps up as the pointer
	// approaches the edge.
	SpeedZone float64
	// BaseStep is the per-frame scroll increment at multiplier 1.0.
	BaseStep      float64
	MinMultiplier float64
	MaxMultiplier float64
	FrameInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		EdgeThreshold: 120,
		SpeedZone:     60,
		BaseStep:      16,
		MinMultiplier: 0.5,
		MaxMultiplier: 2.0,
		FrameInterval: 16 * time.Millisecond,
	}
}

// Controller runs at most one scroll loop at a time. Start is idempotent
// per direction; Stop is always safe and takes effect before the next
// frame is applied.
type Controller struct {
	cfg      Config
	onScroll func(offset float64)

	mu             sync.Mutex
	viewportTop    float64
	viewportHeight float64
	contentHeight  float64
	offset         float64
	dir            Direction
	multiplier     float64
	running        bool
	gen            int
	stop           chan struct{}
}

// New builds a controller. onScroll may be nil; when set it is invoked
// outside the lock with the new offset after every applied frame.
func New(cfg Config, onScroll func(offset float64)) *Controller {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	return &Controller{
		cfg:      cfg,
		onScroll: onScroll,
	}
}

// Config returns the tuning the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetViewport records the scrollable region's geometry. The current offset
// is re-clamped against the new bounds.
func (c *Controller) SetViewport(top, height, contentHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewportTop = top
	c.viewportHeight = height
	c.contentHeight = contentHeight
	if max := c.maxOffsetLocked(); c.offset > max {
		c.offset = max
	}
	if c.offset < 0 {
		c.offset = 0
	}
}

// Pointer feeds one drag-gesture position update. It starts, retunes, or
// stops the scroll loop depending on the pointer's distance from the
// nearer viewport edge.
func (c *Controller) Pointer(y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	distTop := y - c.viewportTop
	distBottom := (c.viewportTop + c.viewportHeight) - y

	dir := None
	dist := 0.0
	if distTop <= distBottom {
		dir, dist = Up, distTop
	} else {
		dir, dist = Down, distBottom
	}
	if dist >= c.cfg.EdgeThreshold {
		c.stopLocked()
		return
	}

	c.multiplier = c.multiplierFor(dist)
	if c.running && c.dir == dir {
		return // already scrolling this way, just retuned the speed
	}
	c.stopLocked()
	c.startLocked(dir)
}

// Stop cancels any running scroll loop. Safe to call at any time: drag
// end, gesture cancellation, teardown.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) Offset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Direction() Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

func (c *Controller) multiplierFor(dist float64) float64 {
	m := (c.cfg.EdgeThreshold - dist) / c.cfg.SpeedZone
	if m < c.cfg.MinMultiplier {
		m = c.cfg.MinMultiplier
	}
	if m > c.cfg.MaxMultiplier {
		m = c.cfg.MaxMultiplier
	}
	return m
}

func (c *Controller) maxOffsetLocked() float64 {
	max := c.contentHeight - c.viewportHeight
	if max < 0 {
		return 0
	}
	return max
}

// startLocked spawns the loop goroutine. Caller holds c.mu.
func (c *Controller) startLocked(dir Direction) {
	c.gen++
	c.dir = dir
	c.running = true
	c.stop = make(chan struct{})
	go c.loop(c.gen, c.stop)
}

// stopLocked invalidates the current generation, so a frame racing with
// the cancellation is discarded rather than applied. Caller holds c.mu.
func (c *Controller) stopLocked() {
	if !c.running {
		return
	}
	c.running = false
	c.dir = None
	close(c.stop)
}

func (c *Controller) loop(gen int, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.step(gen) {
				return
			}
		}
	}
}

// step applies one frame. Returns false when the loop must exit, either
// because it was superseded or because the offset hit a bound.
func (c *Controller) step(gen int) bool {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return false
	}

	delta := c.cfg.BaseStep * c.multiplier
	if c.dir == Up {
		delta = -delta
	}
	max := c.maxOffsetLocked()
	next := c.offset + delta
	clamped := false
	if next <= 0 {
		next = 0
		clamped = c.dir == Up
	}
	if next >= max {
		next = max
		clamped = clamped || c.dir == Down
	}
	changed := next != c.offset
	c.offset = next
	if clamped {
		// Bound reached: stop without overshoot or oscillation.
		c.running = false
		c.dir = None
	}
	cb := c.onScroll
	c.mu.Unlock()

	if changed && cb != nil {
		cb(next)
	}
	return !clamped
}
