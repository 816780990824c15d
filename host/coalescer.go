package host

import (
	"sync"
	"time"
)

// DefaultMinRenderPeriod bounds how often the coalescer draws.
const DefaultMinRenderPeriod = 50 * time.Millisecond

// Coalescer batches redraw requests: any number of Request calls within one
// minimum period produce a single render. Rendering can be paused while a
// batch of mutations is applied and resumed afterwards; RenderNow bypasses
// coalescing for callers that need the draw before continuing.
type Coalescer struct {
	renderFn func()
	period   time.Duration

	needs chan struct{} // capacity 1: the pending-render flag

	mu         sync.Mutex
	pauseDepth int
	resumed    chan struct{} // closed while rendering is allowed

	quit chan struct{}
	done chan struct{}
}

// NewCoalescer starts a coalescer that invokes renderFn at most once per
// period. Stop must be called to release the loop.
func NewCoalescer(renderFn func(), period time.Duration) *Coalescer {
	if period <= 0 {
		period = DefaultMinRenderPeriod
	}
	resumed := make(chan struct{})
	close(resumed)
	c := &Coalescer{
		renderFn: renderFn,
		period:   period,
		needs:    make(chan struct{}, 1),
		resumed:  resumed,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Request flags that a render is needed. Idempotent while one is pending.
func (c *Coalescer) Request() {
	select {
	case c.needs <- struct{}{}:
	default:
	}
}

// RenderNow clears any pending request and draws immediately, regardless of
// the period or the pause gate.
func (c *Coalescer) RenderNow() {
	select {
	case <-c.needs:
	default:
	}
	c.renderFn()
}

// Pause holds off coalesced renders. Calls nest.
func (c *Coalescer) Pause() {
	c.mu.Lock()
	c.pauseDepth++
	if c.pauseDepth == 1 {
		c.resumed = make(chan struct{})
	}
	c.mu.Unlock()
}

// Resume undoes one Pause. Rendering proceeds once all pauses are released.
func (c *Coalescer) Resume() {
	c.mu.Lock()
	if c.pauseDepth > 0 {
		c.pauseDepth--
		if c.pauseDepth == 0 {
			close(c.resumed)
		}
	}
	c.mu.Unlock()
}

// Stop terminates the render loop.
func (c *Coalescer) Stop() {
	close(c.quit)
	<-c.done
}

func (c *Coalescer) gate() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *Coalescer) loop() {
	defer close(c.done)
	timer := time.NewTimer(c.period)
	defer timer.Stop()
	for {
		// Each pass waits out the minimum period before considering another
		// render, so renders are spaced by at least one period.
		select {
		case <-c.quit:
			return
		case <-timer.C:
		}

		select {
		case <-c.quit:
			return
		case <-c.needs:
		}

		select {
		case <-c.quit:
			return
		case <-c.gate():
		}

		c.renderFn()
		timer.Reset(c.period)
	}
}
