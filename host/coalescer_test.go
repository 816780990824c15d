package host

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescer_ManyRequestsOneRender(t *testing.T) {
	var renders atomic.Int64
	c := NewCoalescer(func() { renders.Add(1) }, 40*time.Millisecond)
	defer c.Stop()

	for i := 0; i < 1000; i++ {
		c.Request()
	}
	time.Sleep(60 * time.Millisecond)

	if got := renders.Load(); got != 1 {
		t.Errorf("expected exactly 1 render, got %d", got)
	}
}

func TestCoalescer_RequestAfterRenderDrawsAgain(t *testing.T) {
	var renders atomic.Int64
	c := NewCoalescer(func() { renders.Add(1) }, 20*time.Millisecond)
	defer c.Stop()

	c.Request()
	time.Sleep(35 * time.Millisecond)
	c.Request()
	time.Sleep(35 * time.Millisecond)

	if got := renders.Load(); got != 2 {
		t.Errorf("expected 2 renders, got %d", got)
	}
}

func TestCoalescer_PauseHoldsRenders(t *testing.T) {
	var renders atomic.Int64
	c := NewCoalescer(func() { renders.Add(1) }, 10*time.Millisecond)
	defer c.Stop()

	c.Pause()
	c.Request()
	time.Sleep(50 * time.Millisecond)
	if got := renders.Load(); got != 0 {
		t.Fatalf("render fired while paused: %d", got)
	}

	c.Resume()
	time.Sleep(50 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("expected the held render after resume, got %d", got)
	}
}

func TestCoalescer_PauseNests(t *testing.T) {
	var renders atomic.Int64
	c := NewCoalescer(func() { renders.Add(1) }, 10*time.Millisecond)
	defer c.Stop()

	c.Pause()
	c.Pause()
	c.Request()
	c.Resume()
	time.Sleep(40 * time.Millisecond)
	if got := renders.Load(); got != 0 {
		t.Fatalf("render fired with one pause still held: %d", got)
	}

	c.Resume()
	time.Sleep(40 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("expected 1 render after final resume, got %d", got)
	}
}

func TestCoalescer_RenderNowBypassesEverything(t *testing.T) {
	var renders atomic.Int64
	c := NewCoalescer(func() { renders.Add(1) }, time.Hour)
	defer c.Stop()

	c.Pause()
	defer c.Resume()

	c.Request()
	c.RenderNow()
	if got := renders.Load(); got != 1 {
		t.Fatalf("RenderNow should draw immediately, got %d renders", got)
	}

	// RenderNow consumed the pending request: nothing further should fire.
	time.Sleep(30 * time.Millisecond)
	if got := renders.Load(); got != 1 {
		t.Errorf("pending request should have been cleared, got %d renders", got)
	}
}

func TestCoalescer_StopReleasesLoop(t *testing.T) {
	c := NewCoalescer(func() {}, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
