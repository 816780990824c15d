package host

import (
	"errors"
	"fmt"
	"testing"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

func TestRegistry_AddResolve(t *testing.T) {
	r := NewRegistry()
	actor := &render.SoftActor{}

	ref := r.Add(wire.RefActor, actor)
	if ref.Kind != wire.RefActor {
		t.Errorf("kind: got %v", ref.Kind)
	}
	if ref.ID != "<Actor 1>" {
		t.Errorf("id: got %q", ref.ID)
	}

	got, err := r.ResolveActor(ref)
	if err != nil {
		t.Fatalf("ResolveActor: %v", err)
	}
	if got != render.Actor(actor) {
		t.Error("resolved a different object")
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := r.Add(wire.RefActor, &render.SoftActor{})
		if seen[ref.ID] {
			t.Fatalf("duplicate id %q", ref.ID)
		}
		seen[ref.ID] = true
		r.Release(ref)
	}
	if r.Len() != 0 {
		t.Errorf("registry should be empty, has %d entries", r.Len())
	}
}

func TestRegistry_UnknownHandle(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(wire.ObjectRef{Kind: wire.RefActor, ID: "<Actor 99>"})
	if err == nil {
		t.Fatal("expected an error")
	}
	var re *wire.RemoteError
	if !errors.As(err, &re) || re.Code != wire.ErrCodeUnknownHandle {
		t.Errorf("expected ErrCodeUnknownHandle, got %v", err)
	}
}

func TestRegistry_ReleasedHandleIsStale(t *testing.T) {
	r := NewRegistry()
	ref := r.Add(wire.RefActor, &render.SoftActor{})
	r.Release(ref)

	if _, err := r.Resolve(ref); err == nil {
		t.Error("released reference should not resolve")
	}
	// Releasing again must not panic or error.
	r.Release(ref)
}

func TestRegistry_KindMismatch(t *testing.T) {
	r := NewRegistry()
	ref := r.Add(wire.RefPolyData, render.MeshData{Points: []float64{0, 0, 0}})

	if _, err := r.ResolveActor(ref); err == nil {
		t.Error("polydata reference should not resolve as an actor")
	}
	if _, err := r.ResolveMesh(ref); err != nil {
		t.Errorf("ResolveMesh: %v", err)
	}
}

func TestRegistry_ConcurrentAdd(t *testing.T) {
	r := NewRegistry()
	done := make(chan wire.ObjectRef)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				done <- r.Add(wire.RefActor, &render.SoftActor{})
			}
		}()
	}
	seen := make(map[string]bool)
	for i := 0; i < 8*50; i++ {
		ref := <-done
		if seen[ref.ID] {
			t.Fatalf("duplicate id %q under concurrency", ref.ID)
		}
		seen[ref.ID] = true
	}
	if r.Len() != 8*50 {
		t.Errorf("expected %d live references, got %d", 8*50, r.Len())
	}
}

func TestRegistry_RefStrings(t *testing.T) {
	r := NewRegistry()
	a := r.Add(wire.RefActor, &render.SoftActor{})
	m := r.Add(wire.RefPolyData, render.MeshData{})
	if a.String() != "<Actor 1>" || m.String() != "<PolyData 2>" {
		t.Errorf("got %q and %q", a, m)
	}
	if s := fmt.Sprint(a); s != "<Actor 1>" {
		t.Errorf("Sprint: got %q", s)
	}
}
