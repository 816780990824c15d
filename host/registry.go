// Package host implements the worker side of the rendering proxy: the
// object reference registry, the per-layer call dispatcher, the render
// coalescer, and the socket-serving application that ties them to a client
// process.
package host

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

// Registry maps opaque object references to native renderer objects. It is
// the only place native objects are held by ID; proxies on the client side
// only ever see the reference value. IDs are monotonic and never reused.
type Registry struct {
	mu      sync.Mutex
	nextID  atomic.Uint64
	objects map[wire.ObjectRef]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[wire.ObjectRef]any)}
}

// Add registers a native object and returns its freshly minted reference.
func (r *Registry) Add(kind wire.RefKind, obj any) wire.ObjectRef {
	n := r.nextID.Add(1)
	ref := wire.ObjectRef{Kind: kind, ID: fmt.Sprintf("<%s %d>", kind, n)}

	r.mu.Lock()
	r.objects[ref] = obj
	r.mu.Unlock()
	return ref
}

// Resolve returns the native object for a reference.
func (r *Registry) Resolve(ref wire.ObjectRef) (any, error) {
	r.mu.Lock()
	obj, ok := r.objects[ref]
	r.mu.Unlock()
	if !ok {
		return nil, &wire.RemoteError{
			Code:    wire.ErrCodeUnknownHandle,
			Message: fmt.Sprintf("no object registered for %s", ref),
		}
	}
	return obj, nil
}

// ResolveActor resolves a reference that must name an actor.
func (r *Registry) ResolveActor(ref wire.ObjectRef) (render.Actor, error) {
	obj, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	a, ok := obj.(render.Actor)
	if !ok {
		return nil, &wire.RemoteError{
			Code:    wire.ErrCodeUnknownHandle,
			Message: fmt.Sprintf("%s is not an actor", ref),
		}
	}
	return a, nil
}

// ResolveMesh resolves a reference that must name uploaded polydata.
func (r *Registry) ResolveMesh(ref wire.ObjectRef) (render.MeshData, error) {
	obj, err := r.Resolve(ref)
	if err != nil {
		return render.MeshData{}, err
	}
	m, ok := obj.(render.MeshData)
	if !ok {
		return render.MeshData{}, &wire.RemoteError{
			Code:    wire.ErrCodeUnknownHandle,
			Message: fmt.Sprintf("%s is not polydata", ref),
		}
	}
	return m, nil
}

// Release drops a reference. Releasing an unknown reference is a no-op;
// the client may race a release against worker teardown.
func (r *Registry) Release(ref wire.ObjectRef) {
	r.mu.Lock()
	delete(r.objects, ref)
	r.mu.Unlock()
}

// Len reports the number of live references.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}
