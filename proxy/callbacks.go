package proxy

import (
	"sync"

	"github.com/google/uuid"

	"github.com/neuronav/remoteplot/wire"
)

// CallbackFunc is client-side logic the worker can invoke by key.
type CallbackFunc func(args []wire.Value, kwargs map[string]wire.Value)

// callbackRegistry maps registration keys to client functions. Only the key
// ever crosses the wire; the worker sends it back inside a callback notice
// when its engine needs the function invoked.
type callbackRegistry struct {
	mu        sync.Mutex
	callbacks map[string]CallbackFunc
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{callbacks: make(map[string]CallbackFunc)}
}

// register stores fn under a fresh key and returns the key.
func (r *callbackRegistry) register(fn CallbackFunc) string {
	key := uuid.NewString()
	r.mu.Lock()
	r.callbacks[key] = fn
	r.mu.Unlock()
	return key
}

func (r *callbackRegistry) lookup(key string) CallbackFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callbacks[key]
}
