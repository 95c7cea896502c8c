// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "sync"

// Registry is component A: it tracks the set of devices currently
// visible to the engine and each one's subscription state.
//
// Register/Unregister are idempotent: registering an already-known
// device is a no-op, and unregistering guarantees no residual
// callback fires into the engine afterward (the returned Subscription
// is Cancel()ed exactly once).
type Registry struct {
	mu   sync.Mutex
	subs map[string]Subscription
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

// Register subscribes obs to dev's event streams, with guaranteed
// idempotence per device identity. The subscription is installed with
// after-semantics by the Device implementation itself (the engine
// observes state transitions after the device's own internal handlers
// have completed) — Registry only owns the bookkeeping of who is
// subscribed.
func (r *Registry) Register(dev Device, obs DeviceObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[dev.ID()]; ok {
		return
	}
	r.subs[dev.ID()] = dev.Subscribe(obs)
}

// Unregister fully detaches dev's subscription. No residual callback
// may fire into the engine after Unregister returns.
func (r *Registry) Unregister(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[dev.ID()]
	if !ok {
		return
	}
	delete(r.subs, dev.ID())
	sub.Cancel()
}

// IsRegistered reports whether deviceID currently has a live
// subscription.
func (r *Registry) IsRegistered(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[deviceID]
	return ok
}

// Count returns the number of currently registered devices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
