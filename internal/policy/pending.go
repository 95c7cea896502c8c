// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "sync"

// pendingEntry is the (device, deferred-task-id) pair of §3: at most
// one exists per device at any time.
type pendingEntry struct {
	device       Device
	cancelTask   CancelFunc
	removeMarker func()
}

// PendingActions is component B: it coalesces and debounces
// auto-activation decision requests per device.
type PendingActions struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry

	manager   Manager
	scheduler Scheduler

	// onDrain is invoked, off the deferred task, for exactly the one
	// device whose entry just drained. Wired by the engine to the
	// auto-activation decider.
	onDrain func(Device)
}

// NewPendingActions builds the pending-action set. onDrain is called
// when a device's deferred decision task fires.
func NewPendingActions(manager Manager, scheduler Scheduler, onDrain func(Device)) *PendingActions {
	return &PendingActions{
		entries:   make(map[string]*pendingEntry),
		manager:   manager,
		scheduler: scheduler,
		onDrain:   onDrain,
	}
}

// Schedule requests that dev be considered for auto-activation. It is
// a no-op under any of the conditions in §4.B; otherwise it coalesces
// into (at most) one pending entry and enqueues a deferred task on the
// engine's cooperative task queue.
func (p *PendingActions) Schedule(dev Device) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manager.Sleeping() {
		return
	}
	if dev.State() == DeviceStateUnmanaged {
		return
	}
	if !dev.AutoconnectPermitted() {
		return
	}
	if _, exists := p.entries[dev.ID()]; exists {
		return
	}
	for _, session := range p.manager.ActiveSessions() {
		if bound, ok := session.Device(); ok && bound.ID() == dev.ID() {
			return
		}
	}

	removeMarker := dev.AddPendingAction("autoactivate")
	entry := &pendingEntry{device: dev, removeMarker: removeMarker}
	entry.cancelTask = p.scheduler.ScheduleIdle(func() {
		p.drain(dev.ID())
	})
	p.entries[dev.ID()] = entry
}

// Clear removes dev's pending entry, if any, and cancels its deferred
// task before it can fire.
func (p *PendingActions) Clear(dev Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked(dev.ID())
}

func (p *PendingActions) clearLocked(deviceID string) {
	entry, ok := p.entries[deviceID]
	if !ok {
		return
	}
	delete(p.entries, deviceID)
	entry.cancelTask()
	entry.removeMarker()
}

// drain runs as the deferred task for deviceID: it removes the entry
// and invokes onDrain with the entry's device, unless the entry was
// cleared in the meantime.
func (p *PendingActions) drain(deviceID string) {
	p.mu.Lock()
	entry, ok := p.entries[deviceID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.entries, deviceID)
	entry.removeMarker()
	dev := entry.device
	p.mu.Unlock()

	if p.onDrain != nil {
		p.onDrain(dev)
	}
}

// Has reports whether deviceID currently has a pending entry —
// exercised by the "at-most-one pending per device" invariant test.
func (p *PendingActions) Has(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[deviceID]
	return ok
}

// Count returns the number of currently pending entries.
func (p *PendingActions) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
