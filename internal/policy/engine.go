// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"sync"

	"go.linkpolicy.dev/engine/internal/clock"
	"go.linkpolicy.dev/engine/internal/logging"
)

// Config bundles every collaborator the engine needs at construction
// time (§6). All fields except Clock and Metrics are required.
type Config struct {
	Manager    Manager
	Store      SettingsStore
	DNS        DNSManager
	Firewall   FirewallManager
	Routes     DefaultRouteManager
	Dispatcher DispatcherHook
	Kernel     KernelHostnameSetter
	Resolver   ReverseResolver
	Scheduler  Scheduler
	Clock      clock.Clock
	Metrics    *Metrics
}

// Engine is the policy engine: it owns no I/O itself and performs
// every side effect through the collaborators given at construction.
// Aside from the three suspension points the scheduler mediates (the
// idle activate-all task, the idle per-device auto-activate task, and
// the reverse-DNS callback), every method below runs to completion
// without yielding. mu guards the engine's own fields; the components
// it delegates to (registry, pending set, retry scheduler, secondary
// tracker, hostname pipeline) carry their own locks.
type Engine struct {
	mu sync.Mutex

	manager    Manager
	store      SettingsStore
	dns        DNSManager
	firewall   FirewallManager
	dispatcher DispatcherHook
	scheduler  Scheduler

	registry     *Registry
	pending      *PendingActions
	autoActivate *AutoActivator
	retry        *RetryScheduler
	arbiter      *DefaultArbiter
	dnsDriver    *DNSUpdateDriver
	secondaries  *SecondaryTracker
	hostname     *HostnamePipeline
	metrics      *Metrics

	topSubs []Subscription

	lastDefaultDevice    [2]Device
	lastActivatingDevice [2]Device

	disposed bool
}

// New wires every component together per §6/§9 and registers the
// engine's observers with each collaborator and already-known device.
func New(cfg Config) *Engine {
	e := &Engine{
		manager:    cfg.Manager,
		store:      cfg.Store,
		dns:        cfg.DNS,
		firewall:   cfg.Firewall,
		dispatcher: cfg.Dispatcher,
		scheduler:  cfg.Scheduler,
		metrics:    cfg.Metrics,
	}

	e.registry = NewRegistry()
	e.autoActivate = NewAutoActivator(cfg.Manager, cfg.Store)
	e.pending = NewPendingActions(cfg.Manager, cfg.Scheduler, e.onPendingDrain)
	e.retry = NewRetryScheduler(cfg.Store, cfg.Scheduler, cfg.Clock)
	e.arbiter = NewDefaultArbiter(cfg.DNS, cfg.Firewall, cfg.Routes)
	e.dnsDriver = NewDNSUpdateDriver(cfg.DNS, e.arbiter, cfg.Manager)
	e.secondaries = NewSecondaryTracker(cfg.Manager, cfg.Store, e.onSecondariesReady, e.onSecondariesFailed)
	e.hostname = NewHostnamePipeline(cfg.Manager, cfg.Store, cfg.DNS, cfg.Kernel, cfg.Resolver, cfg.Dispatcher)

	e.topSubs = append(e.topSubs,
		cfg.Manager.Subscribe(e),
		cfg.Store.Subscribe(e),
		cfg.DNS.Subscribe(e),
		cfg.Firewall.Subscribe(e),
	)

	for _, dev := range cfg.Manager.Devices() {
		e.registry.Register(dev, e)
	}
	for _, session := range cfg.Manager.ActiveSessions() {
		e.subscribeSession(session)
	}

	e.scheduler.ScheduleIdle(e.ActivateAll)
	e.recomputeAll("startup")

	return e
}

// ActivateAll is the idle activate-all task of §5: it runs once at
// startup (and can be re-invoked, e.g. after waking from sleep) and
// schedules every currently-eligible device for auto-activation
// consideration.
func (e *Engine) ActivateAll() {
	e.mu.Lock()
	devices := append([]Device(nil), e.manager.Devices()...)
	e.mu.Unlock()

	for _, dev := range devices {
		e.pending.Schedule(dev)
	}
}

// Dispose cancels the engine's manager, settings-store, DNS and
// firewall subscriptions and stops the hostname pipeline, so an
// in-flight reverse-DNS result (if any) is never applied. Device and
// session subscriptions are not cancelled; the device state-change,
// IP-config and session state-change handlers ignore events once the
// engine is disposed. Calling Dispose again is a no-op.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.disposed = true
	for _, sub := range e.topSubs {
		sub.Cancel()
	}
	e.hostname.Dispose()
}

// onPendingDrain is PendingActions' onDrain callback: it runs the
// auto-activation decision for the device whose debounce window just
// elapsed.
func (e *Engine) onPendingDrain(dev Device) {
	e.mu.Lock()
	disposed := e.disposed
	e.mu.Unlock()
	if disposed {
		return
	}
	// mu is not held across Decide: Manager.Activate may report the new
	// session and device transitions back into the engine before it
	// returns, and those handlers take mu themselves.
	if _, err := e.autoActivate.Decide(dev); err != nil {
		logging.Warn("auto-activation failed", "device", dev.IfaceName(), "error", err)
	}
}

func (e *Engine) onSecondariesReady(base ActiveSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.recomputeAllLocked("secondaries-ready")
}

func (e *Engine) onSecondariesFailed(base ActiveSession, reason FailedReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	_ = e.manager.Deactivate(base, string(reason))
	e.recomputeAllLocked("secondaries-failed")
}

// recomputeAll re-runs default-route/DNS arbitration for both families
// and refreshes the hostname pipeline and observable-property metrics.
func (e *Engine) recomputeAll(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeAllLocked(tag)
}

func (e *Engine) recomputeAllLocked(tag string) {
	v4dev, v6dev := e.dnsDriver.UpdateBoth(true, tag)

	devices := e.manager.Devices()
	e.hostname.Update(v4dev, v6dev)

	changed := !sameDevice(e.lastDefaultDevice[FamilyV4], v4dev) || !sameDevice(e.lastDefaultDevice[FamilyV6], v6dev)
	e.lastDefaultDevice[FamilyV4] = v4dev
	e.lastDefaultDevice[FamilyV6] = v6dev

	e.publishDefaultMetric(FamilyV4, v4dev)
	e.publishDefaultMetric(FamilyV6, v6dev)

	e.updateActivatingDevice(FamilyV4, devices)
	e.updateActivatingDevice(FamilyV6, devices)

	if changed && e.dispatcher != nil {
		e.dispatcher.Call("default-device-changed")
	}
}

// updateActivatingDevice recomputes the activating-device observable
// property for family: the best not-yet-final candidate, reported only
// while it is genuinely still mid-activation rather than already the
// settled default.
func (e *Engine) updateActivatingDevice(family Family, devices []Device) {
	best, session, ok := e.arbiter.routes.BestDevice(devices, family, false, e.lastActivatingDevice[family])

	var activating Device
	if ok && session != nil && session.State() != SessionStateActivated {
		activating = best
	}

	e.lastActivatingDevice[family] = activating
	if e.metrics == nil {
		return
	}
	iface := ""
	if activating != nil {
		iface = activating.IfaceName()
	}
	e.metrics.SetActivatingDevice(family, iface)
}

// sameDevice compares two possibly-nil Device handles by identity
// without relying on interface equality, since a concrete Device
// implementation is free to embed non-comparable fields.
func sameDevice(a, b Device) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

func (e *Engine) publishDefaultMetric(family Family, dev Device) {
	if e.metrics == nil {
		return
	}
	iface := ""
	if dev != nil {
		iface = dev.IfaceName()
	}
	e.metrics.SetDefaultDevice(family, iface)
}

func (e *Engine) subscribeSession(session ActiveSession) {
	session.Subscribe(sessionObserverFunc(func(s ActiveSession, newState, oldState SessionState) {
		e.onSessionStateChanged(s, newState, oldState)
	}))
}

func (e *Engine) onSessionStateChanged(session ActiveSession, newState, oldState SessionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	if newState == SessionStateFailed {
		e.retry.NotifyActivationFailed(session.Profile())
	}
	e.recomputeAllLocked("session-state-changed")
}

// --- DeviceObserver ---

func (e *Engine) OnDeviceStateChanged(dev Device, newState, oldState DeviceState, reason StateChangeReason) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}

	if newState == DeviceStateFailed && deviceStateInRange(oldState, DeviceStatePrepare, DeviceStateActivated) {
		if session, ok := dev.ActiveRequest(); ok {
			if reason == StateChangeReasonNoSecrets {
				e.retry.NotifyBlockedBySecrets(session.Profile())
			} else {
				e.retry.NotifyActivationFailed(session.Profile())
			}
		}
	}

	if newState == DeviceStateSecondaries {
		if session, ok := dev.ActiveRequest(); ok {
			e.mu.Unlock()
			e.secondaries.Begin(session, dev)
			e.mu.Lock()
		}
	}

	if newState == DeviceStateDisconnected || newState == DeviceStateUnavailable {
		e.retry.ResetForDevice(dev)
	}

	e.recomputeAllLocked("device-state-changed")
	e.mu.Unlock()

	if newState == DeviceStateDisconnected {
		e.pending.Schedule(dev)
	}
}

func (e *Engine) OnDeviceIPv4Changed(dev Device, newCfg, oldCfg *IPConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.dnsDriver.UpdateFamily(FamilyV4, true, "ip4-changed")
}

func (e *Engine) OnDeviceIPv6Changed(dev Device, newCfg, oldCfg *IPConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.dnsDriver.UpdateFamily(FamilyV6, true, "ip6-changed")
}

func (e *Engine) OnAutoconnectPermissionChanged(dev Device) {
	if dev.AutoconnectPermitted() {
		e.pending.Schedule(dev)
	}
}

func (e *Engine) OnRecheckAutoActivate(dev Device) {
	e.pending.Schedule(dev)
}

// --- ManagerObserver ---

func (e *Engine) OnDeviceAdded(dev Device) {
	e.mu.Lock()
	e.registry.Register(dev, e)
	e.mu.Unlock()
	e.pending.Schedule(dev)
}

func (e *Engine) OnDeviceRemoved(dev Device) {
	e.mu.Lock()
	e.registry.Unregister(dev)
	e.secondaries.OnDeviceRemoved(dev)
	e.mu.Unlock()
	e.pending.Clear(dev)
	e.recomputeAll("device-removed")
}

func (e *Engine) OnActiveSessionAdded(session ActiveSession) {
	e.subscribeSession(session)
	e.recomputeAll("session-added")
}

func (e *Engine) OnActiveSessionRemoved(session ActiveSession) {
	e.recomputeAll("session-removed")
}

func (e *Engine) OnHostnamePropertyChanged() {
	e.recomputeAll("hostname-property-changed")
}

func (e *Engine) OnSleepingChanged(sleeping bool) {
	if !sleeping {
		e.retry.ResetAll()
		e.ActivateAll()
	}
}

func (e *Engine) OnNetworkingEnabledChanged(enabled bool) {
	if enabled {
		e.retry.ResetAll()
		e.ActivateAll()
	}
}

// --- SettingsObserver ---

func (e *Engine) OnProfileAdded(p Profile)               {}
func (e *Engine) OnProfileUpdated(p Profile, byUser bool) {}
func (e *Engine) OnProfileRemoved(p Profile)              {}
func (e *Engine) OnProfileVisibilityChanged(p Profile)    {}

func (e *Engine) OnSecretAgentRegistered() {
	e.retry.ResetBlockedBySecrets()
	e.ActivateAll()
}

// --- DNSObserver / FirewallObserver ---

func (e *Engine) OnDNSConfigChanged() {}

func (e *Engine) OnFirewallStarted() {
	e.recomputeAll("firewall-started")
}

// sessionObserverFunc adapts a plain function to ActiveSessionObserver.
type sessionObserverFunc func(session ActiveSession, newState, oldState SessionState)

func (f sessionObserverFunc) OnSessionStateChanged(session ActiveSession, newState, oldState SessionState) {
	f(session, newState, oldState)
}
