// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"sync"

	"go.linkpolicy.dev/engine/internal/logging"
)

// secondaryTracking is the bookkeeping for one base session waiting on
// its profile's SecondaryUUIDs to come up.
type secondaryTracking struct {
	base    ActiveSession
	device  Device
	pending map[string]ActiveSession // secondary profile UUID -> session, stored as soon as it is launched
	subs    []Subscription
}

// SecondaryTracker is component G: it drives VPN secondary-connection
// sequencing for a base session whose profile lists SecondaryUUIDs,
// promoting the base session once every secondary reaches
// SessionStateActivated and failing it if any secondary fails.
type SecondaryTracker struct {
	mu      sync.Mutex
	manager Manager
	store   SettingsStore

	tracking map[string]*secondaryTracking // base session path -> tracking

	// onReady is called once every secondary for a base session has
	// activated; onFailed when any one of them fails.
	onReady  func(base ActiveSession)
	onFailed func(base ActiveSession, reason FailedReason)
}

// NewSecondaryTracker builds the secondary-activation tracker.
func NewSecondaryTracker(manager Manager, store SettingsStore, onReady func(ActiveSession), onFailed func(ActiveSession, FailedReason)) *SecondaryTracker {
	return &SecondaryTracker{
		manager:  manager,
		store:    store,
		tracking: make(map[string]*secondaryTracking),
		onReady:  onReady,
		onFailed: onFailed,
	}
}

// Begin starts (or resumes tracking of) base's secondary connections.
// dev is the device base is bound to, needed so a removal of that
// device can tear the pending secondaries back down. If the profile
// lists no secondaries, onReady fires immediately.
func (t *SecondaryTracker) Begin(base ActiveSession, dev Device) {
	profile := base.Profile()
	uuids := profile.SecondaryUUIDs()
	if len(uuids) == 0 {
		if t.onReady != nil {
			t.onReady(base)
		}
		return
	}

	t.mu.Lock()
	tr := &secondaryTracking{base: base, device: dev, pending: make(map[string]ActiveSession, len(uuids))}
	t.tracking[base.Path()] = tr
	t.mu.Unlock()

	for _, uuid := range uuids {
		t.startSecondary(tr, uuid)
	}
}

func (t *SecondaryTracker) startSecondary(tr *secondaryTracking, uuid string) {
	secProfile, ok := t.store.ProfileByUUID(uuid)
	if !ok {
		t.fail(tr, FailedReasonSecondaryConnectionFailed)
		return
	}

	session, err := t.manager.Activate(secProfile, "", tr.device, SubjectInternal, ActivationTypeFull)
	if err != nil {
		t.fail(tr, FailedReasonSecondaryConnectionFailed)
		return
	}

	t.mu.Lock()
	tr.pending[uuid] = session
	sub := session.Subscribe(secondaryObserverFunc(func(s ActiveSession, newState, oldState SessionState) {
		t.onSecondaryStateChanged(tr, uuid, s, newState)
	}))
	tr.subs = append(tr.subs, sub)
	t.mu.Unlock()
}

func (t *SecondaryTracker) onSecondaryStateChanged(tr *secondaryTracking, uuid string, session ActiveSession, newState SessionState) {
	switch newState {
	case SessionStateActivated:
		t.checkComplete(tr)
	case SessionStateFailed, SessionStateDeactivated:
		t.fail(tr, FailedReasonSecondaryConnectionFailed)
	}
}

func (t *SecondaryTracker) checkComplete(tr *secondaryTracking) {
	t.mu.Lock()
	for _, session := range tr.pending {
		if session == nil || session.State() != SessionStateActivated {
			t.mu.Unlock()
			return
		}
	}
	base := tr.base
	delete(t.tracking, base.Path())
	t.teardownLocked(tr)
	t.mu.Unlock()

	if t.onReady != nil {
		t.onReady(base)
	}
}

func (t *SecondaryTracker) fail(tr *secondaryTracking, reason FailedReason) {
	t.mu.Lock()
	base := tr.base
	if _, stillTracking := t.tracking[base.Path()]; !stillTracking {
		t.mu.Unlock()
		return
	}
	delete(t.tracking, base.Path())
	pending := make([]ActiveSession, 0, len(tr.pending))
	for _, s := range tr.pending {
		if s != nil {
			pending = append(pending, s)
		}
	}
	t.teardownLocked(tr)
	t.mu.Unlock()

	for _, s := range pending {
		if err := t.manager.Deactivate(s, string(reason)); err != nil {
			logging.Warn("secondary tracker: deactivate failed", "path", s.Path(), "error", err)
		}
	}
	if t.onFailed != nil {
		t.onFailed(base, reason)
	}
}

// OnDeviceRemoved tears down any in-flight secondary sequencing whose
// base device was just removed, deactivating whatever secondaries had
// already started rather than leaving them dangling.
func (t *SecondaryTracker) OnDeviceRemoved(dev Device) {
	t.mu.Lock()
	var toFail []*secondaryTracking
	for _, tr := range t.tracking {
		if tr.device.ID() == dev.ID() {
			toFail = append(toFail, tr)
		}
	}
	t.mu.Unlock()

	for _, tr := range toFail {
		t.fail(tr, FailedReasonSecondaryConnectionFailed)
	}
}

func (t *SecondaryTracker) teardownLocked(tr *secondaryTracking) {
	for _, sub := range tr.subs {
		sub.Cancel()
	}
}

// secondaryObserverFunc adapts a plain function to ActiveSessionObserver.
type secondaryObserverFunc func(session ActiveSession, newState, oldState SessionState)

func (f secondaryObserverFunc) OnSessionStateChanged(session ActiveSession, newState, oldState SessionState) {
	f(session, newState, oldState)
}
