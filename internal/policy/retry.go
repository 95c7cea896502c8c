// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"sync"
	"time"

	"go.linkpolicy.dev/engine/internal/clock"
)

// MaxAutoconnectRetries is the number of consecutive auto-activation
// failures a profile tolerates before it is blocked until its next
// reset window.
const MaxAutoconnectRetries = 4

// RetryResetInterval is how long a profile stays blocked after
// exhausting MaxAutoconnectRetries before the shared timer resets it.
const RetryResetInterval = 5 * time.Minute

// realtimeClock is the default clock.Clock used when RetryScheduler is
// not given one explicitly.
type realtimeClock struct{}

func (realtimeClock) Now() time.Time { return time.Now() }

// RetryScheduler is component D: it tracks per-profile retry counts
// and drives the single shared reset timer, rather than one timer per
// profile.
type RetryScheduler struct {
	mu        sync.Mutex
	store     SettingsStore
	scheduler Scheduler
	clock     clock.Clock

	cancelTimer CancelFunc
}

// NewRetryScheduler builds the retry scheduler.
func NewRetryScheduler(store SettingsStore, scheduler Scheduler, c clock.Clock) *RetryScheduler {
	if c == nil {
		c = realtimeClock{}
	}
	return &RetryScheduler{store: store, scheduler: scheduler, clock: c}
}

// NotifyActivationFailed records one auto-activation failure for
// profile. Once RetriesRemaining reaches zero, the profile is blocked
// and a retry-time is stamped so the shared timer knows when to
// reconsider it.
func (r *RetryScheduler) NotifyActivationFailed(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := p.RetriesRemaining()
	if remaining > 0 {
		remaining--
		p.SetRetriesRemaining(remaining)
	}
	if remaining == 0 {
		p.SetRetryTime(r.clock.Now().Add(RetryResetInterval).Unix())
		r.rescheduleLocked()
	}
}

// NotifyBlockedBySecrets marks p blocked for the no-secrets reason,
// distinct from retry exhaustion: it is cleared the moment a secret
// agent registers rather than by the shared timer.
func (r *RetryScheduler) NotifyBlockedBySecrets(p Profile) {
	p.SetBlockedReason(BlockedReasonNoSecrets)
}

// ResetAll restores every profile's retry count and clears its
// retry-time and blocked reason, except that a user-requested block is
// kept — used on networking re-enable and on wake from sleep.
func (r *RetryScheduler) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.store.Profiles() {
		r.resetProfileLocked(p)
	}
	r.cancelTimerLocked()
}

// ResetBlockedBySecrets clears only the profiles currently blocked for
// lack of secrets — used when a secret agent registers, since it may
// now be able to supply what was missing.
func (r *RetryScheduler) ResetBlockedBySecrets() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.store.Profiles() {
		if p.BlockedReason() == BlockedReasonNoSecrets {
			p.SetBlockedReason(BlockedReasonNone)
			p.SetRetriesRemaining(MaxAutoconnectRetries)
		}
	}
}

// ResetForDevice clears retry state only for the profiles dev
// considers activatable candidates — used when a device transitions
// to disconnected or unavailable and deserves a fresh attempt regardless of
// earlier failures on other devices.
func (r *RetryScheduler) ResetForDevice(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range dev.ActivatableProfiles() {
		r.resetProfileLocked(p)
	}
}

func (r *RetryScheduler) resetProfileLocked(p Profile) {
	p.SetRetriesRemaining(MaxAutoconnectRetries)
	if p.BlockedReason() != BlockedReasonUserRequested {
		p.SetBlockedReason(BlockedReasonNone)
	}
	p.SetRetryTime(0)
}

// rescheduleLocked (re)arms the single shared timer to fire at the
// earliest pending RetryTime across every blocked profile, cancelling
// any previously armed timer first so only one is ever outstanding.
func (r *RetryScheduler) rescheduleLocked() {
	r.cancelTimerLocked()

	var earliest int64
	found := false
	for _, p := range r.store.Profiles() {
		t := p.RetryTime()
		if t == 0 {
			continue
		}
		if !found || t < earliest {
			earliest = t
			found = true
		}
	}
	if !found {
		return
	}

	delay := time.Unix(earliest, 0).Sub(r.clock.Now())
	if delay < 0 {
		delay = 0
	}
	r.cancelTimer = r.scheduler.ScheduleAfter(delay, r.onTimerFired)
}

// onTimerFired resets every profile whose RetryTime has come due, then
// rearms the timer for whichever profile is still waiting.
func (r *RetryScheduler) onTimerFired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now().Unix()
	for _, p := range r.store.Profiles() {
		t := p.RetryTime()
		if t != 0 && t <= now {
			r.resetProfileLocked(p)
		}
	}
	r.rescheduleLocked()
}

func (r *RetryScheduler) cancelTimerLocked() {
	if r.cancelTimer != nil {
		r.cancelTimer()
		r.cancelTimer = nil
	}
}
