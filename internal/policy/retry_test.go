// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.linkpolicy.dev/engine/internal/clock"
)

func TestRetrySchedulerDecrementsUntilBlocked(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	store.profiles[profile.uuid] = profile

	c := clock.NewMockClock(time.Unix(1000, 0))
	r := NewRetryScheduler(store, scheduler, c)

	for i := 0; i < MaxAutoconnectRetries-1; i++ {
		r.NotifyActivationFailed(profile)
		assert.Equal(t, BlockedReasonNone, profile.BlockedReason())
	}
	require.Equal(t, 1, profile.RetriesRemaining())

	r.NotifyActivationFailed(profile)
	assert.Equal(t, 0, profile.RetriesRemaining())
	assert.Equal(t, int64(1000+int64(RetryResetInterval.Seconds())), profile.RetryTime())
	assert.Equal(t, 1, scheduler.PendingAfter())
}

func TestRetrySchedulerSharedTimerFiresAndResets(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	store.profiles[profile.uuid] = profile

	c := clock.NewMockClock(time.Unix(1000, 0))
	r := NewRetryScheduler(store, scheduler, c)

	for i := 0; i < MaxAutoconnectRetries; i++ {
		r.NotifyActivationFailed(profile)
	}
	require.Equal(t, 1, scheduler.PendingAfter())

	c.Advance(RetryResetInterval)
	scheduler.FireAfter(0)

	assert.Equal(t, MaxAutoconnectRetries, profile.RetriesRemaining())
	assert.Equal(t, BlockedReasonNone, profile.BlockedReason())
	assert.Equal(t, int64(0), profile.RetryTime())
}

func TestRetrySchedulerOnlyOneSharedTimerAcrossProfiles(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	a := newTestProfile("a")
	b := newTestProfile("b")
	store.profiles[a.uuid] = a
	store.profiles[b.uuid] = b

	c := clock.NewMockClock(time.Unix(1000, 0))
	r := NewRetryScheduler(store, scheduler, c)

	for i := 0; i < MaxAutoconnectRetries; i++ {
		r.NotifyActivationFailed(a)
	}
	c.Advance(time.Minute)
	for i := 0; i < MaxAutoconnectRetries; i++ {
		r.NotifyActivationFailed(b)
	}

	assert.Equal(t, 1, scheduler.PendingAfter())
}

func TestRetrySchedulerResetBlockedBySecretsOnlyAffectsThoseProfiles(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	noSecrets := newTestProfile("no-secrets")
	noSecrets.blocked = BlockedReasonNoSecrets
	noSecrets.retries = 0
	userBlocked := newTestProfile("user-blocked")
	userBlocked.blocked = BlockedReasonUserRequested

	store.profiles[noSecrets.uuid] = noSecrets
	store.profiles[userBlocked.uuid] = userBlocked

	r := NewRetryScheduler(store, scheduler, nil)
	r.ResetBlockedBySecrets()

	assert.Equal(t, BlockedReasonNone, noSecrets.BlockedReason())
	assert.Equal(t, MaxAutoconnectRetries, noSecrets.RetriesRemaining())
	assert.Equal(t, BlockedReasonUserRequested, userBlocked.BlockedReason())
}

func TestRetrySchedulerResetAllPreservesUserRequestedBlock(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	userBlocked := newTestProfile("user-blocked")
	userBlocked.blocked = BlockedReasonUserRequested
	store.profiles[userBlocked.uuid] = userBlocked

	r := NewRetryScheduler(store, scheduler, nil)
	r.ResetAll()

	assert.Equal(t, BlockedReasonUserRequested, userBlocked.BlockedReason())
	assert.Equal(t, MaxAutoconnectRetries, userBlocked.RetriesRemaining())
}

func TestRetrySchedulerResetForDeviceOnlyResetsActivatableProfiles(t *testing.T) {
	scheduler := NewFakeScheduler()
	store := newTestStore()
	onDevice := newTestProfile("on-device")
	onDevice.retries = 0
	elsewhere := newTestProfile("elsewhere")
	elsewhere.retries = 0
	store.profiles[onDevice.uuid] = onDevice
	store.profiles[elsewhere.uuid] = elsewhere

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{onDevice}

	r := NewRetryScheduler(store, scheduler, nil)
	r.ResetForDevice(dev)

	assert.Equal(t, MaxAutoconnectRetries, onDevice.RetriesRemaining())
	assert.Equal(t, 0, elsewhere.RetriesRemaining())
}
