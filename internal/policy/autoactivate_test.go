// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoActivatorTryAssumeAdoptsMatchingProfile(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	store.profiles[profile.uuid] = profile

	dev := newTestDevice("wlan0")
	dev.assume = profile.uuid
	dev.hasAssume = true
	dev.permits[profile.uuid] = true

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, ActivationTypeAssume, session.ActivationType())
}

func TestAutoActivatorTryAssumeIgnoresVisibility(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	profile.visible = false
	store.profiles[profile.uuid] = profile

	dev := newTestDevice("wlan0")
	dev.assume = profile.uuid
	dev.hasAssume = true

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, ActivationTypeAssume, session.ActivationType())
}

func TestAutoActivatorTryAssumeRejectsProfileBoundToAnotherDevice(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	store.profiles[profile.uuid] = profile

	other := newTestDevice("wlan1")
	dev := newTestDevice("wlan0")
	dev.assume = profile.uuid
	dev.hasAssume = true

	manager := &testManager{boundDevices: map[string]Device{profile.uuid: other}}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAutoActivatorTryAssumeRejectsDownLink(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("home-wifi")
	store.profiles[profile.uuid] = profile

	dev := newTestDevice("wlan0")
	dev.assume = profile.uuid
	dev.hasAssume = true
	dev.linkAttrs = LinkAttrs{Up: false}

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAutoActivatorTryAssumeRequiresMasterForSlaveProfile(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("bond-slave")
	profile.isSlave = true
	profile.slaveType = "bond"
	store.profiles[profile.uuid] = profile

	dev := newTestDevice("eth0")
	dev.assume = profile.uuid
	dev.hasAssume = true
	dev.linkAttrs = LinkAttrs{Up: true}

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)

	dev.hasAssume = true
	dev.linkAttrs = LinkAttrs{Up: true, MasterIndex: 4}

	session, err = a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
}

func TestAutoActivatorTryAssumeRejectsEnslavedNonSlaveProfile(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("wired")
	store.profiles[profile.uuid] = profile

	dev := newTestDevice("eth0")
	dev.assume = profile.uuid
	dev.hasAssume = true
	dev.linkAttrs = LinkAttrs{Up: true, MasterIndex: 4}

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAutoActivatorPicksHighestPriorityCandidate(t *testing.T) {
	store := newTestStore()
	low := newTestProfile("low")
	low.priority = 1
	high := newTestProfile("high")
	high.priority = 10

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{low, high}
	dev.permits[low.uuid] = true
	dev.permits[high.uuid] = true

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "high", session.Profile().UUID())
}

func TestAutoActivatorBreaksTiesByLastConnectTimestamp(t *testing.T) {
	store := newTestStore()
	older := newTestProfile("older")
	older.lastConn = 100
	newer := newTestProfile("newer")
	newer.lastConn = 200

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{older, newer}
	dev.permits[older.uuid] = true
	dev.permits[newer.uuid] = true

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "newer", session.Profile().UUID())
}

func TestAutoActivatorSkipsBlockedRetryExhaustedAndSlaveProfiles(t *testing.T) {
	store := newTestStore()
	blocked := newTestProfile("blocked")
	blocked.priority = 30
	blocked.blocked = BlockedReasonNoSecrets
	exhausted := newTestProfile("exhausted")
	exhausted.priority = 20
	exhausted.retries = 0
	slave := newTestProfile("slave")
	slave.priority = 15
	slave.isSlave = true
	slave.slaveType = "bond"
	eligible := newTestProfile("eligible")
	eligible.priority = 1

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{blocked, exhausted, slave, eligible}
	for _, p := range dev.profiles {
		dev.permits[p.UUID()] = true
	}

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "eligible", session.Profile().UUID())
}

func TestAutoActivatorSkipsInvisibleProfiles(t *testing.T) {
	store := newTestStore()
	hidden := newTestProfile("hidden")
	hidden.priority = 10
	hidden.visible = false
	visible := newTestProfile("visible")
	visible.priority = 1

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{hidden, visible}
	dev.permits[hidden.uuid] = true
	dev.permits[visible.uuid] = true

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "visible", session.Profile().UUID())
}

func TestAutoActivatorSkipsProfilesDeviceDoesNotPermit(t *testing.T) {
	store := newTestStore()
	profile := newTestProfile("only")

	dev := newTestDevice("eth0")
	dev.profiles = []Profile{profile}
	// dev.permits left empty and dev.permitted false => DevicePermits returns ok=false
	dev.permitted = false

	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAutoActivatorNoCandidatesReturnsNilWithoutError(t *testing.T) {
	store := newTestStore()
	dev := newTestDevice("eth0")
	manager := &testManager{}
	a := NewAutoActivator(manager, store)

	session, err := a.Decide(dev)
	require.NoError(t, err)
	assert.Nil(t, session)
}
