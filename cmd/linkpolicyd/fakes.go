// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"sync"

	"go.linkpolicy.dev/engine/internal/policy"
)

// The types below are minimal in-memory collaborator implementations
// used to drive the engine for a dry run without any real kernel,
// D-Bus, or resolver access — enough to exercise device add, profile
// auto-activation and default-route arbitration end to end.

type fakeProfile struct {
	uuid      string
	display   string
	isVPN     bool
	priority  int
	retries   int
	blocked   policy.BlockedReason
	retryTime int64
}

func (p *fakeProfile) UUID() string                            { return p.uuid }
func (p *fakeProfile) DisplayID() string                       { return p.display }
func (p *fakeProfile) IsVPN() bool                              { return p.isVPN }
func (p *fakeProfile) AutoconnectPriority() int                 { return p.priority }
func (p *fakeProfile) LastConnectTimestamp() int64              { return 0 }
func (p *fakeProfile) RetriesRemaining() int                    { return p.retries }
func (p *fakeProfile) SetRetriesRemaining(n int)                { p.retries = n }
func (p *fakeProfile) BlockedReason() policy.BlockedReason      { return p.blocked }
func (p *fakeProfile) SetBlockedReason(r policy.BlockedReason)  { p.blocked = r }
func (p *fakeProfile) RetryTime() int64                         { return p.retryTime }
func (p *fakeProfile) SetRetryTime(t int64)                     { p.retryTime = t }
func (p *fakeProfile) Visible() bool                            { return true }
func (p *fakeProfile) MasterNameOrUUID() (string, bool)         { return "", false }
func (p *fakeProfile) SlaveType() (string, bool)                { return "", false }
func (p *fakeProfile) SecondaryUUIDs() []string                 { return nil }
func (p *fakeProfile) ClearSecrets()                            {}

type fakeSession struct {
	profile policy.Profile
	device  policy.Device
	state   policy.SessionState
	path    string
	v4, v6  bool

	mu   sync.Mutex
	subs []policy.ActiveSessionObserver
}

func (s *fakeSession) Profile() policy.Profile { return s.profile }
func (s *fakeSession) Device() (policy.Device, bool) { return s.device, s.device != nil }
func (s *fakeSession) ActivationType() policy.ActivationType { return policy.ActivationTypeFull }
func (s *fakeSession) State() policy.SessionState { return s.state }
func (s *fakeSession) Subject() policy.Subject    { return policy.SubjectInternal }
func (s *fakeSession) DefaultV4() bool            { return s.v4 }
func (s *fakeSession) SetDefaultV4(v bool)        { s.v4 = v }
func (s *fakeSession) DefaultV6() bool            { return s.v6 }
func (s *fakeSession) SetDefaultV6(v bool)        { s.v6 = v }
func (s *fakeSession) Path() string               { return s.path }
func (s *fakeSession) AsVPN() (policy.VPNSession, bool) { return nil, false }

func (s *fakeSession) Subscribe(obs policy.ActiveSessionObserver) policy.Subscription {
	s.mu.Lock()
	s.subs = append(s.subs, obs)
	s.mu.Unlock()
	return noopSubscription{}
}

func (s *fakeSession) setState(newState policy.SessionState) {
	s.mu.Lock()
	old := s.state
	s.state = newState
	obs := append([]policy.ActiveSessionObserver(nil), s.subs...)
	s.mu.Unlock()
	for _, o := range obs {
		o.OnSessionStateChanged(s, newState, old)
	}
}

type fakeDevice struct {
	id, iface string
	ifindex   int
	state     policy.DeviceState
	permitted bool
	v4, v6    *policy.IPConfig
	profiles  []policy.Profile
	active    policy.ActiveSession

	mu   sync.Mutex
	obs  policy.DeviceObserver
	sub  policy.Subscription
}

func (d *fakeDevice) ID() string                  { return d.id }
func (d *fakeDevice) IfaceName() string            { return d.iface }
func (d *fakeDevice) Ifindex() int                 { return d.ifindex }
func (d *fakeDevice) State() policy.DeviceState    { return d.state }
func (d *fakeDevice) AutoconnectPermitted() bool   { return d.permitted }
func (d *fakeDevice) IsSoftware() bool             { return false }
func (d *fakeDevice) IPv4Config() *policy.IPConfig { return d.v4 }
func (d *fakeDevice) IPv6Config() *policy.IPConfig { return d.v6 }

func (d *fakeDevice) ActiveRequest() (policy.ActiveSession, bool) {
	return d.active, d.active != nil
}

func (d *fakeDevice) LinkAttrs() policy.LinkAttrs { return policy.LinkAttrs{Up: true} }

func (d *fakeDevice) ConnectionToAssume() (string, bool) { return "", false }

func (d *fakeDevice) IsAvailableForUser(profileUUID string) bool { return true }

func (d *fakeDevice) ActivatableProfiles() []policy.Profile { return d.profiles }

func (d *fakeDevice) AddPendingAction(name string) func() {
	return func() {}
}

func (d *fakeDevice) DevicePermits(p policy.Profile) (string, bool) {
	if !d.permitted {
		return "", false
	}
	return "", true
}

func (d *fakeDevice) Subscribe(obs policy.DeviceObserver) policy.Subscription {
	d.mu.Lock()
	d.obs = obs
	d.mu.Unlock()
	return noopSubscription{}
}

// transitionTo drives the device through a state change, notifying the
// engine's observer exactly as a real device driver would.
func (d *fakeDevice) transitionTo(newState policy.DeviceState) {
	d.mu.Lock()
	old := d.state
	d.state = newState
	obs := d.obs
	d.mu.Unlock()
	if obs != nil {
		obs.OnDeviceStateChanged(d, newState, old, policy.StateChangeReasonNone)
	}
}

type noopSubscription struct{}

func (noopSubscription) Cancel() {}

// fakeManager, fakeSettingsStore, fakeDNSManager, fakeFirewallManager
// and fakeRoutes are defined in collaborators.go.
