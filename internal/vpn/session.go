// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package vpn implements the secondary (VPN) active-session providers:
// WireGuard sessions backed by wgctrl and Tailscale sessions backed on
// the tailscaled local API. Both produce a policy.VPNSession the
// secondary-activation tracker and default-route arbiter drive
// identically, regardless of backend.
package vpn

import (
	"sync"

	"go.linkpolicy.dev/engine/internal/policy"
)

// Session is the shared policy.VPNSession implementation both backends
// build on: it owns the observer bookkeeping and state machine, so the
// backend-specific poller only needs to call SetState/SetIPConfig/
// NotifyRetry.
type Session struct {
	mu sync.Mutex

	profile        policy.Profile
	path           string
	activationType policy.ActivationType
	subject        policy.Subject

	device    policy.Device
	hasDevice bool

	state policy.SessionState

	defaultV4, defaultV6 bool
	ipv4, ipv6           *policy.IPConfig

	sessionObs []policy.ActiveSessionObserver
	vpnObs     []policy.VPNObserver
}

// NewSession constructs a fresh VPN session in the activating state.
func NewSession(profile policy.Profile, path string, subject policy.Subject) *Session {
	return &Session{
		profile:        profile,
		path:           path,
		activationType: policy.ActivationTypeFull,
		subject:        subject,
		state:          policy.SessionStateActivating,
	}
}

func (s *Session) Profile() policy.Profile { return s.profile }

func (s *Session) Device() (policy.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, s.hasDevice
}

func (s *Session) BindDevice(dev policy.Device) {
	s.mu.Lock()
	s.device, s.hasDevice = dev, true
	s.mu.Unlock()
}

func (s *Session) ActivationType() policy.ActivationType { return s.activationType }

func (s *Session) State() policy.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Subject() policy.Subject { return s.subject }

func (s *Session) DefaultV4() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultV4
}

func (s *Session) SetDefaultV4(v bool) {
	s.mu.Lock()
	s.defaultV4 = v
	s.mu.Unlock()
}

func (s *Session) DefaultV6() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultV6
}

func (s *Session) SetDefaultV6(v bool) {
	s.mu.Lock()
	s.defaultV6 = v
	s.mu.Unlock()
}

func (s *Session) Path() string { return s.path }

func (s *Session) AsVPN() (policy.VPNSession, bool) { return s, true }

func (s *Session) IPv4Config() *policy.IPConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ipv4
}

func (s *Session) IPv6Config() *policy.IPConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ipv6
}

// SetIPConfig is called by the backend poller when a peer's observed
// addresses change.
func (s *Session) SetIPConfig(v4, v6 *policy.IPConfig) {
	s.mu.Lock()
	s.ipv4, s.ipv6 = v4, v6
	s.mu.Unlock()
}

// SetState transitions the session, notifying both observer sets iff
// the state actually changed.
func (s *Session) SetState(newState policy.SessionState, reason string) {
	s.mu.Lock()
	old := s.state
	if old == newState {
		s.mu.Unlock()
		return
	}
	s.state = newState
	sessionObs := append([]policy.ActiveSessionObserver(nil), s.sessionObs...)
	vpnObs := append([]policy.VPNObserver(nil), s.vpnObs...)
	s.mu.Unlock()

	for _, o := range sessionObs {
		if o != nil {
			o.OnSessionStateChanged(s, newState, old)
		}
	}
	for _, o := range vpnObs {
		if o != nil {
			o.OnInternalStateChanged(s, newState, old, reason)
		}
	}
}

// NotifyRetry fires OnInternalRetryAfterFailure on every VPN observer.
func (s *Session) NotifyRetry() {
	s.mu.Lock()
	vpnObs := append([]policy.VPNObserver(nil), s.vpnObs...)
	s.mu.Unlock()
	for _, o := range vpnObs {
		if o != nil {
			o.OnInternalRetryAfterFailure(s)
		}
	}
}

func (s *Session) Subscribe(obs policy.ActiveSessionObserver) policy.Subscription {
	s.mu.Lock()
	s.sessionObs = append(s.sessionObs, obs)
	idx := len(s.sessionObs) - 1
	s.mu.Unlock()
	return cancelFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.sessionObs) {
			s.sessionObs[idx] = nil
		}
	})
}

// SubscribeVPN implements policy.VPNSession's internal-state-machine
// subscription, distinct from Subscribe's generic session-state stream.
func (s *Session) SubscribeVPN(obs policy.VPNObserver) policy.Subscription {
	s.mu.Lock()
	s.vpnObs = append(s.vpnObs, obs)
	idx := len(s.vpnObs) - 1
	s.mu.Unlock()
	return cancelFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.vpnObs) {
			s.vpnObs[idx] = nil
		}
	})
}

type cancelFunc func()

func (f cancelFunc) Cancel() { f() }
