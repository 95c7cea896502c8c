// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"sync"

	"go.linkpolicy.dev/engine/internal/logging"
	"go.linkpolicy.dev/engine/internal/policy"
)

type fakeManager struct {
	mu       sync.Mutex
	devices  []*fakeDevice
	sessions []*fakeSession
	hostname string
	obs      []policy.ManagerObserver
}

func (m *fakeManager) Devices() []policy.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]policy.Device, len(m.devices))
	for i, d := range m.devices {
		out[i] = d
	}
	return out
}

func (m *fakeManager) ActiveSessions() []policy.ActiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]policy.ActiveSession, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s
	}
	return out
}

func (m *fakeManager) ConnectionDevice(p policy.Profile) (policy.Device, bool) {
	return nil, false
}

func (m *fakeManager) Activate(p policy.Profile, specificObject string, dev policy.Device, subject policy.Subject, activationType policy.ActivationType) (policy.ActiveSession, error) {
	fd := dev.(*fakeDevice)
	session := &fakeSession{profile: p, device: dev, state: policy.SessionStateActivating, path: "/session/" + p.UUID()}
	fd.active = session

	m.mu.Lock()
	m.sessions = append(m.sessions, session)
	obs := append([]policy.ManagerObserver(nil), m.obs...)
	m.mu.Unlock()

	for _, o := range obs {
		o.OnActiveSessionAdded(session)
	}

	logging.Info("activating profile", "profile", p.DisplayID(), "device", dev.IfaceName())
	fd.transitionTo(policy.DeviceStatePrepare)
	fd.transitionTo(policy.DeviceStateIPConfig)
	fd.transitionTo(policy.DeviceStateActivated)
	session.setState(policy.SessionStateActivated)

	return session, nil
}

func (m *fakeManager) Deactivate(session policy.ActiveSession, reason string) error {
	logging.Info("deactivating session", "path", session.Path(), "reason", reason)
	if s, ok := session.(*fakeSession); ok {
		s.setState(policy.SessionStateDeactivated)
	}
	return nil
}

func (m *fakeManager) Hostname() (string, bool) { return m.hostname, m.hostname != "" }
func (m *fakeManager) Sleeping() bool           { return false }
func (m *fakeManager) NetworkingEnabled() bool  { return true }

func (m *fakeManager) Subscribe(obs policy.ManagerObserver) policy.Subscription {
	m.mu.Lock()
	m.obs = append(m.obs, obs)
	m.mu.Unlock()
	return noopSubscription{}
}

type fakeSettingsStore struct {
	mu       sync.Mutex
	profiles map[string]policy.Profile
}

func (s *fakeSettingsStore) ProfileByUUID(uuid string) (policy.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uuid]
	return p, ok
}

func (s *fakeSettingsStore) Profiles() []policy.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]policy.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

func (s *fakeSettingsStore) SetTransientHostname(name string, done func(error)) {
	logging.Info("settings store: transient hostname set", "hostname", name)
	if done != nil {
		done(nil)
	}
}

func (s *fakeSettingsStore) Subscribe(obs policy.SettingsObserver) policy.Subscription {
	return noopSubscription{}
}

type fakeDNSManager struct{}

func (fakeDNSManager) BeginUpdates(tag string) { logging.Debug("dns: begin updates", "tag", tag) }
func (fakeDNSManager) EndUpdates(tag string)   { logging.Debug("dns: end updates", "tag", tag) }

func (fakeDNSManager) AddV4Config(iface string, cfg *policy.IPConfig, priorityTag string) {
	logging.Info("dns: add v4 config", "iface", iface, "addr", cfg.PrimaryAddress, "tag", priorityTag)
}

func (fakeDNSManager) AddV6Config(iface string, cfg *policy.IPConfig, priorityTag string) {
	logging.Info("dns: add v6 config", "iface", iface, "addr", cfg.PrimaryAddress, "tag", priorityTag)
}

func (fakeDNSManager) RemoveV4Config(cfg *policy.IPConfig) {}
func (fakeDNSManager) RemoveV6Config(cfg *policy.IPConfig) {}

func (fakeDNSManager) SetInitialHostname(name string) {
	logging.Info("dns: initial hostname", "hostname", name)
}

func (fakeDNSManager) SetHostname(name string) {
	logging.Info("dns: hostname changed", "hostname", name)
}

func (fakeDNSManager) Subscribe(obs policy.DNSObserver) policy.Subscription {
	return noopSubscription{}
}

type fakeFirewallManager struct{}

func (fakeFirewallManager) UpdateFirewallZone(dev policy.Device) {
	logging.Info("firewall: zone updated", "device", dev.IfaceName())
}

func (fakeFirewallManager) Subscribe(obs policy.FirewallObserver) policy.Subscription {
	return noopSubscription{}
}

// fakeRoutes picks, per family, the first device in list order whose
// session qualifies and whose IP config is present and not
// never-default — a simplification of the real routing-table/metric
// comparison a production DefaultRouteManager would perform.
type fakeRoutes struct{}

func (fakeRoutes) BestDevice(devices []policy.Device, family policy.Family, requireFullyActivated bool, lastDefault policy.Device) (policy.Device, policy.ActiveSession, bool) {
	var best policy.Device
	var bestSession policy.ActiveSession

	for _, dev := range devices {
		session, ok := dev.ActiveRequest()
		if !ok {
			continue
		}
		if requireFullyActivated && session.State() != policy.SessionStateActivated {
			continue
		}
		cfg := ipConfigFor(dev, family)
		if !cfg.Present() || cfg.NeverDefault {
			continue
		}
		if best == nil {
			best, bestSession = dev, session
		}
	}
	return best, bestSession, best != nil
}

func (fakeRoutes) BestVPNSession(family policy.Family) (policy.VPNSession, bool) {
	return nil, false
}

func (fakeRoutes) BestIPConfig(family policy.Family, ignoreNeverDefault bool) (*policy.IPConfig, bool) {
	return nil, false
}

func ipConfigFor(dev policy.Device, family policy.Family) *policy.IPConfig {
	if family == policy.FamilyV6 {
		return dev.IPv6Config()
	}
	return dev.IPv4Config()
}

type fakeKernelHostname struct {
	name string
}

func (k *fakeKernelHostname) GetHostname() (string, error) { return k.name, nil }
func (k *fakeKernelHostname) SetHostname(name string) error {
	logging.Info("kernel: sethostname", "hostname", name)
	k.name = name
	return nil
}

type fakeDispatcher struct{}

func (fakeDispatcher) Call(action string) {
	logging.Info("dispatcher: hook invoked", "action", action)
}

type fakeResolver struct{}

func (fakeResolver) LookupPTR(addr string, done func(hostname string, ok bool)) policy.CancelFunc {
	go done("host-"+addr+".example.internal", true)
	return func() {}
}
