// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "sync"

// Shared fakes used across internal/policy's table-driven tests.

type testProfile struct {
	uuid      string
	priority  int
	lastConn  int64
	retries   int
	blocked   BlockedReason
	retryTime int64
	secondary []string
	slaveType string
	isSlave   bool
	visible   bool
}

func newTestProfile(uuid string) *testProfile {
	return &testProfile{uuid: uuid, retries: MaxAutoconnectRetries, visible: true}
}

func (p *testProfile) UUID() string               { return p.uuid }
func (p *testProfile) DisplayID() string           { return p.uuid }
func (p *testProfile) IsVPN() bool                 { return false }
func (p *testProfile) AutoconnectPriority() int    { return p.priority }
func (p *testProfile) LastConnectTimestamp() int64 { return p.lastConn }
func (p *testProfile) RetriesRemaining() int       { return p.retries }
func (p *testProfile) SetRetriesRemaining(n int)   { p.retries = n }
func (p *testProfile) BlockedReason() BlockedReason     { return p.blocked }
func (p *testProfile) SetBlockedReason(r BlockedReason) { p.blocked = r }
func (p *testProfile) RetryTime() int64                 { return p.retryTime }
func (p *testProfile) SetRetryTime(t int64)             { p.retryTime = t }
func (p *testProfile) Visible() bool                    { return p.visible }
func (p *testProfile) MasterNameOrUUID() (string, bool) { return "", false }
func (p *testProfile) SlaveType() (string, bool) {
	if p.isSlave {
		return p.slaveType, true
	}
	return "", false
}
func (p *testProfile) SecondaryUUIDs() []string { return p.secondary }
func (p *testProfile) ClearSecrets()            {}

type testDevice struct {
	mu sync.Mutex

	id        string
	state     DeviceState
	permitted bool
	v4, v6    *IPConfig
	profiles  []Profile
	permits   map[string]bool
	active    ActiveSession
	assume    string
	hasAssume bool
	linkAttrs LinkAttrs

	obs         DeviceObserver
	pendingTags []string
}

func newTestDevice(id string) *testDevice {
	return &testDevice{id: id, state: DeviceStateDisconnected, permitted: true, permits: make(map[string]bool), linkAttrs: LinkAttrs{Up: true}}
}

func (d *testDevice) ID() string               { return d.id }
func (d *testDevice) IfaceName() string        { return d.id }
func (d *testDevice) Ifindex() int             { return 0 }
func (d *testDevice) State() DeviceState       { return d.state }
func (d *testDevice) AutoconnectPermitted() bool { return d.permitted }
func (d *testDevice) IsSoftware() bool          { return false }
func (d *testDevice) IPv4Config() *IPConfig     { return d.v4 }
func (d *testDevice) IPv6Config() *IPConfig     { return d.v6 }

func (d *testDevice) ActiveRequest() (ActiveSession, bool) { return d.active, d.active != nil }
func (d *testDevice) LinkAttrs() LinkAttrs                 { return d.linkAttrs }

func (d *testDevice) ConnectionToAssume() (string, bool) {
	if d.hasAssume {
		d.hasAssume = false
		return d.assume, true
	}
	return "", false
}

func (d *testDevice) IsAvailableForUser(profileUUID string) bool { return true }
func (d *testDevice) ActivatableProfiles() []Profile             { return d.profiles }

func (d *testDevice) AddPendingAction(name string) func() {
	d.mu.Lock()
	d.pendingTags = append(d.pendingTags, name)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, n := range d.pendingTags {
			if n == name {
				d.pendingTags = append(d.pendingTags[:i], d.pendingTags[i+1:]...)
				return
			}
		}
	}
}

func (d *testDevice) DevicePermits(p Profile) (string, bool) {
	ok, exists := d.permits[p.UUID()]
	if !exists {
		return "", d.permitted
	}
	return "", ok
}

func (d *testDevice) Subscribe(obs DeviceObserver) Subscription {
	d.obs = obs
	return testSubscription{}
}

type testSubscription struct{}

func (testSubscription) Cancel() {}

type testSession struct {
	profile Profile
	device  Device
	state   SessionState
	path    string
	v4, v6  bool
	at      ActivationType
}

func (s *testSession) Profile() Profile                 { return s.profile }
func (s *testSession) Device() (Device, bool)           { return s.device, s.device != nil }
func (s *testSession) ActivationType() ActivationType   { return s.at }
func (s *testSession) State() SessionState              { return s.state }
func (s *testSession) Subject() Subject                 { return SubjectInternal }
func (s *testSession) DefaultV4() bool                  { return s.v4 }
func (s *testSession) SetDefaultV4(v bool)              { s.v4 = v }
func (s *testSession) DefaultV6() bool                  { return s.v6 }
func (s *testSession) SetDefaultV6(v bool)              { s.v6 = v }
func (s *testSession) Path() string                     { return s.path }
func (s *testSession) AsVPN() (VPNSession, bool)        { return nil, false }
func (s *testSession) Subscribe(obs ActiveSessionObserver) Subscription {
	return testSubscription{}
}

type testManager struct {
	devices      []Device
	sessions     []ActiveSession
	sleeping     bool
	hostname     string
	hasHost      bool
	boundDevices map[string]Device
	deactivated  []ActiveSession
	activateFn   func(p Profile, specificObject string, dev Device, subject Subject, at ActivationType) (ActiveSession, error)
}

func (m *testManager) Devices() []Device             { return m.devices }
func (m *testManager) ActiveSessions() []ActiveSession { return m.sessions }
func (m *testManager) ConnectionDevice(p Profile) (Device, bool) {
	dev, ok := m.boundDevices[p.UUID()]
	return dev, ok
}

func (m *testManager) Activate(p Profile, specificObject string, dev Device, subject Subject, at ActivationType) (ActiveSession, error) {
	if m.activateFn != nil {
		return m.activateFn(p, specificObject, dev, subject, at)
	}
	return &testSession{profile: p, device: dev, state: SessionStateActivated, at: at}, nil
}

func (m *testManager) Deactivate(session ActiveSession, reason string) error {
	m.deactivated = append(m.deactivated, session)
	return nil
}
func (m *testManager) Hostname() (string, bool)                             { return m.hostname, m.hasHost }
func (m *testManager) Sleeping() bool                                       { return m.sleeping }
func (m *testManager) NetworkingEnabled() bool                              { return true }
func (m *testManager) Subscribe(obs ManagerObserver) Subscription           { return testSubscription{} }

type testStore struct {
	profiles     map[string]Profile
	hostnameErr  error
	hostnameSets []string
}

func newTestStore() *testStore { return &testStore{profiles: make(map[string]Profile)} }

func (s *testStore) ProfileByUUID(uuid string) (Profile, bool) {
	p, ok := s.profiles[uuid]
	return p, ok
}

func (s *testStore) Profiles() []Profile {
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

func (s *testStore) SetTransientHostname(name string, done func(error)) {
	s.hostnameSets = append(s.hostnameSets, name)
	if done != nil {
		done(s.hostnameErr)
	}
}

func (s *testStore) Subscribe(obs SettingsObserver) Subscription { return testSubscription{} }

type dnsUpdate struct {
	kind  string // "v4", "v6", "rm-v4", "rm-v6"
	iface string
	cfg   *IPConfig
	tag   string
}

type testDNS struct {
	mu        sync.Mutex
	updates   []dnsUpdate
	begins    []string
	ends      []string
	hostname  string
	initial   string
	nestDepth int
	maxDepth  int
}

func newTestDNS() *testDNS { return &testDNS{} }

func (d *testDNS) BeginUpdates(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begins = append(d.begins, tag)
	d.nestDepth++
	if d.nestDepth > d.maxDepth {
		d.maxDepth = d.nestDepth
	}
}

func (d *testDNS) EndUpdates(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ends = append(d.ends, tag)
	d.nestDepth--
}

func (d *testDNS) AddV4Config(iface string, cfg *IPConfig, tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, dnsUpdate{kind: "v4", iface: iface, cfg: cfg, tag: tag})
}

func (d *testDNS) AddV6Config(iface string, cfg *IPConfig, tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, dnsUpdate{kind: "v6", iface: iface, cfg: cfg, tag: tag})
}

func (d *testDNS) RemoveV4Config(cfg *IPConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, dnsUpdate{kind: "rm-v4", cfg: cfg})
}

func (d *testDNS) RemoveV6Config(cfg *IPConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, dnsUpdate{kind: "rm-v6", cfg: cfg})
}

func (d *testDNS) SetInitialHostname(name string) { d.initial = name }
func (d *testDNS) SetHostname(name string)        { d.hostname = name }
func (d *testDNS) Subscribe(obs DNSObserver) Subscription { return testSubscription{} }

type testFirewall struct {
	mu      sync.Mutex
	updated []string
}

func (f *testFirewall) UpdateFirewallZone(dev Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, dev.IfaceName())
}

func (f *testFirewall) Subscribe(obs FirewallObserver) Subscription { return testSubscription{} }

// testRoutes is a scriptable DefaultRouteManager: tests set the
// per-family result directly rather than reimplementing priority
// selection.
type testRoutes struct {
	bestDevice  map[Family]Device
	bestSession map[Family]ActiveSession
	bestOK      map[Family]bool

	bestVPN   map[Family]VPNSession
	bestVPNOK map[Family]bool

	bestCfg   map[Family]*IPConfig
	bestCfgOK map[Family]bool
}

func newTestRoutes() *testRoutes {
	return &testRoutes{
		bestDevice:  make(map[Family]Device),
		bestSession: make(map[Family]ActiveSession),
		bestOK:      make(map[Family]bool),
		bestVPN:     make(map[Family]VPNSession),
		bestVPNOK:   make(map[Family]bool),
		bestCfg:     make(map[Family]*IPConfig),
		bestCfgOK:   make(map[Family]bool),
	}
}

func (r *testRoutes) BestDevice(devices []Device, family Family, requireFullyActivated bool, lastDefault Device) (Device, ActiveSession, bool) {
	return r.bestDevice[family], r.bestSession[family], r.bestOK[family]
}

func (r *testRoutes) BestVPNSession(family Family) (VPNSession, bool) {
	return r.bestVPN[family], r.bestVPNOK[family]
}

func (r *testRoutes) BestIPConfig(family Family, ignoreNeverDefault bool) (*IPConfig, bool) {
	return r.bestCfg[family], r.bestCfgOK[family]
}

type testKernel struct {
	mu       sync.Mutex
	hostname string
	setErr   error
	sets     []string
}

func (k *testKernel) GetHostname() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.hostname, nil
}

func (k *testKernel) SetHostname(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sets = append(k.sets, name)
	if k.setErr != nil {
		return k.setErr
	}
	k.hostname = name
	return nil
}

// testResolver is a scriptable ReverseResolver: tests call Resolve to
// synchronously invoke the pending callback rather than juggling real
// concurrency for a purely bookkeeping-level test.
type testResolver struct {
	mu        sync.Mutex
	pending   func(hostname string, ok bool)
	cancelled bool
}

func (r *testResolver) LookupPTR(addr string, done func(hostname string, ok bool)) CancelFunc {
	r.mu.Lock()
	r.pending = done
	r.cancelled = false
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cancelled = true
	}
}

func (r *testResolver) Resolve(hostname string, ok bool) {
	r.mu.Lock()
	fn := r.pending
	r.mu.Unlock()
	if fn != nil {
		fn(hostname, ok)
	}
}
