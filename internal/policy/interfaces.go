// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "time"

// Subscription is a single, individually-droppable event subscription.
// Cancel must be idempotent and must guarantee no further callback
// fires once it returns.
type Subscription interface {
	Cancel()
}

// Profile is a stored connection profile, owned by the settings
// store. The engine only ever reads or mutates it through these
// methods — never by reaching into fields the store owns.
type Profile interface {
	UUID() string
	DisplayID() string
	IsVPN() bool
	AutoconnectPriority() int
	LastConnectTimestamp() int64

	RetriesRemaining() int
	SetRetriesRemaining(n int)
	BlockedReason() BlockedReason
	SetBlockedReason(r BlockedReason)
	// RetryTime is the monotonic time (seconds) at which
	// RetriesRemaining may next be reset by the shared timer.
	RetryTime() int64
	SetRetryTime(t int64)

	Visible() bool
	// MasterNameOrUUID returns the master connection/interface this
	// profile is a slave of, if any.
	MasterNameOrUUID() (string, bool)
	SlaveType() (string, bool)
	// SecondaryUUIDs lists the profiles (typically VPNs) that must
	// activate before this profile is considered fully activated.
	SecondaryUUIDs() []string

	ClearSecrets()
}

// Device is a managed network interface, owned by the device driver
// layer. The engine subscribes to it once via Subscribe and otherwise
// only calls its accessor/query methods.
type Device interface {
	ID() string
	IfaceName() string
	Ifindex() int
	State() DeviceState
	AutoconnectPermitted() bool
	IsSoftware() bool

	IPv4Config() *IPConfig
	IPv6Config() *IPConfig

	// ActiveRequest is the session currently driving this device's
	// activation, if any.
	ActiveRequest() (ActiveSession, bool)

	// LinkAttrs reports the kernel-level link state backing the
	// assume-probe and slave/master rules.
	LinkAttrs() LinkAttrs

	// ConnectionToAssume returns a profile UUID the device believes
	// already matches its current kernel configuration. The hint is
	// consumed: a device must not return the same uuid twice unless
	// its kernel state changed again in the interim.
	ConnectionToAssume() (profileUUID string, ok bool)

	// IsAvailableForUser reports whether the profile is available on
	// this device for a user-initiated request (used by the
	// assume-probe's acceptance checks).
	IsAvailableForUser(profileUUID string) bool

	// ActivatableProfiles returns every profile the device currently
	// considers a compatible candidate, independent of blocked-reason
	// or retry state (those are filtered by the decider itself).
	ActivatableProfiles() []Profile

	// AddPendingAction marks the device as having a named action in
	// flight (e.g. "autoactivate"), exposed so external waiters can
	// observe that the device isn't idle yet. The returned func
	// removes the marker; it is safe to call exactly once.
	AddPendingAction(name string) (remove func())

	// DevicePermits reports whether the device is willing to run the
	// given profile right now, and if so, an optional "specific
	// object" identifier (e.g. an access-point path) to pass to
	// Activate.
	DevicePermits(p Profile) (specificObject string, ok bool)

	// Subscribe installs the engine's single observer for this
	// device's state-changed, ip4-changed, ip6-changed,
	// autoconnect-permission-changed and recheck-auto-activate
	// streams. It must be safe to call at most once per device per
	// registration; Cancel on the returned Subscription must detach
	// all of them.
	Subscribe(obs DeviceObserver) Subscription
}

// LinkAttrs is the kernel-level link state the auto-activation
// decider consults for the assume-probe's link-up and master rules.
type LinkAttrs struct {
	MasterIndex int
	Up          bool
}

// HasMaster reports whether the link currently has a non-zero master
// ifindex (e.g. it is enslaved to a bond or bridge).
func (a LinkAttrs) HasMaster() bool { return a.MasterIndex != 0 }

// StateChangeReason is an opaque device-driver-supplied reason code
// accompanying a state-changed event (e.g. NO_SECRETS).
type StateChangeReason string

const (
	StateChangeReasonNone      StateChangeReason = ""
	StateChangeReasonNoSecrets StateChangeReason = "no-secrets"
)

// DeviceObserver is the single narrow interface the engine implements
// to receive every event a registered device can emit.
type DeviceObserver interface {
	OnDeviceStateChanged(dev Device, newState, oldState DeviceState, reason StateChangeReason)
	OnDeviceIPv4Changed(dev Device, newCfg, oldCfg *IPConfig)
	OnDeviceIPv6Changed(dev Device, newCfg, oldCfg *IPConfig)
	OnAutoconnectPermissionChanged(dev Device)
	OnRecheckAutoActivate(dev Device)
}

// ActiveSession is the runtime instance of a profile being brought up
// or in effect on a device. Per design note 9 it is modeled as a sum
// type over {device-session, vpn-session}; AsVPN narrows to the VPN
// variant instead of relying on a runtime type tag.
type ActiveSession interface {
	Profile() Profile
	// Device is unset (ok=false) for a VPN session that has not yet
	// been bound to a carrying device.
	Device() (Device, bool)
	ActivationType() ActivationType
	State() SessionState
	Subject() Subject

	DefaultV4() bool
	SetDefaultV4(bool)
	DefaultV6() bool
	SetDefaultV6(bool)

	Path() string

	// AsVPN narrows this session to its VPN-specific capabilities, if
	// it is one.
	AsVPN() (VPNSession, bool)

	Subscribe(obs ActiveSessionObserver) Subscription
}

// ActiveSessionObserver receives state-changed events for any active
// session, device-bound or VPN.
type ActiveSessionObserver interface {
	OnSessionStateChanged(session ActiveSession, newState, oldState SessionState)
}

// VPNSession is the capability set a VPN active session additionally
// exposes: per-family IP config, late binding to a carrying device,
// and the internal retry-after-failure signal.
type VPNSession interface {
	ActiveSession

	IPv4Config() *IPConfig
	IPv6Config() *IPConfig

	// BindDevice late-binds this VPN session to the device that will
	// carry its traffic, once the default-route arbitration has
	// chosen one.
	BindDevice(dev Device)

	// SubscribeVPN installs an observer for this session's internal
	// state machine, distinct from ActiveSession.Subscribe's generic
	// state-changed stream.
	SubscribeVPN(obs VPNObserver) Subscription
}

// VPNObserver receives a VPN session's internal state machine events,
// distinct from the generic ActiveSession state machine.
type VPNObserver interface {
	OnInternalStateChanged(session VPNSession, newState, oldState SessionState, reason string)
	OnInternalRetryAfterFailure(session VPNSession)
}

// Manager is the external device/session owner (construct input,
// §6). The engine asks it to enumerate devices/sessions and to
// activate/deactivate profiles; it never extends the manager's
// lifetime.
type Manager interface {
	Devices() []Device
	ActiveSessions() []ActiveSession
	ConnectionDevice(p Profile) (Device, bool)

	Activate(p Profile, specificObject string, dev Device, subject Subject, activationType ActivationType) (ActiveSession, error)
	Deactivate(session ActiveSession, reason string) error

	// Hostname is the manager-exposed configured hostname property
	// (rung 1 of the precedence ladder).
	Hostname() (string, bool)
	Sleeping() bool
	NetworkingEnabled() bool

	Subscribe(obs ManagerObserver) Subscription
}

// ManagerObserver receives manager-level lifecycle events.
type ManagerObserver interface {
	OnDeviceAdded(dev Device)
	OnDeviceRemoved(dev Device)
	OnActiveSessionAdded(session ActiveSession)
	OnActiveSessionRemoved(session ActiveSession)
	OnHostnamePropertyChanged()
	OnSleepingChanged(sleeping bool)
	OnNetworkingEnabledChanged(enabled bool)
}

// SettingsStore is the external settings-store collaborator (construct
// input, §6): profile enumeration and the two operations the engine
// performs on it directly (retry/blocked accessors live on Profile
// itself; SetTransientHostname is store-level because committing a
// hostname can require e.g. a D-Bus round trip the caller must await).
type SettingsStore interface {
	ProfileByUUID(uuid string) (Profile, bool)
	// Profiles returns every known profile, in no particular order;
	// the auto-activation decider is responsible for the stable
	// (priority desc, last-connect desc) sort.
	Profiles() []Profile

	SetTransientHostname(name string, done func(error))

	Subscribe(obs SettingsObserver) Subscription
}

// SettingsObserver receives settings-store lifecycle events.
type SettingsObserver interface {
	OnProfileAdded(p Profile)
	OnProfileUpdated(p Profile, byUser bool)
	OnProfileRemoved(p Profile)
	OnProfileVisibilityChanged(p Profile)
	OnSecretAgentRegistered()
}

// DNSManager is the external DNS resolver manager (§6). Every
// routing/DNS-mutating pathway is bracketed by BeginUpdates/EndUpdates
// with every begin matched by an end on every return path.
type DNSManager interface {
	BeginUpdates(tag string)
	EndUpdates(tag string)

	AddV4Config(iface string, cfg *IPConfig, priorityTag string)
	AddV6Config(iface string, cfg *IPConfig, priorityTag string)
	RemoveV4Config(cfg *IPConfig)
	RemoveV6Config(cfg *IPConfig)

	SetInitialHostname(name string)
	SetHostname(name string)

	Subscribe(obs DNSObserver) Subscription
}

// DNSObserver receives DNS manager lifecycle events.
type DNSObserver interface {
	OnDNSConfigChanged()
}

// FirewallManager is the external firewall coordinator (§6).
type FirewallManager interface {
	UpdateFirewallZone(dev Device)
	Subscribe(obs FirewallObserver) Subscription
}

// FirewallObserver receives firewall manager lifecycle events.
type FirewallObserver interface {
	OnFirewallStarted()
}

// DispatcherHook invokes the dispatcher script hook for a given
// action (§6, §4.H).
type DispatcherHook interface {
	Call(action string)
}

// KernelHostnameSetter is the last-resort direct kernel hostname
// fallback used when the settings store has no hostnamed proxy
// available (§4.H).
type KernelHostnameSetter interface {
	GetHostname() (string, error)
	SetHostname(name string) error
}

// DefaultRouteManager picks the best device/session for default-route
// and default-DNS purposes per family (§4.E). It is constructor
// injected so tests can drive deterministic scenarios without a real
// routing table.
type DefaultRouteManager interface {
	// BestDevice returns the best device and its corresponding active
	// session for family. If requireFullyActivated is true, only
	// devices whose session has reached SessionStateActivated are
	// considered. lastDefault (may be the zero value) is consulted to
	// break ties in favor of stability.
	BestDevice(devices []Device, family Family, requireFullyActivated bool, lastDefault Device) (Device, ActiveSession, bool)

	// BestVPNSession returns the best currently-active VPN session
	// whose IP config for family is present, independent of which
	// device it will ultimately bind to.
	BestVPNSession(family Family) (VPNSession, bool)

	// BestIPConfig independently re-queries the best IP configuration
	// for family, optionally ignoring configs that opted out of ever
	// carrying the default route.
	BestIPConfig(family Family, ignoreNeverDefault bool) (*IPConfig, bool)
}

// CancelFunc cancels a scheduled task. Calling it more than once, or
// after the task has already run, is a no-op.
type CancelFunc func()

// Scheduler is the task-scheduler abstraction backing the three
// suspension points of §5: the idle activate-all task, the idle
// per-device auto-activate task, and (indirectly, via the hostname
// pipeline's own cancellation token) the reverse-DNS lookup callback.
// All other engine handlers must run to completion without yielding.
type Scheduler interface {
	ScheduleIdle(fn func()) CancelFunc
	ScheduleAfter(d time.Duration, fn func()) CancelFunc
}
