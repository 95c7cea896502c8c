// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package policy implements the reactive network policy engine: it
// decides which stored connection profile to auto-activate on which
// device, which device carries the default route and DNS priority for
// each address family, which secondary (VPN) profiles chain off a
// base connection, and what the system hostname should be. It never
// performs I/O itself; every side effect is a call on an injected
// collaborator.
package policy

import "github.com/google/uuid"

// Family is an IP address family the default-route/DNS arbitration
// and hostname pipeline reason about independently.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "ipv6"
	}
	return "ipv4"
}

// DeviceState mirrors the device-level state machine the device
// driver layer drives; the engine only ever observes and reacts to
// these transitions, it never sets device state directly.
type DeviceState int

const (
	DeviceStateUnmanaged DeviceState = iota
	DeviceStateUnavailable
	DeviceStateDisconnected
	DeviceStatePrepare
	DeviceStateIPConfig
	DeviceStateSecondaries
	DeviceStateActivated
	DeviceStateDeactivating
	DeviceStateFailed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnmanaged:
		return "unmanaged"
	case DeviceStateUnavailable:
		return "unavailable"
	case DeviceStateDisconnected:
		return "disconnected"
	case DeviceStatePrepare:
		return "prepare"
	case DeviceStateIPConfig:
		return "ip-config"
	case DeviceStateSecondaries:
		return "secondaries"
	case DeviceStateActivated:
		return "activated"
	case DeviceStateDeactivating:
		return "deactivating"
	case DeviceStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// deviceStateInRange reports whether s falls within [lo, hi] inclusive,
// used for the retry scheduler's "entering failed from [prepare,
// activated]" rule.
func deviceStateInRange(s, lo, hi DeviceState) bool {
	return s >= lo && s <= hi
}

// ActivationType distinguishes adopting an already-configured link
// (assume) from driving a profile through the full activation
// sequence.
type ActivationType int

const (
	ActivationTypeFull ActivationType = iota
	ActivationTypeAssume
)

func (t ActivationType) String() string {
	if t == ActivationTypeAssume {
		return "assume"
	}
	return "full"
}

// SessionState is the runtime state of an active session (a profile
// being brought up, or already in effect, on a device).
type SessionState int

const (
	SessionStateUnknown SessionState = iota
	SessionStateActivating
	SessionStateActivated
	SessionStateDeactivating
	SessionStateDeactivated
	SessionStateFailed
)

// Subject records who asked for an activation: the engine itself
// (internal, e.g. auto-activation) or an explicit user/client request.
type Subject int

const (
	SubjectInternal Subject = iota
	SubjectUser
)

// BlockedReason gates a profile from auto-activating until cleared.
type BlockedReason int

const (
	BlockedReasonNone BlockedReason = iota
	BlockedReasonNoSecrets
	BlockedReasonUserRequested
)

func (r BlockedReason) String() string {
	switch r {
	case BlockedReasonNoSecrets:
		return "no-secrets"
	case BlockedReasonUserRequested:
		return "user-requested"
	default:
		return "none"
	}
}

// FailedReason is the reason a device or base session transitioned to
// a failed state, as reported by the device driver layer or set by
// the secondary-activation tracker.
type FailedReason string

const (
	FailedReasonNone                       FailedReason = ""
	FailedReasonNoSecrets                  FailedReason = "no-secrets"
	FailedReasonSecondaryConnectionFailed  FailedReason = "secondary-connection-failed"
)

// IPConfig is the minimal view of a device or VPN session's IP
// configuration the policy engine reasons about: whether it exists at
// all, its primary address (for reverse-DNS), any DHCP-supplied
// hostname option, and whether it opted out of ever carrying the
// default route.
type IPConfig struct {
	PrimaryAddress string
	DHCPHostname   string
	NeverDefault   bool
}

// Present reports whether cfg represents a real configuration, as
// opposed to a nil handle meaning "no IP config of this family".
func (cfg *IPConfig) Present() bool { return cfg != nil }

// NewDeferredTaskID returns a fresh identifier for a pending
// auto-activation entry or shared retry timer, so log lines and tests
// can correlate a scheduled task with the device/profile that queued
// it.
func NewDeferredTaskID() string {
	return uuid.NewString()
}
