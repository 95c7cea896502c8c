// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vpn

import (
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"go.linkpolicy.dev/engine/internal/logging"
	"go.linkpolicy.dev/engine/internal/policy"
)

// HandshakeTimeout is how long a WireGuard peer may go without a
// handshake before its session is reported failed — mirrors the
// interval wg-quick's own health checks use.
const HandshakeTimeout = 3 * time.Minute

// PollInterval is how often the WireGuard poller re-reads kernel/wgctrl
// device state.
const PollInterval = 15 * time.Second

// WireGuardProvider drives one WireGuard interface's Session by
// polling wgctrl for peer handshake times and allowed IPs.
type WireGuardProvider struct {
	Interface string

	client    *wgctrl.Client
	session   *Session
	scheduler policy.Scheduler
	cancel    policy.CancelFunc
}

// NewWireGuardProvider opens a wgctrl client and wires it to drive
// session's state from iface's live kernel configuration.
func NewWireGuardProvider(iface string, session *Session, scheduler policy.Scheduler) (*WireGuardProvider, error) {
	client, err := wgctrl.New()
	if err != nil {
		return nil, err
	}
	return &WireGuardProvider{
		Interface: iface,
		client:    client,
		session:   session,
		scheduler: scheduler,
	}, nil
}

// Start begins polling on the injected scheduler's timer, reporting
// the first observation synchronously so callers see an initial state
// without waiting a full interval.
func (p *WireGuardProvider) Start() {
	p.poll()
	p.cancel = p.scheduler.ScheduleAfter(PollInterval, p.tick)
}

// Stop cancels the outstanding poll timer. It does not close the
// wgctrl client socket-reuse across providers is the caller's
// responsibility if they share one.
func (p *WireGuardProvider) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *WireGuardProvider) tick() {
	p.poll()
	p.cancel = p.scheduler.ScheduleAfter(PollInterval, p.tick)
}

func (p *WireGuardProvider) poll() {
	dev, err := p.client.Device(p.Interface)
	if err != nil {
		logging.Warn("vpn/wireguard: device query failed", "iface", p.Interface, "error", err)
		p.session.SetState(policy.SessionStateFailed, "wireguard-device-unavailable")
		p.session.NotifyRetry()
		return
	}

	v4, v6, state, reason := deriveWireGuardState(dev.Peers, time.Now())
	p.session.SetIPConfig(v4, v6)
	p.session.SetState(state, reason)
	if state == policy.SessionStateFailed {
		p.session.NotifyRetry()
	}
}

// deriveWireGuardState reduces a device's peer list to the session
// state it implies: the first peer addresses seen become the
// reported IPv4/IPv6 config, and the session is healthy only if at
// least one peer has handshaked within HandshakeTimeout.
func deriveWireGuardState(peers []wgtypes.Peer, now time.Time) (v4, v6 *policy.IPConfig, state policy.SessionState, reason string) {
	if len(peers) == 0 {
		return nil, nil, policy.SessionStateFailed, "wireguard-no-peers"
	}

	handshakeOK := false
	for _, peer := range peers {
		if !peer.LastHandshakeTime.IsZero() && now.Sub(peer.LastHandshakeTime) < HandshakeTimeout {
			handshakeOK = true
		}
		for _, allowed := range peer.AllowedIPs {
			addr := allowed.IP.String()
			if allowed.IP.To4() != nil {
				if v4 == nil {
					v4 = &policy.IPConfig{PrimaryAddress: addr}
				}
			} else if v6 == nil {
				v6 = &policy.IPConfig{PrimaryAddress: addr}
			}
		}
	}

	if !handshakeOK {
		return v4, v6, policy.SessionStateFailed, "wireguard-handshake-timeout"
	}
	return v4, v6, policy.SessionStateActivated, ""
}
