// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package vpn

import (
	"context"
	"time"

	"tailscale.com/client/local"
	"tailscale.com/ipn/ipnstate"

	"go.linkpolicy.dev/engine/internal/logging"
	"go.linkpolicy.dev/engine/internal/policy"
)

// TailscaleStatusPollInterval is how often the provider re-reads
// tailscaled's status over the local API socket.
const TailscaleStatusPollInterval = 15 * time.Second

// TailscaleStatusTimeout bounds a single status query.
const TailscaleStatusTimeout = 5 * time.Second

// TailscaleProvider drives a Session from the local tailscaled
// backend's reported state, the Tailscale counterpart to
// WireGuardProvider.
type TailscaleProvider struct {
	client    *local.Client
	session   *Session
	scheduler policy.Scheduler
	cancel    policy.CancelFunc
}

// NewTailscaleProvider builds a provider that talks to the default
// local tailscaled socket.
func NewTailscaleProvider(session *Session, scheduler policy.Scheduler) *TailscaleProvider {
	return &TailscaleProvider{
		client:    &local.Client{},
		session:   session,
		scheduler: scheduler,
	}
}

// Start begins polling, reporting the first observation synchronously.
func (p *TailscaleProvider) Start() {
	p.poll()
	p.cancel = p.scheduler.ScheduleAfter(TailscaleStatusPollInterval, p.tick)
}

// Stop cancels the outstanding poll timer.
func (p *TailscaleProvider) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *TailscaleProvider) tick() {
	p.poll()
	p.cancel = p.scheduler.ScheduleAfter(TailscaleStatusPollInterval, p.tick)
}

func (p *TailscaleProvider) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), TailscaleStatusTimeout)
	defer cancel()

	status, err := p.client.Status(ctx)
	if err != nil {
		logging.Warn("vpn/tailscale: status query failed", "error", err)
		p.session.SetState(policy.SessionStateFailed, "tailscale-status-unavailable")
		p.session.NotifyRetry()
		return
	}

	v4, v6 := tailscaleSelfAddresses(status)
	p.session.SetIPConfig(v4, v6)

	switch status.BackendState {
	case "Running":
		p.session.SetState(policy.SessionStateActivated, "")
	case "Starting", "NeedsLogin", "NeedsMachineAuth":
		p.session.SetState(policy.SessionStateActivating, status.BackendState)
	default:
		p.session.SetState(policy.SessionStateFailed, "tailscale-backend-"+status.BackendState)
		p.session.NotifyRetry()
	}
}

func tailscaleSelfAddresses(status *ipnstate.Status) (v4, v6 *policy.IPConfig) {
	if status.Self == nil {
		return nil, nil
	}
	for _, addr := range status.Self.TailscaleIPs {
		if addr.Is4() {
			if v4 == nil {
				v4 = &policy.IPConfig{PrimaryAddress: addr.String()}
			}
		} else if v6 == nil {
			v6 = &policy.IPConfig{PrimaryAddress: addr.String()}
		}
	}
	return v4, v6
}
