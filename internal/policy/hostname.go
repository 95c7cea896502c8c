// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"strings"
	"sync"

	polerrors "go.linkpolicy.dev/engine/internal/errors"
	"go.linkpolicy.dev/engine/internal/logging"
)

// fallbackHostname is the last-resort name applied when nothing else
// on the ladder produced one, matching the conventional default a
// freshly-imaged host without a persisted hostname would carry.
const fallbackHostname = "localhost.localdomain"

// ReverseResolver performs an asynchronous reverse-DNS (PTR) lookup of
// addr, invoking done exactly once with the result. The returned
// CancelFunc lets the caller abandon interest in the result; a
// well-behaved implementation still completes the lookup (so a later
// identical request can be served from cache) but must not be required
// to — the pipeline never trusts a cancelled lookup's result even if
// done still fires.
type ReverseResolver interface {
	LookupPTR(addr string, done func(hostname string, ok bool)) CancelFunc
}

// HostnamePipeline is component H: it resolves the system hostname
// through a fixed precedence ladder and pushes the winner to the
// settings store, DNS manager, kernel and dispatcher hook.
//
// Ladder, most to least preferred:
//  1. the manager's configured hostname property
//  2. the DHCP-supplied hostname on the best IPv4 device
//  3. a reverse-DNS lookup of the best IPv4 device's primary address
//  4. the DHCP-supplied hostname (or, failing that, a reverse-DNS
//     lookup of the primary address) on the best IPv6 device, but
//     only when no IPv4 device is in play at all
//  5. the hostname captured from the kernel at pipeline construction
//  6. fallbackHostname, if even that was never set
//
// Rungs 3 and 4's reverse lookup are the pipeline's asynchronous
// steps: they are cancellable, and a result that arrives after the
// pipeline has moved on (disposed, or superseded by a newer Update) is
// discarded rather than applied.
type HostnamePipeline struct {
	mu sync.Mutex

	manager    Manager
	store      SettingsStore
	dns        DNSManager
	kernel     KernelHostnameSetter
	resolver   ReverseResolver
	dispatcher DispatcherHook

	origHostname string

	generation  uint64
	cancelPTR   CancelFunc
	disposed    bool
	lastApplied string
}

// NewHostnamePipeline builds the hostname pipeline, capturing the
// kernel's current hostname (rung 5's fallback) once up front.
func NewHostnamePipeline(manager Manager, store SettingsStore, dns DNSManager, kernel KernelHostnameSetter, resolver ReverseResolver, dispatcher DispatcherHook) *HostnamePipeline {
	h := &HostnamePipeline{manager: manager, store: store, dns: dns, kernel: kernel, resolver: resolver, dispatcher: dispatcher}
	if kernel != nil {
		if name, err := kernel.GetHostname(); err == nil {
			name = strings.TrimSpace(name)
			if name != "" && name != "localhost" && name != fallbackHostname {
				h.origHostname = name
			}
		}
	}
	return h
}

// Update re-runs the precedence ladder given the current best v4/v6
// devices (as chosen by the default-route arbiter). A nil device for a
// family means no eligible device currently exists for it.
func (h *HostnamePipeline) Update(bestV4, bestV6 Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}

	h.generation++
	gen := h.generation
	h.cancelPendingLocked()

	if name, ok := h.manager.Hostname(); ok && name != "" {
		h.applyLocked(name)
		return
	}

	if bestV4 != nil {
		if cfg := bestV4.IPv4Config(); cfg.Present() {
			if name := strings.TrimSpace(cfg.DHCPHostname); name != "" {
				h.applyLocked(name)
				return
			}
			if cfg.PrimaryAddress != "" {
				h.startReverseLookupLocked(gen, cfg.PrimaryAddress)
				return
			}
		}
	}

	if bestV4 == nil && bestV6 != nil {
		if cfg := bestV6.IPv6Config(); cfg.Present() {
			if name := strings.TrimSpace(cfg.DHCPHostname); name != "" {
				h.applyLocked(name)
				return
			}
			if cfg.PrimaryAddress != "" {
				h.startReverseLookupLocked(gen, cfg.PrimaryAddress)
				return
			}
		}
	}

	h.applyFallbackLocked()
}

// startReverseLookupLocked kicks off the reverse-DNS rung. The
// callback only applies its result if this pipeline hasn't been
// disposed and no newer Update has superseded the generation the
// lookup was started under.
func (h *HostnamePipeline) startReverseLookupLocked(gen uint64, addr string) {
	h.cancelPTR = h.resolver.LookupPTR(addr, func(hostname string, ok bool) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.disposed || gen != h.generation {
			return
		}
		if ok && hostname != "" {
			h.applyLocked(hostname)
			return
		}
		h.applyFallbackLocked()
	})
}

// applyFallbackLocked applies the last two rungs of the ladder: the
// hostname captured at construction, or the hard-coded literal if even
// that was never available.
func (h *HostnamePipeline) applyFallbackLocked() {
	if h.origHostname != "" {
		h.applyLocked(h.origHostname)
		return
	}
	h.applyLocked(fallbackHostname)
}

func (h *HostnamePipeline) cancelPendingLocked() {
	if h.cancelPTR != nil {
		h.cancelPTR()
		h.cancelPTR = nil
	}
}

// applyLocked pushes a changed hostname out to every collaborator: the
// DNS manager immediately, then the settings store as the durable
// commit, falling back to setting the kernel hostname directly only if
// the store has no way to commit it (e.g. no hostnamed proxy
// available). The dispatcher hook fires once the winning name changes,
// independent of which path actually committed it.
func (h *HostnamePipeline) applyLocked(name string) {
	if name == h.lastApplied {
		return
	}
	h.lastApplied = name
	h.dns.SetHostname(name)

	if h.store != nil {
		h.store.SetTransientHostname(name, func(err error) {
			if err != nil {
				h.fallBackToKernel(name, err)
			}
		})
	} else {
		h.fallBackToKernel(name, nil)
	}

	if h.dispatcher != nil {
		h.dispatcher.Call("hostname")
	}
}

func (h *HostnamePipeline) fallBackToKernel(name string, storeErr error) {
	if storeErr != nil {
		logging.Warn("hostname pipeline: settings store commit failed", "hostname", name, "error", storeErr)
	}
	if h.kernel == nil {
		return
	}
	if err := h.kernel.SetHostname(name); err != nil {
		logging.Warn("hostname pipeline: kernel sethostname failed",
			"hostname", name, "error", polerrors.Wrap(err, polerrors.KindUnavailable, "sethostname"))
	}
}

// Dispose permanently stops the pipeline: no pending or future
// reverse-DNS result will ever be applied again, even one already in
// flight when Dispose is called.
func (h *HostnamePipeline) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed = true
	h.cancelPendingLocked()
}
