// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netstate

import (
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"go.linkpolicy.dev/engine/internal/logging"
	"go.linkpolicy.dev/engine/internal/policy"
)

// ReverseResolver issues real PTR queries against a configured
// upstream resolver, implementing policy.ReverseResolver.
type ReverseResolver struct {
	// Server is the resolver to query, host:port form (e.g.
	// "127.0.0.1:53").
	Server  string
	Timeout time.Duration
}

// NewReverseResolver returns a resolver querying server.
func NewReverseResolver(server string) *ReverseResolver {
	return &ReverseResolver{Server: server, Timeout: 3 * time.Second}
}

// LookupPTR implements policy.ReverseResolver.
func (r *ReverseResolver) LookupPTR(addr string, done func(hostname string, ok bool)) policy.CancelFunc {
	var cancelled int32

	zone, err := dns.ReverseAddr(addr)
	if err != nil {
		go done("", false)
		return func() {}
	}

	go func() {
		msg := new(dns.Msg)
		msg.SetQuestion(zone, dns.TypePTR)
		msg.RecursionDesired = true

		client := &dns.Client{Timeout: r.Timeout}
		resp, _, err := client.Exchange(msg, r.Server)

		if atomic.LoadInt32(&cancelled) != 0 {
			return
		}
		if err != nil {
			logging.Warn("netstate: reverse lookup failed", "addr", addr, "error", err)
			done("", false)
			return
		}
		if resp == nil || resp.Rcode != dns.RcodeSuccess {
			done("", false)
			return
		}
		for _, ans := range resp.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				done(trimTrailingDot(ptr.Ptr), true)
				return
			}
		}
		done("", false)
	}()

	return func() { atomic.StoreInt32(&cancelled, 1) }
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

