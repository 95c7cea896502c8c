// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netstate queries the kernel's real link state — via netlink
// and the raw interface flags it exposes — for the policy engine's
// device registry: whether a link is administratively and operationally
// up, and whether it currently has a master (bond/bridge/VRF) ifindex,
// which the auto-activation decider needs for its assume-probe and
// slave/master rules.
package netstate

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"go.linkpolicy.dev/engine/internal/policy"
)

// LinkQuerier reads live kernel link attributes by interface name.
type LinkQuerier struct{}

// NewLinkQuerier returns a LinkQuerier backed by the real kernel
// netlink socket.
func NewLinkQuerier() *LinkQuerier { return &LinkQuerier{} }

// Attrs looks up ifaceName's current kernel link attributes.
func (LinkQuerier) Attrs(ifaceName string) (policy.LinkAttrs, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return policy.LinkAttrs{}, fmt.Errorf("netstate: link %q: %w", ifaceName, err)
	}
	attrs := link.Attrs()

	up := attrs.Flags&unix.IFF_UP != 0 && attrs.OperState == netlink.OperUp

	return policy.LinkAttrs{
		MasterIndex: attrs.MasterIndex,
		Up:          up,
	}, nil
}

// PrimaryAddress returns the first non-loopback address netlink
// reports for ifaceName in the given address family
// (unix.AF_INET/unix.AF_INET6), for use as the hostname pipeline's
// reverse-DNS lookup target.
func (LinkQuerier) PrimaryAddress(ifaceName string, family int) (string, bool) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return "", false
	}
	addrs, err := netlink.AddrList(link, family)
	if err != nil || len(addrs) == 0 {
		return "", false
	}
	for _, a := range addrs {
		if a.IP.IsLoopback() {
			continue
		}
		return a.IP.String(), true
	}
	return "", false
}
