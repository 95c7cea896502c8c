// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

// DefaultArbiter is component E: for each address family it decides
// which device/session carries the default route and top DNS
// priority, and drives DNSManager/FirewallManager so exactly one
// "default" exists per family at a time.
type DefaultArbiter struct {
	dns      DNSManager
	firewall FirewallManager
	routes   DefaultRouteManager

	lastDefault [2]Device
}

// NewDefaultArbiter builds the default-route/DNS arbiter.
func NewDefaultArbiter(dns DNSManager, firewall FirewallManager, routes DefaultRouteManager) *DefaultArbiter {
	return &DefaultArbiter{dns: dns, firewall: firewall, routes: routes}
}

// Update re-runs the arbitration for family across devices, bracketing
// every DNS mutation between a single BeginUpdates/EndUpdates pair so
// intermediate states never reach the resolver. requireFullyActivated
// should be true during steady-state recomputation and false while a
// device is still mid-activation and eligible to "jump the queue" as
// the best not-yet-final candidate. It returns the effective default
// device for family, or nil if none was chosen.
func (a *DefaultArbiter) Update(devices []Device, family Family, requireFullyActivated bool, tag string) Device {
	a.dns.BeginUpdates(tag)
	defer a.dns.EndUpdates(tag)
	return a.updateLocked(devices, family, requireFullyActivated)
}

// updateLocked is Update's body without its own begin/end bracket, so
// a caller updating several families at once (the DNS update driver)
// can wrap them all in a single bracket instead of flapping the
// resolver once per family.
func (a *DefaultArbiter) updateLocked(devices []Device, family Family, requireFullyActivated bool) Device {
	best, session, ok := a.routes.BestDevice(devices, family, requireFullyActivated, a.lastDefault[family])
	a.clearOthersDefault(devices, session, family)

	if !ok {
		a.lastDefault[family] = nil
		return nil
	}

	cfg, hasCfg := a.routes.BestIPConfig(family, false)
	if hasCfg && cfg.Present() {
		switch family {
		case FamilyV4:
			a.dns.AddV4Config(best.IfaceName(), cfg, "default")
		case FamilyV6:
			a.dns.AddV6Config(best.IfaceName(), cfg, "default")
		}
	}

	effective := best
	if vpn, ok := a.routes.BestVPNSession(family); ok {
		effective = a.applyVPNDefault(vpn, family, best)
	}

	setSessionDefault(session, family, true)
	a.lastDefault[family] = effective
	a.firewall.UpdateFirewallZone(effective)
	return effective
}

// clearOthersDefault clears the default flag for family on the active
// request of every device in devices except keep. Only sessions reached
// through those devices are touched; a session that is not the active
// request of a listed device (such as a VPN session) keeps whatever
// flag it has.
func (a *DefaultArbiter) clearOthersDefault(devices []Device, keep ActiveSession, family Family) {
	for _, dev := range devices {
		session, ok := dev.ActiveRequest()
		if !ok || session == keep {
			continue
		}
		setSessionDefault(session, family, false)
	}
}

// applyVPNDefault layers vpn's per-family IP config on top of base's
// default-route selection. A VPN session not yet bound to a carrying
// device is late-bound to base here, once the default-route
// arbitration has actually chosen one; the returned device becomes
// the effective default device for family in place of base.
func (a *DefaultArbiter) applyVPNDefault(vpn VPNSession, family Family, base Device) Device {
	var cfg *IPConfig
	switch family {
	case FamilyV4:
		cfg = vpn.IPv4Config()
	case FamilyV6:
		cfg = vpn.IPv6Config()
	}
	if !cfg.Present() {
		return base
	}

	dev, hasDev := vpn.Device()
	if !hasDev {
		vpn.BindDevice(base)
		dev = base
	}

	iface := "vpn"
	if dev != nil {
		iface = dev.IfaceName()
	}
	switch family {
	case FamilyV4:
		a.dns.AddV4Config(iface, cfg, "vpn")
	case FamilyV6:
		a.dns.AddV6Config(iface, cfg, "vpn")
	}
	return dev
}

func setSessionDefault(session ActiveSession, family Family, value bool) {
	if session == nil {
		return
	}
	switch family {
	case FamilyV4:
		session.SetDefaultV4(value)
	case FamilyV6:
		session.SetDefaultV6(value)
	}
}
