// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

// DNSUpdateDriver is component F: it decides when the default-route
// arbitration needs to re-run for one or both families and brackets
// every resulting mutation inside a single BeginUpdates/EndUpdates
// pair, so a device event that affects both v4 and v6 default
// selection never flaps the resolver twice.
type DNSUpdateDriver struct {
	dns     DNSManager
	arbiter *DefaultArbiter
	manager Manager
}

// NewDNSUpdateDriver builds the update driver.
func NewDNSUpdateDriver(dns DNSManager, arbiter *DefaultArbiter, manager Manager) *DNSUpdateDriver {
	return &DNSUpdateDriver{dns: dns, arbiter: arbiter, manager: manager}
}

// UpdateFamily re-runs arbitration for a single family, e.g. in
// response to an IPv4-only or IPv6-only configuration change. It
// returns the effective default device the arbiter settled on.
func (d *DNSUpdateDriver) UpdateFamily(family Family, requireFullyActivated bool, tag string) Device {
	d.dns.BeginUpdates(tag)
	defer d.dns.EndUpdates(tag)
	return d.arbiter.updateLocked(d.devices(), family, requireFullyActivated)
}

// UpdateBoth re-runs arbitration for both families under one shared
// bracket — used for device add/remove/state-changed events, which can
// shift the best device for either family simultaneously. It returns
// the effective default device the arbiter settled on for each family,
// so the caller never has to re-derive it with a second query.
func (d *DNSUpdateDriver) UpdateBoth(requireFullyActivated bool, tag string) (v4, v6 Device) {
	d.dns.BeginUpdates(tag)
	defer d.dns.EndUpdates(tag)
	devices := d.devices()
	v4 = d.arbiter.updateLocked(devices, FamilyV4, requireFullyActivated)
	v6 = d.arbiter.updateLocked(devices, FamilyV6, requireFullyActivated)
	return v4, v6
}

func (d *DNSUpdateDriver) devices() []Device {
	return d.manager.Devices()
}
