// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the engine's four observable properties —
// default-v4-device, default-v6-device, activating-v4-device,
// activating-v6-device — as Prometheus gauges, one time series per
// interface name currently holding that role.
type Metrics struct {
	DefaultDevice    *prometheus.GaugeVec
	ActivatingDevice *prometheus.GaugeVec

	current map[string]string // property -> iface currently set, for change-only updates
}

// NewMetrics builds the engine's Prometheus collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		DefaultDevice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkpolicy_default_device",
			Help: "Whether an interface currently carries the default route for a family (1) or not (0)",
		}, []string{"family", "iface"}),
		ActivatingDevice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkpolicy_activating_device",
			Help: "Whether an interface is currently the best not-yet-activated candidate for a family (1) or not (0)",
		}, []string{"family", "iface"}),
		current: make(map[string]string),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.DefaultDevice.Describe(ch)
	m.ActivatingDevice.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.DefaultDevice.Collect(ch)
	m.ActivatingDevice.Collect(ch)
}

// Register registers the collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

// SetDefaultDevice updates the default-device gauge for family,
// zeroing the previous holder's series first so exactly one iface (or
// none) reads 1 at a time — a no-op if iface is unchanged from the
// last call.
func (m *Metrics) SetDefaultDevice(family Family, iface string) {
	m.setGauge(m.DefaultDevice, "default:"+family.String(), family, iface)
}

// SetActivatingDevice updates the activating-device gauge for family.
func (m *Metrics) SetActivatingDevice(family Family, iface string) {
	m.setGauge(m.ActivatingDevice, "activating:"+family.String(), family, iface)
}

func (m *Metrics) setGauge(vec *prometheus.GaugeVec, key string, family Family, iface string) {
	prev, had := m.current[key]
	if had && prev == iface {
		return
	}
	if had && prev != "" {
		vec.WithLabelValues(family.String(), prev).Set(0)
	}
	if iface != "" {
		vec.WithLabelValues(family.String(), iface).Set(1)
		m.current[key] = iface
	} else {
		delete(m.current, key)
	}
}
