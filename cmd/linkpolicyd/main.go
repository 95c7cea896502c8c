// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command linkpolicyd is a thin example host wiring the policy engine
// to in-memory fakes instead of a real device manager, D-Bus settings
// store, or resolver. It exists to exercise the engine's full
// construction and event-dispatch path end to end in a dry run.
package main

import (
	"flag"
	"io"
	"os"
	"time"

	"go.linkpolicy.dev/engine/internal/dispatcher"
	"go.linkpolicy.dev/engine/internal/logging"
	"go.linkpolicy.dev/engine/internal/policy"
)

func main() {
	dispatchDir := flag.String("dispatcher-dir", "", "directory of dispatcher hook scripts to run on default-device change")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	syslogHost := flag.String("syslog-host", "", "if set, forward logs to this syslog host in addition to stderr")
	syslogPort := flag.Int("syslog-port", 514, "syslog port, used only when -syslog-host is set")
	flag.Parse()

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(*logLevel)
	if *syslogHost != "" {
		syslogCfg := logging.DefaultSyslogConfig()
		syslogCfg.Enabled = true
		syslogCfg.Host = *syslogHost
		syslogCfg.Port = *syslogPort
		writer, err := logging.NewSyslogWriter(syslogCfg)
		if err != nil {
			logging.SetDefault(logging.New(cfg))
			logging.Error("linkpolicyd: syslog forwarding disabled", "error", err)
		} else {
			cfg.Output = io.MultiWriter(os.Stderr, writer)
		}
	}
	logging.SetDefault(logging.New(cfg))

	manager := &fakeManager{}
	store := &fakeSettingsStore{profiles: make(map[string]policy.Profile)}

	var hook policy.DispatcherHook = fakeDispatcher{}
	if *dispatchDir != "" {
		hook = dispatcher.New(*dispatchDir)
	}

	engine := policy.New(policy.Config{
		Manager:    manager,
		Store:      store,
		DNS:        fakeDNSManager{},
		Firewall:   fakeFirewallManager{},
		Routes:     fakeRoutes{},
		Dispatcher: hook,
		Kernel:     &fakeKernelHostname{name: "localhost"},
		Resolver:   fakeResolver{},
		Scheduler:  policy.NewRealScheduler(),
		Metrics:    policy.NewMetrics(),
	})
	defer engine.Dispose()

	seedDemoState(manager, store)

	logging.Info("linkpolicyd dry run started")
	time.Sleep(500 * time.Millisecond)
	logging.Info("linkpolicyd dry run complete")
}

// seedDemoState registers one wired and one Wi-Fi-shaped fake device,
// each with a matching profile, and lets the engine's own idle
// activate-all task pick them up.
func seedDemoState(manager *fakeManager, store *fakeSettingsStore) {
	wired := &fakeProfile{uuid: "wired-home", display: "Wired connection 1", priority: 10, retries: policy.MaxAutoconnectRetries}
	wifi := &fakeProfile{uuid: "wifi-home", display: "Home Wi-Fi", priority: 5, retries: policy.MaxAutoconnectRetries}
	store.profiles[wired.uuid] = wired
	store.profiles[wifi.uuid] = wifi

	eth0 := &fakeDevice{
		id: "eth0", iface: "eth0", ifindex: 2,
		state: policy.DeviceStateDisconnected, permitted: true,
		v4:       &policy.IPConfig{PrimaryAddress: "192.0.2.10"},
		profiles: []policy.Profile{wired},
	}
	wlan0 := &fakeDevice{
		id: "wlan0", iface: "wlan0", ifindex: 3,
		state: policy.DeviceStateDisconnected, permitted: true,
		v4:       &policy.IPConfig{PrimaryAddress: "198.51.100.20"},
		profiles: []policy.Profile{wifi},
	}

	manager.mu.Lock()
	manager.devices = append(manager.devices, eth0, wlan0)
	obs := append([]policy.ManagerObserver(nil), manager.obs...)
	manager.mu.Unlock()

	for _, o := range obs {
		o.OnDeviceAdded(eth0)
		o.OnDeviceAdded(wlan0)
	}
}
