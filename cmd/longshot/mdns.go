package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType advertises the running gateway so LAN tooling can find it.
const mdnsServiceType = "_longshot._tcp"

// startMDNS registers the gateway via mDNS and returns a cleanup function.
// It is safe to call even if disabled (no-op). The advertised port is the
// metrics listener when configured.
func startMDNS(ctx context.Context, cfg *serverConfig, deviceName string) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("longshot-%s", host)
	}
	port := 0
	if cfg.metricsAddr != "" {
		if _, p, err := net.SplitHostPort(cfg.metricsAddr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				port = pn
			}
		}
	}
	if port == 0 {
		return nil, fmt.Errorf("mdns advertisement needs --metrics-addr with an explicit port")
	}
	meta := []string{
		"device=" + deviceName,
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
