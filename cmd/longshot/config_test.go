package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func newFlaggedServerCmd(cfg *serverConfig) *cobra.Command {
	cmd := &cobra.Command{Use: "server", RunE: func(*cobra.Command, []string) error { return nil }}
	addServerFlags(cmd, cfg)
	return cmd
}

func validServerConfig() *serverConfig {
	return &serverConfig{
		endpoint: "broker.example.com",
		clientID: "longshot",
		topicIn:  "orders/in/+",
		topicOut: "orders/status",
		caFile:   "ca.pem",
		certFile: "cert.pem",
		keyFile:  "key.pem",
	}
}

func TestServerConfigValidate(t *testing.T) {
	if err := validServerConfig().validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*serverConfig)
	}{
		{"missing_endpoint", func(c *serverConfig) { c.endpoint = "" }},
		{"missing_topic_in", func(c *serverConfig) { c.topicIn = "" }},
		{"missing_topic_out", func(c *serverConfig) { c.topicOut = "" }},
		{"missing_ca", func(c *serverConfig) { c.caFile = "" }},
		{"missing_cert", func(c *serverConfig) { c.certFile = "" }},
		{"missing_key", func(c *serverConfig) { c.keyFile = "" }},
		{"negative_metrics_interval", func(c *serverConfig) { c.logMetricsEvery = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validServerConfig()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTurnOnConflictsWithAllowOff(t *testing.T) {
	cfg := &deviceConfig{}
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	addDeviceFlags(cmd, cfg)
	cmd.SetArgs([]string{"--device-name", "sim-1", "--turn-on", "--allow-off"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected mutual-exclusion error")
	}
}

func TestDeviceNameRequired(t *testing.T) {
	cfg := &deviceConfig{}
	cmd := &cobra.Command{Use: "x", RunE: func(*cobra.Command, []string) error { return nil }}
	addDeviceFlags(cmd, cfg)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing-flag error")
	}
}
