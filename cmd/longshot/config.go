package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// deviceConfig is the option set shared by every device-facing subcommand.
type deviceConfig struct {
	deviceName  string
	dumpPackets bool
	turnOn      bool
	allowOff    bool
}

// addDeviceFlags registers the shared device flags on cmd.
func addDeviceFlags(cmd *cobra.Command, cfg *deviceConfig) {
	cmd.Flags().StringVar(&cfg.deviceName, "device-name", "", "Name of the device")
	cmd.Flags().BoolVar(&cfg.dumpPackets, "dump-packets", false, "Dump decoded packets to the terminal for debugging")
	cmd.Flags().BoolVar(&cfg.turnOn, "turn-on", false, "Turn on the machine before running this operation")
	cmd.Flags().BoolVar(&cfg.allowOff, "allow-off", false, "Allow operating while the machine is off")
	_ = cmd.Flags().MarkHidden("allow-off")
	_ = cmd.MarkFlagRequired("device-name")
	cmd.MarkFlagsMutuallyExclusive("turn-on", "allow-off")
}

// serverConfig configures the message-bus gateway.
type serverConfig struct {
	endpoint        string
	clientID        string
	topicIn         string
	topicOut        string
	caFile          string
	certFile        string
	keyFile         string
	metricsAddr     string
	mdnsEnable      bool
	mdnsName        string
	logMetricsEvery time.Duration
}

func addServerFlags(cmd *cobra.Command, cfg *serverConfig) {
	f := cmd.Flags()
	f.StringVar(&cfg.endpoint, "endpoint", "", "Broker host (TLS, port 8883)")
	f.StringVar(&cfg.clientID, "client-id", "longshot", "Broker client identifier")
	f.StringVar(&cfg.topicIn, "topic-in", "", "Order subscription topic")
	f.StringVar(&cfg.topicOut, "topic-out", "", "Status publication topic prefix")
	f.StringVar(&cfg.caFile, "ca", "", "Broker CA certificate (PEM)")
	f.StringVar(&cfg.certFile, "cert", "", "Client certificate (PEM)")
	f.StringVar(&cfg.keyFile, "key", "", "Client private key (PEM)")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	f.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement of the gateway")
	f.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default longshot-<hostname>)")
	f.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
}

// validate performs basic semantic validation of the server configuration.
// It does not attempt to open listeners or read files - only checks values.
func (c *serverConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.topicIn == "" || c.topicOut == "" {
		return errors.New("topic-in and topic-out are required")
	}
	if c.caFile == "" || c.certFile == "" || c.keyFile == "" {
		return errors.New("ca, cert and key are required for the TLS broker")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps LONGSHOT_* environment variables to server config
// fields unless a corresponding flag was explicitly set (flag wins). Empty
// values are ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *serverConfig, cmd *cobra.Command) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	set := func(flag string) bool { return cmd.Flags().Changed(flag) }

	strFields := []struct {
		flag string
		env  string
		dst  *string
	}{
		{"endpoint", "LONGSHOT_ENDPOINT", &c.endpoint},
		{"client-id", "LONGSHOT_CLIENT_ID", &c.clientID},
		{"topic-in", "LONGSHOT_TOPIC_IN", &c.topicIn},
		{"topic-out", "LONGSHOT_TOPIC_OUT", &c.topicOut},
		{"ca", "LONGSHOT_CA", &c.caFile},
		{"cert", "LONGSHOT_CERT", &c.certFile},
		{"key", "LONGSHOT_KEY", &c.keyFile},
		{"metrics-addr", "LONGSHOT_METRICS", &c.metricsAddr},
		{"mdns-name", "LONGSHOT_MDNS_NAME", &c.mdnsName},
	}
	for _, f := range strFields {
		if set(f.flag) {
			continue
		}
		if v, ok := get(f.env); ok && v != "" {
			*f.dst = v
		}
	}
	if !set("mdns-enable") {
		if v, ok := get("LONGSHOT_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if !set("log-metrics-interval") {
		if v, ok := get("LONGSHOT_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LONGSHOT_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
