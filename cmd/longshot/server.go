package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/logging"
	"github.com/FlorentCollin/longshot/internal/metrics"
	"github.com/FlorentCollin/longshot/internal/mqttgw"
)

func newServerCmd() *cobra.Command {
	devCfg := &deviceConfig{}
	srvCfg := &serverConfig{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept brew orders from the message bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnvOverrides(srvCfg, cmd); err != nil {
				return err
			}
			if err := srvCfg.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			l := logging.L()
			l.Info("build_info", "version", version, "commit", commit, "date", date)

			startMetricsLogger(ctx, srvCfg.logMetricsEvery, l)
			if srvCfg.metricsAddr != "" {
				metrics.InitBuildInfo(version, commit, date)
				srvHTTP := metrics.StartHTTP(srvCfg.metricsAddr)
				defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
			}

			gw := mqttgw.New(mqttgw.Config{
				Endpoint: srvCfg.endpoint,
				ClientID: srvCfg.clientID,
				TopicIn:  srvCfg.topicIn,
				TopicOut: srvCfg.topicOut,
				CAFile:   srvCfg.caFile,
				CertFile: srvCfg.certFile,
				KeyFile:  srvCfg.keyFile,
				DeviceID: devCfg.deviceName,
				// Each order gets its own subprocess-isolated connection.
			}, resolveDriver)

			gwDone := make(chan struct{})
			metrics.SetReadinessFunc(func() bool {
				select {
				case <-gwDone:
					return false
				default:
					return ctx.Err() == nil
				}
			})

			cleanupMDNS, err := startMDNS(ctx, srvCfg, devCfg.deviceName)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
			} else {
				defer cleanupMDNS()
			}

			defer close(gwDone)
			return gw.Run(ctx)
		},
	}
	addDeviceFlags(cmd, devCfg)
	addServerFlags(cmd, srvCfg)
	return cmd
}
