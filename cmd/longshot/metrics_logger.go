package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/FlorentCollin/longshot/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_rx", snap.FramesRx,
					"frames_tx", snap.FramesTx,
					"malformed", snap.Malformed,
					"status_polls", snap.StatusPolls,
					"tap_dropped", snap.TapDropped,
					"orders_accepted", snap.OrdersAccepted,
					"orders_completed", snap.OrdersCompleted,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
