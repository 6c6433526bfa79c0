package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/session"
)

// statusRefresh paces the interactive status display; the session's own
// polling cadence bounds freshness anyway.
const statusRefresh = 250 * time.Millisecond

func newMonitorCmd() *cobra.Command {
	cfg := &deviceConfig{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor the status of the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()
			return monitor(ctx, sess)
		},
	}
	addDeviceFlags(cmd, cfg)
	return cmd
}

// monitor prints the projected status on every change until the session
// dies or the user interrupts.
func monitor(ctx context.Context, sess *session.Session) error {
	// Keep one status observer registered for the whole run so the session
	// keeps polling between display refreshes. No report projects to
	// StatusUnknown, so this wait lasts until monitor returns.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() { _ = sess.WaitForState(watchCtx, session.StatusUnknown) }()

	last := session.StatusUnknown
	for {
		status, err := sess.CurrentState(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, driver.ErrUnknown) || errors.Is(err, driver.ErrTransport) {
				return nil // session ended
			}
			return err
		}
		if status != last {
			last = status
			printStatus(status)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case <-time.After(statusRefresh):
		}
	}
}
