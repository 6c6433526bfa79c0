package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/protocol"
	"github.com/FlorentCollin/longshot/internal/session"
)

func newBrewCmd() *cobra.Command {
	cfg := &deviceConfig{}
	cmd := &cobra.Command{
		Use:   "brew",
		Short: "Brew a coffee",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.WaitForState(ctx, session.StatusReady); err != nil {
				return err
			}
			if err := sess.Write(ctx, protocol.BrewRequest{}); err != nil {
				return err
			}
			fmt.Println("dispensing...")
			if err := sess.WaitForState(ctx, session.StatusBusy); err != nil {
				return err
			}
			if err := sess.WaitForState(ctx, session.StatusReady); err != nil {
				return err
			}
			fmt.Println("done")
			return nil
		},
	}
	addDeviceFlags(cmd, cfg)
	return cmd
}
