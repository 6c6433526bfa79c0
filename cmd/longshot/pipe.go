package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/pipedrv"
)

// newPipeCmd is the hidden child end of the subprocess transport: framed
// packets on stdin/stdout, logs on stderr.
func newPipeCmd() *cobra.Command {
	cfg := &deviceConfig{}
	cmd := &cobra.Command{
		Use:    pipedrv.PipeCommand,
		Short:  "Used to communicate with the device",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			drv, err := directDriver(ctx, cfg.deviceName)
			if err != nil {
				return err
			}
			defer drv.Close()
			return pipedrv.Serve(ctx, drv, os.Stdin, os.Stdout)
		},
	}
	addDeviceFlags(cmd, cfg)
	return cmd
}
