package main

import (
	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/protocol"
)

func newReadParameterCmd() *cobra.Command {
	cfg := &deviceConfig{}
	var (
		id     uint16
		length uint8
	)
	cmd := &cobra.Command{
		Use:   "read-parameter",
		Short: "Read a configuration parameter from the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()
			// Parameter encodings stay an explicit unimplemented contract
			// until the id table shared with the ingredient subsystem is
			// settled; this surfaces that cleanly.
			return sess.Write(ctx, protocol.ParameterReadRequest{ID: id, Len: length})
		},
	}
	addDeviceFlags(cmd, cfg)
	cmd.Flags().Uint16Var(&id, "id", 0, "Parameter identifier")
	cmd.Flags().Uint8Var(&length, "length", 4, "Parameter length in bytes")
	return cmd
}
