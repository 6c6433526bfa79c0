package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/bt"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all supported devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := bt.Scan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", res.Name, res.ID)
			return nil
		},
	}
}
