package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/protocol"
)

// recipeWindow is how long each recipe query listens for responses before
// moving to the next slot.
const recipeWindow = 250 * time.Millisecond

func newListRecipesCmd() *cobra.Command {
	cfg := &deviceConfig{}
	var profile uint8
	cmd := &cobra.Command{
		Use:   "list-recipes",
		Short: "List recipes stored in the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			tap, cancel := sess.Tap()
			defer cancel()

			for recipe := 0; recipe <= 0xFF; recipe++ {
				req := protocol.RecipeQuantityRequest{Profile: profile, Recipe: byte(recipe)}
				if err := sess.Write(ctx, req); err != nil {
					return err
				}
				window := time.After(recipeWindow)
			drain:
				for {
					select {
					case out, ok := <-tap:
						if !ok {
							return nil
						}
						// monitor reports ride the same stream; only raw
						// bodies are recipe answers
						if out.Kind == driver.OutputPacket && out.Resp != nil && out.Resp.State == nil {
							fmt.Printf("recipe %3d: %s\n", recipe, out.Packet.Hex())
						}
					case <-window:
						break drain
					case <-ctx.Done():
						return nil
					}
				}
			}
			return nil
		},
	}
	addDeviceFlags(cmd, cfg)
	cmd.Flags().Uint8Var(&profile, "profile", 1, "Profile slot to enumerate")
	return cmd
}
