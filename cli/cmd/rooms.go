package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcall/cli/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the rooms open on the relay",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cc, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cc.Close()

		fmt.Println()
		ui.RenderRoomList(cc.session.Rooms(), cc.cfg.GetRoomLink)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
