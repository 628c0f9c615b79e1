package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcall/cli/internal/config"
	"github.com/BioHazard786/warpcall/cli/internal/ui"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|room-link>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a call room by its ID or by the link printed by "warpcall start".

Examples:
  warpcall join K7Q2M9XA
  warpcall join https://call.example.com/r/K7Q2M9XA --camera cam.ivf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := config.ParseRoom(args[0])
		if err != nil {
			return err
		}

		if err := validateMedia(); err != nil {
			return err
		}

		ctx := cmd.Context()
		cc, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cc.Close()

		stopSpinner := ui.RunConnectionSpinner("Joining room " + room + "...")
		err = cc.session.Join(ctx, room)
		stopSpinner()
		if err != nil {
			return err
		}
		ui.PrintSuccessf("Joined room %s", room)

		return cc.run(ctx, room)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
