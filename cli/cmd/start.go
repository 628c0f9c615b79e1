package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcall/cli/internal/ui"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"s"},
	Short:   "Start a new room and wait for others to join",
	Long: `Start a new call room and print its ID and link.

Examples:
  warpcall start --camera cam.ivf --audio mic.ogg
  warpcall start --domain call.example.com --name alice
  warpcall start --relay --turn turn.example.com -u user -p pass`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateMedia(); err != nil {
			return err
		}

		ctx := cmd.Context()

		cc, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cc.Close()

		sp := ui.NewWaitingSpinner("Creating room...")
		sp.Start()
		room, err := cc.session.Start(ctx)
		sp.Stop()
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(ui.NewRoomInfo(room, cc.cfg.GetRoomLink(room)).View())
		fmt.Println()

		return cc.run(ctx, room)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
