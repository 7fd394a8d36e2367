package main

import (
	"github.com/spf13/cobra"
)

var bindFlags runFlags

var bindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Search for the best fidelity that fits the budget and bind the folder",
	Long: `Bind searches the resolution x quality grid for the highest-fidelity
configuration whose combined PDF still fits the budget, then writes it with
a bookmark outline built from the table of contents.

If even the most aggressive configuration is over budget, the folder is split
into one file per table-of-contents section and each section is searched on
its own. Documents are mapped to table-of-contents entries by position.

Examples:
  fitbind bind                              # use config.yaml in . or ~/.fitbind
  fitbind bind -s ./Bewerbung --budget-mb 5
  fitbind bind --strategy exhaustive -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _, stop, err := startSession(cmd.Context(), cmd, &bindFlags)
		if err != nil {
			return err
		}
		defer stop()

		_, err = bind(ctx, nil)
		return err
	},
}

func init() {
	bindFlags.register(bindCmd)
	rootCmd.AddCommand(bindCmd)
}
