package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/fitbind/internal/api"
	"github.com/jackzampolin/fitbind/internal/toc"
)

var tocCmd = &cobra.Command{
	Use:   "toc [file]",
	Short: "Parse and print a table of contents",
	Long: `Toc parses a table of contents, either the configured one or the given
file, and prints the sections with the position of every entry.

Markdown lists ("- Section:" with indented "  - Entry" items) and YAML or
JSON documents ({sections: [{title, entries}]}) are accepted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			_, mgr, err := loadConfig()
			if err != nil {
				return err
			}
			path = mgr.Get().TOCPath()
		}

		tree, err := toc.Load(path)
		if err != nil {
			return err
		}
		if api.IsStructuredOutput() {
			return api.Output(tree)
		}
		api.WriteTOC(os.Stdout, tree)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tocCmd)
}
