package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/fitbind/internal/api"
	"github.com/jackzampolin/fitbind/internal/partition"
	"github.com/jackzampolin/fitbind/internal/pdfdoc"
)

var planFlags runFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how documents map onto the table of contents",
	Long: `Plan pairs the sorted source PDFs with the table-of-contents entries by
position and prints the resulting sections with each document's page
count, without rendering anything.
Use it to spot a table of contents that is out of step with the folder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		_, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := planFlags.apply(cmd, mgr); err != nil {
			return err
		}
		cfg := mgr.Get()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		docs, tree, err := loadInputs(cfg, logger)
		if err != nil {
			return err
		}

		plan := api.Plan{Result: partition.Partition(docs, tree), Pages: make(map[string]int, len(docs))}
		toolkit := pdfdoc.New(pdfdoc.Config{Logger: logger})
		for _, d := range docs {
			n, err := toolkit.PageCount(d.Path)
			if err != nil {
				logger.Warn("failed to count pages", "file", d.Name, "error", err)
				continue
			}
			plan.Pages[d.Name] = n
			plan.TotalPages += n
		}

		if api.IsStructuredOutput() {
			return api.Output(plan)
		}
		api.WritePlan(os.Stdout, plan)
		return nil
	},
}

func init() {
	planFlags.register(planCmd)
	rootCmd.AddCommand(planCmd)
}
