package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/fitbind/internal/fidelity"
)

var (
	compressFlags   runFlags
	compressDPI     int
	compressQuality int
)

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Bind the folder at one fixed resolution and quality",
	Long: `Compress renders every document at the given DPI and JPEG quality and
binds the result. If that file is over budget, the folder is split by
section and each section gets a full grid search, as with bind.

Examples:
  fitbind compress --dpi 150 --quality 70
  fitbind compress --dpi 200 --quality 60 --deliver ./Senden`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fixed := fidelity.Configuration{DPI: compressDPI, Quality: compressQuality}
		if err := (fidelity.Grid{DPI: []int{fixed.DPI}, Quality: []int{fixed.Quality}}).Validate(); err != nil {
			return err
		}

		ctx, _, stop, err := startSession(cmd.Context(), cmd, &compressFlags)
		if err != nil {
			return err
		}
		defer stop()

		_, err = bind(ctx, &fixed)
		return err
	},
}

func init() {
	compressFlags.register(compressCmd)
	compressCmd.Flags().IntVar(&compressDPI, "dpi", 150, "render resolution")
	compressCmd.Flags().IntVar(&compressQuality, "quality", 70, "JPEG quality (1-100)")
	rootCmd.AddCommand(compressCmd)
}
