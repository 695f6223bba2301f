package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/export"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

var exportLimit int

var exportCmd = &cobra.Command{
	Use:   "export <output.xlsx>",
	Short: "Export golden records to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, err := registry.Load(cfg.Registry.Path)
		if err != nil {
			return err
		}

		records, err := st.ListRecords(ctx, exportLimit)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if err := export.Workbook(args[0], reg, records); err != nil {
			return err
		}

		zap.L().Info("exported records",
			zap.Int("count", len(records)),
			zap.String("path", args[0]))
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max records to export")
	rootCmd.AddCommand(exportCmd)
}
