package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/bronze"
)

var (
	ingestCSVPath string
	ingestRunID   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a CSV extract into bronze",
	Long:  "Appends the rows of a source CSV extract to the bronze layer verbatim, with run and file lineage. No validation happens here; the silver load does that.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := bronze.ReadCSV(ingestCSVPath, ingestRunID)
		if err != nil {
			return err
		}

		inserted, err := st.InsertRaw(ctx, records)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.Int64("rows", inserted),
			zap.String("csv", ingestCSVPath),
			zap.String("run_id", ingestRunID),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCSVPath, "csv", "", "path to CSV file (required)")
	_ = ingestCmd.MarkFlagRequired("csv")
	ingestCmd.Flags().StringVar(&ingestRunID, "run-id", "", "run identifier for lineage (required)")
	_ = ingestCmd.MarkFlagRequired("run-id")
	rootCmd.AddCommand(ingestCmd)
}
