package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/report"
)

var (
	reportRunID string
	reportOut   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a run's daily summary to a workbook",
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

		summary, err := st.ListDailySummary(ctx, reportRunID)
		if err != nil {
			return eris.Wrap(err, "report")
		}
		steps, err := st.ListSteps(ctx)
		if err != nil {
			return eris.Wrap(err, "report")
		}

		if err := report.WriteRunReport(reportOut, summary, steps); err != nil {
			return err
		}

		zap.L().Info("report written",
			zap.String("path", reportOut),
			zap.String("run_id", reportRunID),
			zap.Int("summary_rows", len(summary)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "run to report on (required)")
	_ = reportCmd.MarkFlagRequired("run-id")
	reportCmd.Flags().StringVar(&reportOut, "out", "run-report.xlsx", "output workbook path")
	rootCmd.AddCommand(reportCmd)
}
