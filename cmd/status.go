package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/silver"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline run history",
	Long:  "Displays the step log and the current bronze watermark.",
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

		watermark, err := st.Watermark(ctx, silver.Pipeline)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		steps, err := st.ListSteps(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(steps) == 0 {
			zap.L().Info("no steps logged yet, run 'ems-pipeline run' to load data",
				zap.Int64("watermark", watermark))
			return nil
		}

		fmt.Printf("watermark (%s): %d\n\n", silver.Pipeline, watermark)
		formatStepEntries(os.Stdout, steps)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStepEntries writes a tabular representation of step log entries to w.
func formatStepEntries(out io.Writer, steps []model.StepLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tSTEP\tSTATUS\tSTARTED\tDURATION\tIN\tOUT\tREJECT\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t----\t------\t-------\t--------\t--\t---\t------\t-----")

	for _, s := range steps {
		dur := "-"
		if s.EndedAt != nil {
			dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}

		errMsg := ""
		if s.ErrorMessage != "" {
			errMsg = truncate(s.ErrorMessage, 60)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID,
			s.RunID,
			s.StepName,
			s.Status,
			s.StartedAt.Format("2006-01-02 15:04"),
			dur,
			s.RowsIn,
			s.RowsOut,
			s.RowsReject,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
