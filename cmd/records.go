package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/markbunyevacz/lambda-extract/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored golden records",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List golden records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := st.ListRecords(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "records list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatRecordsList(os.Stdout, records)
		return nil
	},
}

// -- records show --

var recordsShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show the full golden record for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "records show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- records stats --

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize processed documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.CountFingerprints(ctx)
		if err != nil {
			return eris.Wrap(err, "records stats")
		}
		fmt.Printf("Processed documents: %d\n", n)
		return nil
	},
}

func formatRecordsList(w io.Writer, records []*model.GoldenRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tDOCUMENT\tCONFIDENCE\tFIELDS\tREVIEW\tCREATED")
	for _, rec := range records {
		review := ""
		if rec.RequiresReview {
			review = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%s\n",
			rec.TaskID, rec.Document, rec.OverallConfidence,
			len(rec.Fields), review, rec.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	recordsListCmd.Flags().Int("limit", 50, "max records to list")
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	rootCmd.AddCommand(recordsCmd)
}
