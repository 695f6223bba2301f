package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/markbunyevacz/lambda-extract/internal/search"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over extracted records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		idx, err := search.NewSQLite(cfg.Search.Path)
		if err != nil {
			return err
		}
		defer idx.Close() //nolint:errcheck
		if err := idx.Migrate(ctx); err != nil {
			return err
		}

		hits, err := idx.Search(ctx, args[0], searchLimit)
		if err != nil {
			return eris.Wrap(err, "search")
		}
		if len(hits) == 0 {
			fmt.Fprintln(os.Stderr, "No matches.")
			return nil
		}

		formatHits(os.Stdout, hits)
		return nil
	},
}

func formatHits(w io.Writer, hits []search.Hit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tDOCUMENT\tSOURCE\tCONFIDENCE")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", h.TaskID, h.Title, h.SourceName, h.Confidence)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "max hits to return")
	rootCmd.AddCommand(searchCmd)
}
