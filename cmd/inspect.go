package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markbunyevacz/lambda-extract/internal/dedupe"
	"github.com/markbunyevacz/lambda-extract/internal/extract"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <datasheet.pdf>",
	Short: "Validate a PDF and show its fingerprint without processing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if err := extract.Preflight(path); err != nil {
			return err
		}
		pages, err := extract.PageCount(path)
		if err != nil {
			return err
		}
		fp, err := dedupe.Fingerprint(path)
		if err != nil {
			return err
		}

		fmt.Printf("File:        %s\n", path)
		fmt.Printf("Pages:       %d\n", pages)
		fmt.Printf("Fingerprint: %s\n", fp)

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		known, err := st.Lookup(cmd.Context(), fp)
		if err != nil {
			return err
		}
		fmt.Printf("Processed:   %v\n", known)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
