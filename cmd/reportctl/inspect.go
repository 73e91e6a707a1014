package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"disc-report/internal/pdfmerge"
)

func newInspectCmd() *cobra.Command {
	var withText bool
	cmd := &cobra.Command{
		Use:   "inspect <report.pdf>",
		Short: "Print page count and leftover placeholders of a generated report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pdf: %w", err)
			}
			pages, err := pdfmerge.PageCount(data)
			if err != nil {
				return err
			}
			leftovers, err := pdfmerge.FindPlaceholders(data)
			if err != nil {
				return err
			}
			if leftovers == nil {
				leftovers = []string{}
			}
			out := map[string]any{
				"file":         args[0],
				"pages":        pages,
				"placeholders": leftovers,
			}
			if withText {
				text, err := pdfmerge.ExtractText(data)
				if err != nil {
					return err
				}
				out["text"] = text
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "include the extracted text")
	return cmd
}
