package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/infrastructure/di"
)

var compareConnections string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare table schemas across connections",
	Args:  cobra.NoArgs,
	RunE:  runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVarP(&compareConnections, "connections", "c", "", "Comma-separated connection names (default: all)")
	compareCmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
}

func runCompare(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	return withContainer(cmd.Context(), func(c *di.Container) error {
		report, err := c.Engine.CompareSchemas(cmd.Context(), splitNames(compareConnections))
		if err != nil {
			return err
		}
		if output == "json" {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		return printReport(cmd.OutOrStdout(), report)
	})
}

func printReport(w io.Writer, report *schema.Report) error {
	for _, e := range report.Errors {
		fmt.Fprintf(w, "! %s could not be described: %s: %s\n", e.Connection, e.Kind, e.Message)
	}
	if !report.HasDifferences() {
		fmt.Fprintf(w, "%d table(s) identical across %s\n", len(report.Tables), strings.Join(report.Connections, ", "))
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TABLE\tCOLUMN\tDIFFERENCE")
	for _, t := range report.Tables {
		if t.Consistent() {
			continue
		}
		if len(t.MissingIn) > 0 {
			fmt.Fprintf(tw, "%s\t\tmissing in %s\n", t.Name, strings.Join(t.MissingIn, ", "))
		}
		for _, col := range t.Columns {
			if len(col.MissingIn) > 0 {
				fmt.Fprintf(tw, "%s\t%s\tmissing in %s\n", t.Name, col.Name, strings.Join(col.MissingIn, ", "))
			}
			if col.TypeMismatch {
				types := make([]string, 0, len(col.PresentIn))
				for _, conn := range col.PresentIn {
					types = append(types, conn+"="+col.Types[conn])
				}
				fmt.Fprintf(tw, "%s\t%s\ttype mismatch: %s\n", t.Name, col.Name, strings.Join(types, " "))
			}
		}
	}
	return tw.Flush()
}
