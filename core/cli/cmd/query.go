package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/infrastructure/di"
)

var (
	queryConnections string
	queryMerge       string
	queryKey         string
	queryMaxRows     int
	queryShowRows    int
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a query against several connections",
	Long: `Run the same query, unmodified, against every selected connection in
parallel. Without --merge each connection's result is printed separately.
--merge union stacks all rows under a _source_db column; --merge join
full-outer-joins the results on --key.`,
	Example: `  fanout query "SELECT count(*) AS n FROM orders"
  fanout query "SELECT * FROM users" -c east,west --merge union
  fanout query "SELECT id, total FROM orders" -c east,west --merge join --key id --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	f := queryCmd.Flags()
	f.StringVarP(&queryConnections, "connections", "c", "", "Comma-separated connection names (default: all)")
	f.StringVarP(&queryMerge, "merge", "m", "none", "Merge strategy: none, union or join")
	f.StringVarP(&queryKey, "key", "k", "", "Join key column (required with --merge join)")
	f.IntVar(&queryMaxRows, "max-rows", 0, "Maximum rows kept per connection (0: use config)")
	f.IntVar(&queryShowRows, "rows", 20, "Rows printed per table in table output (0: all)")
	f.StringVarP(&output, "output", "o", "table", "Output format: table or json")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	if queryMaxRows > 0 {
		cfg.MaxRows = queryMaxRows
	}

	req := services.RunQueryRequest{
		Query:       args[0],
		Connections: splitNames(queryConnections),
		Merge:       queryMerge,
		JoinKey:     queryKey,
	}

	return withContainer(cmd.Context(), func(c *di.Container) error {
		resp, err := c.Engine.RunQuery(cmd.Context(), req)
		if err != nil {
			return err
		}
		if output == "json" {
			return writeJSON(cmd.OutOrStdout(), resp)
		}
		return printQueryTable(cmd.OutOrStdout(), resp)
	})
}

func printQueryTable(w io.Writer, resp *services.RunQueryResponse) error {
	if resp.MergeType == domain.MergeNone {
		for _, name := range resp.Connections {
			r := resp.Results[name]
			if !r.Success {
				fmt.Fprintf(w, "== %s: %s ==\n%s\n\n", name, r.Error.Kind, r.Error.Message)
				continue
			}
			suffix := ""
			if r.Truncated {
				suffix = ", truncated"
			}
			fmt.Fprintf(w, "== %s (%d row(s)%s) ==\n", name, r.RowCount, suffix)
			if err := writeRows(w, r.Columns, r.Rows, queryShowRows); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		return nil
	}

	if err := writeRows(w, resp.Columns, resp.Rows, queryShowRows); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d row(s) merged by %s from %d connection(s)\n", resp.RowCount, resp.MergeType, len(resp.SourceDatabases))
	for _, e := range resp.Errors {
		fmt.Fprintf(w, "  %s failed: %s: %s\n", e.Connection, e.Kind, e.Message)
	}
	return nil
}
