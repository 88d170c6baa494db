package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/infrastructure/di"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

var addRequest services.AddConnectionRequest
var addOptions []string

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Manage database connections",
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a database connection",
	Example: `  fanout connections add orders --kind postgres --host db1 --database orders --user app --password-env ORDERS_PW
  fanout connections add local --kind sqlite --database ./local.db --validate`,
	Args: cobra.ExactArgs(1),
	RunE: runConnectionsAdd,
}

var connectionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered connections",
	Args:    cobra.NoArgs,
	RunE:    runConnectionsList,
}

var connectionsRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a connection",
	Args:    cobra.ExactArgs(1),
	RunE:    runConnectionsRemove,
}

var connectionsValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Connect to and ping a registered database",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionsValidate,
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
	connectionsCmd.AddCommand(connectionsAddCmd, connectionsListCmd, connectionsRemoveCmd, connectionsValidateCmd)

	f := connectionsAddCmd.Flags()
	f.StringVarP(&addRequest.Kind, "kind", "k", "", "Backend kind: postgres, mysql or sqlite")
	f.StringVar(&addRequest.Host, "host", "", "Database host (default localhost)")
	f.IntVar(&addRequest.Port, "port", 0, "Database port (default 5432 for postgres, 3306 for mysql)")
	f.StringVarP(&addRequest.Database, "database", "d", "", "Database name, or file path for sqlite")
	f.StringVarP(&addRequest.User, "user", "u", "", "Database user")
	f.StringVar(&addRequest.Password, "password", "", "Database password (kept in memory only)")
	f.StringVar(&addRequest.PasswordEnv, "password-env", "", "Environment variable holding the password")
	f.StringArrayVarP(&addOptions, "option", "o", nil, "Driver option as key=value (repeatable)")
	f.BoolVar(&addRequest.Validate, "validate", false, "Ping the database right after registering it")
	_ = connectionsAddCmd.MarkFlagRequired("kind")
	_ = connectionsAddCmd.MarkFlagRequired("database")

	connectionsListCmd.Flags().StringVar(&output, "output", "table", "Output format: table or json")
}

func runConnectionsAdd(cmd *cobra.Command, args []string) error {
	req := addRequest
	req.Name = args[0]
	if len(addOptions) > 0 {
		req.Options = make(map[string]string, len(addOptions))
		for _, opt := range addOptions {
			key, value, ok := strings.Cut(opt, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid option '%s' (expected key=value)", opt)
			}
			req.Options[key] = value
		}
	}

	return withContainer(cmd.Context(), func(c *di.Container) error {
		summary, err := c.Engine.AddConnection(cmd.Context(), req)
		if err != nil && summary.Name == "" {
			return err
		}
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Registered '%s' but validation failed: %s\n", summary.Name, summary.LastError)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered '%s' (%s, %s)\n", summary.Name, summary.Kind, summary.State)
		return nil
	})
}

func runConnectionsList(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	return withContainer(cmd.Context(), func(c *di.Container) error {
		list := c.Engine.ListConnections()
		if output == "json" {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No connections registered")
			return nil
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "NAME\tKIND\tDATABASE\tHOST\tSTATE")
		for _, s := range list {
			host := s.Host
			if s.Port != 0 {
				host = fmt.Sprintf("%s:%d", host, s.Port)
			}
			if host == "" {
				host = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.Database, host, s.State)
		}
		return tw.Flush()
	})
}

func runConnectionsRemove(cmd *cobra.Command, args []string) error {
	return withContainer(cmd.Context(), func(c *di.Container) error {
		if err := c.Engine.RemoveConnection(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed '%s'\n", args[0])
		return nil
	})
}

func runConnectionsValidate(cmd *cobra.Command, args []string) error {
	return withContainer(cmd.Context(), func(c *di.Container) error {
		summary, err := c.Engine.ValidateConnection(cmd.Context(), args[0])
		if err != nil {
			return logging.WithTag("connection:"+args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Connection '%s' is %s\n", summary.Name, summary.State)
		return nil
	})
}
