package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperterse/fanout/core/config"
	"github.com/hyperterse/fanout/core/infrastructure/di"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// version stores the version string, set via SetVersion()
var version = "dev"

// SetVersion sets the version string (called from main.init())
func SetVersion(v string) {
	version = v
}

// GetVersion returns the current version string
func GetVersion() string {
	return version
}

var (
	configFile  string
	logLevel    int
	verbose     bool
	logTags     string
	logFile     bool
	showVersion bool
	output      string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Run one query against many databases and merge the results",
	Long: `fanout registers connections to several PostgreSQL, MySQL and SQLite
databases, runs the same query against any subset of them in parallel and
combines the results by stacking rows (union) or joining on a key column.`,
	SilenceUsage:      true,
	SilenceErrors:     true, // Errors are logged once by cli.Execute
	PersistentPreRunE: setup,
}

// completionCmd is a hidden command used to generate shell completions
var completionCmd = &cobra.Command{
	Use:          "completion [bash|zsh|fish|powershell]",
	Short:        "Generate shell completion script",
	Hidden:       true,
	ValidArgs:    []string{"bash", "zsh", "fish", "powershell"},
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(completionCmd)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the installed version and exit")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a fanout.yaml config file (default: ./fanout.yaml when present)")
	flags.IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config)")
	flags.BoolVar(&verbose, "verbose", false, "Enable verbose logging (sets log level to DEBUG)")
	flags.StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides FANOUT_LOG_TAGS")
	flags.BoolVar(&logFile, "log-file", false, "Stream logs to file in /tmp/.fanout/logs/")

	// Root command should only print help.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return cmd.Help()
	}
}

// setup loads .env files and the config, then configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	envDir := ""
	if configFile != "" {
		envDir = filepath.Dir(configFile)
	}
	config.LoadEnvFiles(envDir)

	loaded, err := config.Load(configFile)
	if err != nil {
		return logging.WithTag("config", err)
	}
	cfg = loaded

	switch {
	case verbose:
		logging.SetLogLevel(logging.LogLevelDebug)
	case logLevel > 0:
		logging.SetLogLevel(logLevel)
	default:
		logging.SetLogLevel(cfg.LogLevel)
	}

	tagFilter := logTags
	if tagFilter == "" {
		tagFilter = cfg.LogTags
	}
	logging.SetTagFilter(tagFilter)

	if logFile {
		path, err := logging.SetLogFile()
		if err != nil {
			return fmt.Errorf("failed to initialize log file: %w", err)
		}
		logging.New("cli").Infof("Log file: %s", path)
	}
	return nil
}

// withContainer builds the engine for one command and closes it afterwards.
func withContainer(ctx context.Context, fn func(*di.Container) error) error {
	if cfg == nil {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	c, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return logging.WithTag("di", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logging.New("di").Warnf("Error closing connections: %v", err)
		}
	}()
	return fn(c)
}

func validateOutput() error {
	switch output {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format '%s' (expected table or json)", output)
	}
}

