package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	crmbridge "github.com/goliatone/go-crmbridge"
	"github.com/goliatone/go-crmbridge/adapters/gologger"
	"github.com/goliatone/go-crmbridge/core"
)

// NewRootCmd builds the crmbridge command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "crmbridge",
		Short:        "Zoho CRM tool host",
		Long:         "crmbridge exposes Zoho CRM REST operations to tool-calling agents over MCP stdio.",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("crmbridge version %s\n", version))

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.StringArray("env-file", []string{".env"}, "Dotenv file to load (repeatable)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "", "Log format: json or text")
	flags.String("activity-dsn", "", "Activity ledger DSN (sqlite path or postgres:// URL)")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewCallCmd())
	root.AddCommand(NewRefreshCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewActivityCmd())
	return root
}

func configLoaders(cmd *cobra.Command) []core.RawConfigLoader {
	file, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringArray("env-file")
	loaders := []core.RawConfigLoader{}
	if strings.TrimSpace(file) != "" {
		loaders = append(loaders, core.FileConfigLoader{Path: file})
	}
	return append(loaders, core.NewEnvConfigLoader(envFiles...))
}

func runtimeConfig(cmd *cobra.Command) core.Config {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	dsn, _ := cmd.Flags().GetString("activity-dsn")
	return core.Config{
		Log:         core.LogConfig{Level: level, Format: format},
		ActivityDSN: dsn,
	}
}

func loadConfig(cmd *cobra.Command) (core.Config, error) {
	cfg, err := core.NewLayeredConfigProvider(configLoaders(cmd)...).Load(cmd.Context(), runtimeConfig(cmd))
	if err != nil {
		return core.Config{}, exitError(exitUsage, "configuration: %s", describeError(err))
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg core.Config) *gologger.SlogLogger {
	return gologger.NewSlogLogger(gologger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

// openBridge loads configuration and wires a bridge. Callers close it.
func openBridge(cmd *cobra.Command) (*crmbridge.Bridge, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)
	bridge, err := crmbridge.Setup(cmd.Context(), cfg,
		crmbridge.WithLogger(logger),
		crmbridge.WithLoggerProvider(gologger.NewProvider(logger)),
		crmbridge.WithVersion(cmd.Root().Version),
	)
	if err != nil {
		if core.IsConfigError(err) {
			return nil, exitError(exitUsage, "configuration: %s", describeError(err))
		}
		return nil, fmt.Errorf("starting crmbridge: %w", err)
	}
	return bridge, nil
}

// describeError renders err the way an error envelope would.
func describeError(err error) string {
	return core.Failure("", err).Message
}
