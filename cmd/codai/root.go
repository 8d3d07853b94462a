package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codai-ecosystem/codai"
	"github.com/codai-ecosystem/codai/config"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/mcpserver"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

// newRootCmd creates the root codai command with all subcommands attached.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "codai",
		Short:         "Knowledge graph and agent orchestration engine",
		Long:          "codai routes requests to specialised agents, runs them as scheduled tasks\nand records every intent and result in a project knowledge graph.",
		Version:       mcpserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codai {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("CODAI_CONFIG"), "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newMCPCmd(flags),
		newMessageCmd(flags),
		newGraphCmd(flags),
		newAgentsCmd(flags),
		newHistoryCmd(flags),
		newConfigCmd(flags),
	)

	return cmd
}

// loadConfig reads the configured file or falls back to the defaults.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	return cfg, nil
}

// newLogger builds the process logger. Without an explicit format, terminals
// get text output and everything else JSON.
func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "text"
		}
	}

	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = out
	lc.Component = "codai"

	return logging.NewLogger(lc), nil
}

// openApp loads configuration and starts an engine instance. The returned
// close function shuts it down.
func openApp(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (*codai.Codai, *config.Config, func(), error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, err
	}

	app, err := codai.New(ctx, func(o *codai.Options) {
		o.Config = cfg
		o.Logger = logger
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("start: %w", err)
	}

	closeFn := func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}

	return app, cfg, closeFn, nil
}
