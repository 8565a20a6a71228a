package main

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcpapps/mcpapps/internal/app"
)

type cliOptions struct {
	root       string
	configPath string
	logLevel   string
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		root:     ".",
		logLevel: "info",
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "mcpapps",
		Short: "Discover, generate and preview MCP tools with UIs",
		Long: heredoc.Doc(`
			mcpapps scans a Go project for tools, resources and prompts declared
			with the mcpapps runtime and keeps the generated registration code,
			type declarations and manifest in sync with them.

			UI-bearing tools pair a Go declaration with a sibling .tsx or .jsx
			file that is bundled with esbuild, either on demand during
			development or ahead of time by mcpapps build.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)
			logger, err := newLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.root, "root", opts.root, "project root")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default <root>/mcpapps.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newSyncCmd(&opts),
		newBuildCmd(&opts),
		newDevCmd(&opts),
		newListCmd(&opts),
		newVersionCmd(),
	)

	return root
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "root":
			opts.root, _ = flags.GetString("root")
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "log-level":
			opts.logLevel, _ = flags.GetString("log-level")
		}
	})
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func (o *cliOptions) project(ctx context.Context) (*app.Project, error) {
	return app.InitializeProject(ctx, app.ProjectOptions{
		Root:       o.root,
		ConfigPath: o.configPath,
	}, app.LoggingConfig{Logger: o.logger})
}
