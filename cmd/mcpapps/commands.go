package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcpapps/mcpapps/internal/app"
	"github.com/mcpapps/mcpapps/internal/devserver"
	"github.com/mcpapps/mcpapps/internal/domain"
)

func newSyncCmd(opts *cliOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Regenerate registration code, types and manifest",
		Long: heredoc.Doc(`
			Collect every declared tool, resource and prompt and rewrite the
			generated files. Files whose content is unchanged are left alone.

			With --check nothing is written; the command prints a diff of the
			stale files and exits with status 1.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := opts.project(cmd.Context())
			if err != nil {
				return err
			}
			result, err := project.Sync(cmd.Context(), app.SyncOptions{Check: check})
			if errors.Is(err, app.ErrStale) {
				fmt.Fprint(cmd.OutOrStdout(), result.Diff)
				fmt.Fprintf(cmd.ErrOrStderr(), "%s generated files are stale: %s\n", color.YellowString("warning:"), strings.Join(result.Stale, ", "))
				return exitSilent(1)
			}
			if err != nil {
				return err
			}
			printSummary(cmd, result.Registry)
			for _, path := range result.Written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("wrote"), path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "report stale generated files without writing")
	return cmd
}

func newBuildCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Prebuild ui documents and embed them in the generated code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := opts.project(cmd.Context())
			if err != nil {
				return err
			}
			result, err := project.Build(cmd.Context())
			if err != nil {
				return err
			}
			for _, path := range result.Documents {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.CyanString("built"), path)
			}
			for _, path := range result.Written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("wrote"), path)
			}
			return nil
		},
	}
}

func newDevCmd(opts *cliOptions) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the server with live preview",
		Long: heredoc.Doc(`
			Sync the project, then run dev.command (default: go run .) with
			MCPAPPS_DEV set so the server hosts the preview on
			dev.listenAddress. Changes to Go declarations re-sync and restart
			the server; ui changes are rebuilt on the next request.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := opts.project(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("open") {
				project.Config.Dev.OpenBrowser = open
			}
			return project.Supervise(cmd.Context(), opts.configPath)
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the preview in a browser")
	return cmd
}

func newListCmd(opts *cliOptions) *cobra.Command {
	format := app.FormatTable
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered tools, resources and prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := opts.project(cmd.Context())
			if err != nil {
				return err
			}
			return project.List(cmd.Context(), cmd.OutOrStdout(), format, devserver.IframePath)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", format, "output format ("+strings.Join(app.ListFormats, "|")+")")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mcpapps version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "mcpapps", app.VersionString())
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, reg domain.Registry) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%d tools, %d resources, %d prompts\n", len(reg.Tools), len(reg.Resources), len(reg.Prompts))
}
