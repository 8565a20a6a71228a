package mcpapps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcpapps/mcpapps/internal/app"
)

const shutdownTimeout = 5 * time.Second

// RegisterFunc has the shape of the generated RegisterEntities.
type RegisterFunc func(server *mcp.Server, html HTMLSource) error

type Options struct {
	Name    string
	Version string
	// Register installs the project's entities, usually RegisterEntities.
	Register RegisterFunc
	// HTML serves prebuilt documents, usually BuiltHTML. When nil the
	// documents are built from the sources in the working directory.
	HTML HTMLSource
	// Plugins are appended to every ui sub-build.
	Plugins       []api.Plugin
	ServerOptions *mcp.ServerOptions
	// Logger overrides the logger built from --log-level.
	Logger *zap.Logger
}

// NewServer creates a server with every entity registered against html.
func NewServer(opts Options, html HTMLSource) (*mcp.Server, error) {
	if opts.Register == nil {
		return nil, errors.New("mcpapps: Options.Register is required")
	}
	name := opts.Name
	if name == "" {
		name = "mcpapps"
	}
	version := opts.Version
	if version == "" {
		version = "0.0.0"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, opts.ServerOptions)
	if err := opts.Register(server, html); err != nil {
		return nil, err
	}
	return server, nil
}

// HTTPHandler serves server over stateless streamable HTTP.
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// Main runs the server over stdio, or over HTTP with --http. Started by
// `mcpapps dev` it serves the preview instead. Main exits the process.
func Main(opts Options) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := Run(ctx, opts, os.Args[1:])
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Run is Main without the process exit.
func Run(ctx context.Context, opts Options, args []string) error {
	var (
		httpAddr string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:           opts.Name,
		Short:         "Serve MCP tools, resources and prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.Logger
			if logger == nil {
				built, err := newLogger(logLevel)
				if err != nil {
					return err
				}
				defer func() { _ = built.Sync() }()
				logger = built
			}
			return serve(cmd.Context(), opts, logger, httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func serve(ctx context.Context, opts Options, logger *zap.Logger, httpAddr string) error {
	if devOpts, ok := app.DevOptionsFromEnv(); ok {
		return app.RunDev(ctx, devOpts, app.LoggingConfig{Logger: logger}, func(_ context.Context, html app.HTMLFunc) (*mcp.Server, error) {
			return NewServer(opts, HTMLSourceFunc(html))
		}, opts.Plugins)
	}

	html := opts.HTML
	if html == nil {
		build, cleanup, err := app.BuildOnDemand(ctx, app.ProjectOptions{Root: "."}, app.LoggingConfig{Logger: logger}, opts.Plugins)
		if err != nil {
			return fmt.Errorf("prepare ui builds: %w", err)
		}
		defer cleanup()
		html = HTMLSourceFunc(build)
	}
	server, err := NewServer(opts, html)
	if err != nil {
		return err
	}

	if httpAddr == "" {
		err := server.Run(ctx, &mcp.StdioTransport{})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return serveHTTP(ctx, server, httpAddr, logger)
}

func serveHTTP(ctx context.Context, server *mcp.Server, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", HTTPHandler(server))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving streamable http", zap.String("addr", addr), zap.String("path", "/mcp"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
