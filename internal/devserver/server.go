// Package devserver serves the preview application, the iframe documents
// of UI tools and a stateless protocol endpoint during development.
package devserver

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/settings"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
	"github.com/mcpapps/mcpapps/internal/preview"
	"github.com/mcpapps/mcpapps/internal/uibuild"
)

//go:embed assets/preview.html
var previewHTML []byte

const (
	publicDir       = "public"
	shutdownTimeout = 5 * time.Second
)

// RegistrySource is the collector as seen by the dev server.
type RegistrySource interface {
	Current() domain.Registry
	Subscribe(ctx context.Context) <-chan collector.Update
}

type Options struct {
	Config       domain.ProjectConfig
	Registry     RegistrySource
	Orchestrator *uibuild.Orchestrator
	NewServer    preview.ServerFactory
	Settings     *settings.Store
	Logs         *telemetry.LogBroadcaster
	Gatherer     prometheus.Gatherer
	Metrics      domain.Metrics
	Logger       *zap.Logger
	// LoadTimeout bounds the wait for a replaced iframe to load.
	LoadTimeout time.Duration
}

type Server struct {
	config       domain.ProjectConfig
	registry     RegistrySource
	orchestrator *uibuild.Orchestrator
	newServer    preview.ServerFactory
	settings     *settings.Store
	logs         *telemetry.LogBroadcaster
	gatherer     prometheus.Gatherer
	metrics      domain.Metrics
	logger       *zap.Logger
	loadTimeout  time.Duration

	mu      sync.Mutex
	sockets map[*previewSocket]struct{}
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = domain.DefaultHandshakeTimeout
	}
	return &Server{
		config:       opts.Config,
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		newServer:    opts.NewServer,
		settings:     opts.Settings,
		logs:         opts.Logs,
		gatherer:     opts.Gatherer,
		metrics:      metrics,
		logger:       logger.Named("devserver"),
		loadTimeout:  timeout,
		sockets:      make(map[*previewSocket]struct{}),
	}
}

// Handler routes every dev server path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleProtocol)
	mux.HandleFunc("GET /api/registry", s.handleRegistry)
	mux.HandleFunc("GET /api/preview/ws", s.handleSocket)
	mux.HandleFunc("GET "+iframePrefix, s.handleIframe)
	mux.HandleFunc("GET /preview/", s.handleShell)
	telemetry.RegisterHandlers(mux, telemetry.HTTPHandlerOptions{
		EnableMetrics: s.gatherer != nil,
		EnableHealthz: true,
		Health:        s.health,
		Registry:      s.gatherer,
	})
	mux.HandleFunc("/", s.handleRoot)
	return telemetry.RequestIDMiddleware(mux)
}

// Serve listens on addr until ctx ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = domain.DefaultListenAddress
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", zap.String("addr", "http://"+addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("dev server failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("dev server shutdown error", zap.Error(err))
			return err
		}
		s.logger.Info("dev server stopped")
		return nil
	}
}

// handleProtocol serves one stateless exchange with a server built for this
// request. A server that cannot be built is an internal error.
func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	server, err := s.newServer(r.Context())
	if err != nil {
		telemetry.LoggerWithRequest(r.Context(), s.logger).Error("create protocol server failed", zap.Error(err))
		http.Error(w, "create protocol server: "+err.Error(), http.StatusInternalServerError)
		return
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
	handler.ServeHTTP(w, r)
}

func (s *Server) handleRegistry(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Current())
}

func (s *Server) handleShell(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(previewHTML)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		s.handleShell(w, r)
		return
	}
	s.servePublic(w, r)
}

// servePublic falls through to files under <root>/public.
func (s *Server) servePublic(w http.ResponseWriter, r *http.Request) {
	dir := filepath.Join(s.config.Root, publicDir)
	clean := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
}

func (s *Server) health() telemetry.HealthReport {
	registry := s.registry.Current()
	return telemetry.HealthReport{
		Status: "ok",
		Entities: map[string]int{
			string(domain.KindTool):     len(registry.Tools),
			string(domain.KindResource): len(registry.Resources),
			string(domain.KindPrompt):   len(registry.Prompts),
		},
	}
}

func (s *Server) track(socket *previewSocket, open bool) {
	s.mu.Lock()
	if open {
		s.sockets[socket] = struct{}{}
	} else {
		delete(s.sockets, socket)
	}
	count := len(s.sockets)
	s.mu.Unlock()
	s.metrics.SetPreviewSessions(count)
}
