package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
	"github.com/mcpapps/mcpapps/internal/uibuild"
)

const (
	iframePrefix   = "/iframe/tools/"
	iframeDocument = "app.html"
	maxSuggestions = 3
)

var errBadIframePath = errors.New("bad iframe path")

// IframePath returns the dev path of the document for a tool. Each segment
// of a nested name is escaped on its own.
func IframePath(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return iframePrefix + strings.Join(segments, "/") + "/" + iframeDocument
}

// ParseIframePath recovers the tool name from an escaped request path.
func ParseIframePath(escaped string) (string, error) {
	rest, ok := strings.CutPrefix(escaped, iframePrefix)
	if !ok {
		return "", errBadIframePath
	}
	rest = strings.TrimSuffix(rest, "/"+iframeDocument)
	if rest == "" || rest == iframeDocument {
		return "", errBadIframePath
	}
	raw := strings.Split(rest, "/")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadIframePath, err)
		}
		if decoded == "" || decoded == "." || decoded == ".." || strings.Contains(decoded, "/") {
			return "", errBadIframePath
		}
		segments = append(segments, decoded)
	}
	last := len(segments) - 1
	segments[last] = stripExtension(segments[last])
	if segments[last] == "" {
		return "", errBadIframePath
	}
	return strings.Join(segments, "/"), nil
}

func stripExtension(name string) string {
	ext := path.Ext(name)
	if ext == ".html" {
		name = strings.TrimSuffix(name, ext)
		ext = path.Ext(name)
	}
	for _, known := range collector.UIExtensions {
		if ext == known {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// ContentSecurityPolicy is the policy of iframe documents. Images load only
// from the same origin, data URLs and the configured origins.
func ContentSecurityPolicy(host string, csp domain.CSPConfig) string {
	connect := []string{"'self'"}
	if host != "" {
		connect = append(connect, "ws://"+host, "wss://"+host)
	}
	connect = append(connect, csp.ConnectSrc...)
	img := append([]string{"'self'", "data:"}, csp.ImgSrc...)
	directives := []string{
		"default-src 'none'",
		"script-src 'unsafe-inline'",
		"style-src 'unsafe-inline'",
		"connect-src " + strings.Join(connect, " "),
		"img-src " + strings.Join(img, " "),
		"font-src data:",
		"frame-ancestors 'self'",
	}
	return strings.Join(directives, "; ")
}

func (s *Server) handleIframe(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.LoggerWithRequest(r.Context(), s.logger)
	name, err := ParseIframePath(r.URL.EscapedPath())
	if err != nil {
		http.Error(w, "invalid tool path "+r.URL.Path, http.StatusNotFound)
		return
	}
	registry := s.registry.Current()
	entity, err := registry.UITool(name)
	if err != nil {
		http.Error(w, notFoundMessage(name, err, registry), http.StatusNotFound)
		return
	}

	artifact, ok, err := s.orchestrator.Artifact(r.Context(), name)
	if err != nil {
		logger.Warn("ui build failed", telemetry.EntityField(name), zap.Error(err))
		http.Error(w, fmt.Sprintf("building %s failed:\n%v", name, err), http.StatusNotFound)
		return
	}
	if !ok {
		artifact, err = s.orchestrator.Transform(r.Context(), entity)
		if err != nil {
			logger.Warn("ui transform failed", telemetry.EntityField(name), zap.Error(err))
			http.Error(w, fmt.Sprintf("transforming %s failed:\n%v", name, err), http.StatusNotFound)
			return
		}
	}
	s.serveArtifact(w, r, artifact)
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, artifact uibuild.Artifact) {
	etag := `"` + artifact.Hash + `"`
	header := w.Header()
	header.Set("Content-Security-Policy", ContentSecurityPolicy(r.Host, s.config.CSP))
	header.Set("Cache-Control", "no-cache")
	header.Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	header.Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(artifact.HTML))
}

func notFoundMessage(name string, err error, registry domain.Registry) string {
	var b strings.Builder
	if errors.Is(err, domain.ErrNotUIBearing) {
		fmt.Fprintf(&b, "tool %q has no ui\n", name)
	} else {
		fmt.Fprintf(&b, "no tool named %q\n", name)
	}
	var candidates []string
	for _, tool := range registry.UITools() {
		candidates = append(candidates, tool.Name)
	}
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return b.String()
	}
	b.WriteString("did you mean:\n")
	for i, match := range matches {
		if i == maxSuggestions {
			break
		}
		fmt.Fprintf(&b, "  %s\n", match.Str)
	}
	return b.String()
}
