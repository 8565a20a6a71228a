package collector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/analyzer"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

// UIExtensions are the UI source extensions paired with tool declarations, in lookup order.
var UIExtensions = []string{".tsx", ".jsx", ".ts", ".js"}

// Dirs names the per-kind base directories, relative to the project root.
type Dirs struct {
	Tools     string
	Resources string
	Prompts   string
}

func DefaultDirs() Dirs {
	return Dirs{
		Tools:     domain.DefaultToolsDir,
		Resources: domain.DefaultResourcesDir,
		Prompts:   domain.DefaultPromptsDir,
	}
}

func (d Dirs) forKind(kind domain.Kind) string {
	switch kind {
	case domain.KindTool:
		return d.Tools
	case domain.KindResource:
		return d.Resources
	case domain.KindPrompt:
		return d.Prompts
	default:
		return ""
	}
}

type Options struct {
	Root             string
	Dirs             Dirs
	DefaultFramework domain.Framework
	// ImportPath overrides the runtime package matched by the analyzer.
	ImportPath string
	// SkipFiles are base names never analyzed, such as generated output.
	SkipFiles []string
	Logger    *zap.Logger
	Metrics   domain.Metrics
}

// Collector scans the project tree and holds the registry of the latest pass.
type Collector struct {
	root      string
	dirs      Dirs
	framework domain.Framework
	skip      map[string]struct{}
	analyzer  *analyzer.Analyzer
	logger    *zap.Logger
	metrics   domain.Metrics

	collectMu sync.Mutex
	current   atomic.Pointer[domain.Registry]

	subsMu    sync.Mutex
	subs      map[chan Update]struct{}
	watchOnce sync.Once
}

func New(opts Options) (*Collector, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	dirs := opts.Dirs
	defaults := DefaultDirs()
	if dirs.Tools == "" {
		dirs.Tools = defaults.Tools
	}
	if dirs.Resources == "" {
		dirs.Resources = defaults.Resources
	}
	if dirs.Prompts == "" {
		dirs.Prompts = defaults.Prompts
	}
	framework := opts.DefaultFramework
	if framework == "" {
		framework = domain.DefaultFramework
	}
	skip := make(map[string]struct{}, len(opts.SkipFiles))
	for _, name := range opts.SkipFiles {
		skip[filepath.Base(name)] = struct{}{}
	}

	c := &Collector{
		root:      abs,
		dirs:      dirs,
		framework: framework,
		skip:      skip,
		analyzer:  analyzer.New(analyzer.WithImportPath(opts.ImportPath)),
		logger:    logger.Named("collector"),
		metrics:   metrics,
		subs:      make(map[chan Update]struct{}),
	}
	empty := domain.NewRegistry()
	c.current.Store(&empty)
	return c, nil
}

// Collect is a one-shot scan of root with the given directories.
func Collect(ctx context.Context, root string, dirs Dirs, logger *zap.Logger) (domain.Registry, error) {
	c, err := New(Options{Root: root, Dirs: dirs, Logger: logger})
	if err != nil {
		return domain.Registry{}, err
	}
	return c.Collect(ctx)
}

// Current returns the registry of the latest completed pass.
func (c *Collector) Current() domain.Registry {
	return *c.current.Load()
}

// Collect performs a fresh scan and replaces the current registry.
func (c *Collector) Collect(ctx context.Context) (domain.Registry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.collectMu.Lock()
	defer c.collectMu.Unlock()

	start := time.Now()
	module := resolveModule(c.root, c.logger)
	reg := domain.NewRegistry()
	for _, kind := range []domain.Kind{domain.KindTool, domain.KindResource, domain.KindPrompt} {
		if err := ctx.Err(); err != nil {
			return domain.Registry{}, err
		}
		entities := c.collectKind(ctx, kind, module)
		for _, entity := range entities {
			reg.Add(entity)
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Registry{}, err
	}

	for _, dup := range reg.Duplicates() {
		c.logger.Warn("duplicate entity name",
			telemetry.KindField(dup.Kind),
			telemetry.EntityField(dup.Name),
			zap.Strings("paths", dup.Paths),
		)
	}

	c.current.Store(&reg)
	c.metrics.ObserveCollect(time.Since(start), map[domain.Kind]int{
		domain.KindTool:     len(reg.Tools),
		domain.KindResource: len(reg.Resources),
		domain.KindPrompt:   len(reg.Prompts),
	})
	c.logger.Debug("collection finished",
		zap.Int("tools", len(reg.Tools)),
		zap.Int("resources", len(reg.Resources)),
		zap.Int("prompts", len(reg.Prompts)),
		telemetry.DurationField(time.Since(start)),
	)
	return reg, nil
}

func (c *Collector) collectKind(ctx context.Context, kind domain.Kind, module moduleInfo) []domain.Entity {
	baseRel := c.dirs.forKind(kind)
	base := filepath.Join(c.root, filepath.FromSlash(baseRel))
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		c.logger.Info("entity directory not found", telemetry.KindField(kind), zap.String("dir", baseRel))
		return nil
	}

	var entities []domain.Entity
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("walk entity directory", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != base && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !c.candidate(d.Name()) {
			return nil
		}
		entities = append(entities, c.analyzeFile(kind, base, path, module)...)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		c.logger.Warn("walk entity directory failed", zap.String("dir", baseRel), zap.Error(walkErr))
	}
	return entities
}

func (c *Collector) candidate(name string) bool {
	if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	_, skipped := c.skip[name]
	return !skipped
}

func (c *Collector) analyzeFile(kind domain.Kind, base, path string, module moduleInfo) []domain.Entity {
	src, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("read entity file", zap.String("path", path), zap.Error(err))
		return nil
	}
	if !c.analyzer.MayDeclare(src) {
		return nil
	}
	report, err := c.analyzer.Analyze(path, src)
	if err != nil {
		c.logger.Warn("analyze entity file", zap.String("path", path), zap.Error(err))
		return nil
	}
	for _, symbol := range report.Unexported {
		c.logger.Warn("unexported entity is ignored", zap.String("path", c.relative(path)), zap.String("symbol", symbol))
	}

	decls := report.ByKind(kind)
	if len(decls) == 0 {
		return nil
	}
	dir := filepath.Dir(path)
	pkg := module.importPath(dir)
	if pkg == "" {
		c.logger.Warn("entity package is outside any module", zap.String("path", c.relative(path)))
	}

	entities := make([]domain.Entity, 0, len(decls))
	for _, decl := range decls {
		entity := domain.Entity{
			Name:         decl.Name,
			Kind:         kind,
			SourcePath:   path,
			RelativePath: c.relative(path),
			Package:      pkg,
			PackageDir:   filepath.ToSlash(mustRel(c.root, dir)),
			Symbol:       decl.Symbol,
			Pointer:      decl.Pointer,
			URI:          decl.URI,
			Schemas:      decl.Schemas,
		}
		if !decl.NameKnown || strings.TrimSpace(decl.Name) == "" {
			entity.Name = PathName(base, path)
			entity.NameFromPath = true
		}
		if kind == domain.KindTool && decl.HasUI {
			entity.HasUI = true
			entity.Framework = decl.Framework
			if entity.Framework == "" {
				entity.Framework = c.framework
			}
			entity.UIEntry = c.resolveUIEntry(path, decl.UIEntry)
			if entity.UIEntry == "" {
				c.logger.Warn("tool declares an app without a ui source",
					telemetry.EntityField(entity.Name),
					zap.String("path", entity.RelativePath),
				)
			}
		}
		entities = append(entities, entity)
	}
	return entities
}

func (c *Collector) resolveUIEntry(path, entry string) string {
	dir := filepath.Dir(path)
	if entry != "" {
		resolved := entry
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(dir, filepath.FromSlash(entry))
		}
		if _, err := os.Stat(resolved); err != nil {
			c.logger.Warn("ui entry not found", zap.String("entry", entry), zap.String("path", c.relative(path)))
		}
		return resolved
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, ext := range UIExtensions {
		candidate := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func (c *Collector) relative(path string) string {
	return filepath.ToSlash(mustRel(c.root, path))
}

// PathName derives an entity name from its file path relative to base:
// the extension is stripped and nested directories keep their slashes.
func PathName(base, path string) string {
	rel := mustRel(base, path)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}

func mustRel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return rel
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case "testdata", "node_modules", "vendor":
		return true
	default:
		return false
	}
}
