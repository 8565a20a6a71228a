package uibuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

const defaultBuildConcurrency = 4

// Orchestrator runs isolated sub-builds of UI-bearing tools. Artifacts are
// cached per tool name for the lifetime of a session, and concurrent
// requests for the same tool share one build.
type Orchestrator struct {
	builder     Builder
	logger      *zap.Logger
	metrics     domain.Metrics
	concurrency int

	mu      sync.Mutex
	current *session
	last    BuildContext
}

type Options struct {
	Builder     Builder
	Logger      *zap.Logger
	Metrics     domain.Metrics
	Concurrency int
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	builder := opts.Builder
	if builder == nil {
		builder = NewEsbuildBuilder()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBuildConcurrency
	}
	return &Orchestrator{
		builder:     builder,
		logger:      logger.Named("uibuild"),
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Begin starts a session with an empty cache, replacing any current one.
func (o *Orchestrator) Begin(ctx BuildContext) {
	next := newSession(ctx)
	o.mu.Lock()
	prev := o.current
	o.current = next
	o.last = ctx
	o.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	o.logger.Debug("build session started", telemetry.SessionField(next.id))
}

// Reset restarts the current session with the same context, dropping cached
// artifacts. It does nothing without an active session.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	active := o.current != nil
	ctx := o.last
	o.mu.Unlock()
	if active {
		o.Begin(ctx)
	}
}

// End tears the session down. In-flight builds may finish but their
// results are not cached.
func (o *Orchestrator) End() {
	o.mu.Lock()
	prev := o.current
	o.current = nil
	o.mu.Unlock()
	if prev != nil {
		prev.close()
		o.logger.Debug("build session ended", telemetry.SessionField(prev.id))
	}
}

func (o *Orchestrator) session() *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// GetBuiltHTML returns the document of the named tool. Without an active
// session it returns an empty string and no error.
func (o *Orchestrator) GetBuiltHTML(ctx context.Context, name string) (string, error) {
	artifact, ok, err := o.Artifact(ctx, name)
	if err != nil || !ok {
		return "", err
	}
	return artifact.HTML, nil
}

type buildResult struct {
	artifact  Artifact
	discarded bool
}

// Artifact is GetBuiltHTML with build metadata. ok is false when there is
// no session or the session ended while building.
func (o *Orchestrator) Artifact(ctx context.Context, name string) (Artifact, bool, error) {
	s := o.session()
	if s == nil {
		return Artifact{}, false, nil
	}
	if artifact, ok := s.cached(name); ok {
		o.metrics.ObserveHTMLServed(domain.BuildSourceCache)
		return artifact, true, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(name, func() (any, error) {
		return o.build(buildCtx, s, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Artifact{}, false, res.Err
		}
		result := res.Val.(buildResult)
		if result.discarded {
			return Artifact{}, false, nil
		}
		if res.Shared {
			o.metrics.ObserveHTMLServed(domain.BuildSourceShared)
		} else {
			o.metrics.ObserveHTMLServed(domain.BuildSourceBuild)
		}
		return result.artifact, true, nil
	case <-ctx.Done():
		return Artifact{}, false, ctx.Err()
	}
}

func (o *Orchestrator) build(ctx context.Context, s *session, name string) (buildResult, error) {
	// A caller may have missed the cache just before the previous build stored it.
	if artifact, ok := s.cached(name); ok {
		return buildResult{artifact: artifact}, nil
	}
	entity, err := s.registry().UITool(name)
	if err != nil {
		return buildResult{}, err
	}
	artifact, err := o.compile(ctx, s.ctx, entity)
	if err != nil {
		return buildResult{}, err
	}
	if !s.store(name, artifact) {
		o.logger.Info("discarding build of ended session",
			telemetry.EventField(telemetry.EventBuildDiscarded),
			telemetry.EntityField(name),
			telemetry.SessionField(s.id),
		)
		o.metrics.ObserveBuild(entity.Framework, 0, domain.BuildStatusStale)
		return buildResult{discarded: true}, nil
	}
	return buildResult{artifact: artifact}, nil
}

func (o *Orchestrator) compile(ctx context.Context, bc BuildContext, entity domain.Entity) (Artifact, error) {
	framework := entity.Framework
	if framework == "" {
		framework = bc.DefaultFramework
	}
	target, err := TargetFor(framework)
	if err != nil {
		return Artifact{}, err
	}
	entity.Framework = target.Framework

	logger := o.logger.With(telemetry.EntityField(entity.Name), telemetry.FrameworkField(target.Framework))
	logger.Debug("sub-build started", telemetry.EventField(telemetry.EventBuildStart))
	start := time.Now()
	out, err := o.builder.Build(ctx, Request{
		Entity:  entity,
		Target:  target,
		Root:    bc.Root,
		Config:  bc.Config,
		Plugins: bc.Plugins,
		Dev:     bc.Dev,
	})
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.ObserveBuild(target.Framework, elapsed, domain.BuildStatusError)
		logger.Warn("sub-build failed",
			telemetry.EventField(telemetry.EventBuildFailure),
			telemetry.DurationField(elapsed),
			zap.Error(err),
		)
		if !errors.Is(err, domain.ErrBuild) && !errors.Is(err, domain.ErrNoHTMLAsset) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrBuild, entity.Name, err)
		}
		return Artifact{}, err
	}
	o.metrics.ObserveBuild(target.Framework, elapsed, domain.BuildStatusSuccess)
	logger.Info("sub-build finished",
		telemetry.EventField(telemetry.EventBuildSuccess),
		telemetry.DurationField(elapsed),
	)
	return newArtifact(entity, Document(entity.Name, out.JS, out.CSS)), nil
}

// Transform builds entity without touching the cache. It uses the active
// session's context, or the most recent one when no session is active.
func (o *Orchestrator) Transform(ctx context.Context, entity domain.Entity) (Artifact, error) {
	if !entity.HasUI || entity.UIEntry == "" {
		return Artifact{}, domain.E(domain.CodeNotFound, "transform", entity.Name+" has no ui", domain.ErrNotUIBearing)
	}
	o.mu.Lock()
	bc := o.last
	o.mu.Unlock()
	artifact, err := o.compile(ctx, bc, entity)
	if err != nil {
		return Artifact{}, err
	}
	o.metrics.ObserveHTMLServed(domain.BuildSourceTransform)
	return artifact, nil
}

// BuildAll builds every UI-bearing tool of the active session and writes
// <outDir>/<name>/app.html. Results follow registry order; failures are
// joined.
func (o *Orchestrator) BuildAll(ctx context.Context, outDir string) ([]Artifact, error) {
	s := o.session()
	if s == nil {
		return nil, domain.ErrSessionClosed
	}
	tools := s.registry().UITools()
	artifacts := make([]Artifact, len(tools))
	errs := make([]error, len(tools))

	semaphore := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for i, entity := range tools {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			artifact, ok, err := o.Artifact(ctx, name)
			switch {
			case err != nil:
				errs[i] = err
			case !ok:
				errs[i] = fmt.Errorf("%w: %s", domain.ErrSessionClosed, name)
			default:
				artifacts[i] = artifact
			}
		}(i, entity.Name)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for _, artifact := range artifacts {
		path := filepath.Join(outDir, filepath.FromSlash(artifact.Entity.Name), domain.UIResourceDocument)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ui dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(artifact.HTML), 0o644); err != nil {
			return nil, fmt.Errorf("write ui for %s: %w", artifact.Entity.Name, err)
		}
	}
	return artifacts, nil
}
