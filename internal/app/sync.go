package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/codegen"
	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/typegen"
)

// ErrStale reports generated files that differ from what sync would write.
var ErrStale = errors.New("generated files are out of date")

type SyncOptions struct {
	// Check compares instead of writing.
	Check bool
	// EmbedDir embeds prebuilt ui documents, relative to the generated file.
	EmbedDir string
}

type SyncResult struct {
	Registry domain.Registry
	Written  []string
	Stale    []string
	Diff     string
}

type generatedFile struct {
	path    string
	content []byte
}

// Sync collects the project and writes the registration file, the type
// declarations and the manifest.
func (p *Project) Sync(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	reg, err := p.Collector.Collect(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	return p.sync(reg, opts)
}

func (p *Project) sync(reg domain.Registry, opts SyncOptions) (SyncResult, error) {
	files, err := p.render(reg, opts)
	if err != nil {
		return SyncResult{Registry: reg}, err
	}
	result := SyncResult{Registry: reg}
	if opts.Check {
		var diffs strings.Builder
		for _, file := range files {
			existing, err := os.ReadFile(file.path)
			if err != nil && !os.IsNotExist(err) {
				return result, fmt.Errorf("read %s: %w", p.rel(file.path), err)
			}
			if bytes.Equal(existing, file.content) {
				continue
			}
			result.Stale = append(result.Stale, p.rel(file.path))
			diffs.WriteString(unifiedDiff(p.rel(file.path), string(existing), string(file.content)))
		}
		result.Diff = diffs.String()
		if len(result.Stale) > 0 {
			return result, fmt.Errorf("%w: %s", ErrStale, strings.Join(result.Stale, ", "))
		}
		return result, nil
	}

	for _, file := range files {
		written, err := codegen.WriteIfChanged(file.path, file.content)
		if err != nil {
			return result, err
		}
		if written {
			result.Written = append(result.Written, p.rel(file.path))
		}
	}
	p.Logger.Info("sync complete",
		zap.Int("tools", len(reg.Tools)),
		zap.Int("resources", len(reg.Resources)),
		zap.Int("prompts", len(reg.Prompts)),
		zap.Strings("written", result.Written),
	)
	return result, nil
}

func (p *Project) render(reg domain.Registry, opts SyncOptions) ([]generatedFile, error) {
	cfg := p.Config
	outPath := p.abs(cfg.Output.File)
	outDir := filepath.Dir(outPath)

	pkg := cfg.Output.Package
	if pkg == "" {
		detected, err := codegen.DetectPackage(outDir, filepath.Base(outPath))
		if err != nil {
			return nil, fmt.Errorf("detect package: %w", err)
		}
		pkg = detected
	}
	src, err := codegen.Generate(reg, codegen.Options{
		Package:        pkg,
		SelfImportPath: collector.PackagePath(cfg.Root, outDir),
		EmbedDir:       opts.EmbedDir,
	})
	if err != nil {
		return nil, err
	}
	files := []generatedFile{{path: outPath, content: src}}

	if cfg.Output.TypesFile != "" {
		types, err := typegen.Generate(reg, typegen.Options{Root: cfg.Root, Logger: p.Logger})
		if err != nil {
			return nil, err
		}
		files = append(files, generatedFile{path: p.abs(cfg.Output.TypesFile), content: types})
	}
	if cfg.Output.Manifest != "" {
		manifest, err := typegen.Manifest(reg, cfg.Root)
		if err != nil {
			return nil, err
		}
		files = append(files, generatedFile{path: p.abs(cfg.Output.Manifest), content: manifest})
	}
	return files, nil
}

type BuildResult struct {
	SyncResult
	Documents []string
}

// Build prebuilds every ui document into output.uiDir and regenerates the
// registration file so that it embeds them.
func (p *Project) Build(ctx context.Context) (BuildResult, error) {
	reg, err := p.Collector.Collect(ctx)
	if err != nil {
		return BuildResult{}, err
	}

	var result BuildResult
	embedDir := ""
	if len(reg.UITools()) > 0 {
		uiDir := p.abs(p.Config.Output.UIDir)
		if err := os.RemoveAll(uiDir); err != nil {
			return result, fmt.Errorf("clean ui dir: %w", err)
		}
		p.Orchestrator.Begin(p.BuildContext(false, nil))
		artifacts, err := p.Orchestrator.BuildAll(ctx, uiDir)
		p.Orchestrator.End()
		if err != nil {
			return result, err
		}
		for _, artifact := range artifacts {
			result.Documents = append(result.Documents, p.rel(filepath.Join(uiDir, filepath.FromSlash(artifact.Entity.Name), domain.UIResourceDocument)))
		}
		rel, err := filepath.Rel(filepath.Dir(p.abs(p.Config.Output.File)), uiDir)
		if err != nil {
			return result, fmt.Errorf("resolve ui dir: %w", err)
		}
		embedDir = filepath.ToSlash(rel)
	}

	synced, err := p.sync(reg, SyncOptions{EmbedDir: embedDir})
	result.SyncResult = synced
	if err != nil {
		return result, err
	}
	p.Logger.Info("build complete", zap.Int("documents", len(result.Documents)))
	return result, nil
}

func (p *Project) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Config.Root, filepath.FromSlash(path))
}

func (p *Project) rel(path string) string {
	rel, err := filepath.Rel(p.Config.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func unifiedDiff(name, current, next string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(current, next, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var result strings.Builder
	result.WriteString("--- " + name + " (on disk)\n")
	result.WriteString("+++ " + name + " (generated)\n")
	for _, diff := range diffs {
		text := strings.TrimSuffix(diff.Text, "\n")
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			result.WriteString("+ " + strings.ReplaceAll(text, "\n", "\n+ ") + "\n")
		case diffmatchpatch.DiffDelete:
			result.WriteString("- " + strings.ReplaceAll(text, "\n", "\n- ") + "\n")
		case diffmatchpatch.DiffEqual:
			lines := strings.Split(text, "\n")
			if len(lines) > 4 {
				result.WriteString("  " + lines[0] + "\n  ...\n  " + lines[len(lines)-1] + "\n")
				continue
			}
			for _, line := range lines {
				if line != "" {
					result.WriteString("  " + line + "\n")
				}
			}
		}
	}
	return result.String()
}
