package collector

import (
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
)

type moduleInfo struct {
	dir  string
	path string
}

// resolveModule finds the go.mod governing root, searching parent directories.
func resolveModule(root string, logger *zap.Logger) moduleInfo {
	dir := root
	for {
		gomod := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(gomod)
		if err == nil {
			modPath := modfile.ModulePath(data)
			if modPath == "" {
				logger.Warn("go.mod has no module directive", zap.String("path", gomod))
				return moduleInfo{}
			}
			return moduleInfo{dir: dir, path: modPath}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return moduleInfo{}
		}
		dir = parent
	}
}

// PackagePath returns the import path of dir inside the module governing root.
func PackagePath(root, dir string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	return resolveModule(abs, zap.NewNop()).importPath(absDir)
}

func (m moduleInfo) importPath(dir string) string {
	if m.path == "" {
		return ""
	}
	rel, err := filepath.Rel(m.dir, dir)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return m.path
	}
	if rel == ".." || len(rel) > 2 && rel[:3] == "../" {
		return ""
	}
	return path.Join(m.path, rel)
}
