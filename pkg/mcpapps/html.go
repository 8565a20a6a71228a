package mcpapps

import (
	"context"
	"errors"
	"io/fs"
	"path"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// HTMLSource yields the built UI document of a tool. An empty string with a
// nil error means no document is available.
type HTMLSource interface {
	HTML(ctx context.Context, name string) (string, error)
}

// HTMLSourceFunc adapts a function to HTMLSource.
type HTMLSourceFunc func(ctx context.Context, name string) (string, error)

func (f HTMLSourceFunc) HTML(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// EmbeddedHTML serves <dir>/<name>/app.html from fsys, the layout written
// by mcpapps build.
func EmbeddedHTML(fsys fs.FS, dir string) HTMLSource {
	return HTMLSourceFunc(func(_ context.Context, name string) (string, error) {
		if !fs.ValidPath(name) {
			return "", domain.ErrInvalidPath
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name, domain.UIResourceDocument))
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}
