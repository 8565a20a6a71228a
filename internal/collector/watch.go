package collector

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// Update is published after a watch-triggered collection.
type Update struct {
	Registry domain.Registry
	Changed  []string
	// GoChanged reports whether any changed file was Go source, which needs
	// a server restart rather than a UI rebuild.
	GoChanged bool
}

// Subscribe returns a channel of updates that is closed when ctx ends.
func (c *Collector) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, 1)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subsMu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.subsMu.Unlock()
	}()
	return ch
}

// Watch starts the file watcher once; it re-collects after a quiet period of
// debounce following any change below the entity directories.
func (c *Collector) Watch(ctx context.Context, debounce time.Duration) {
	if debounce <= 0 {
		debounce = domain.DefaultWatchDebounce
	}
	c.watchOnce.Do(func() {
		go c.runWatcher(ctx, debounce)
	})
}

// broadcast never blocks the watcher. A subscriber that has not consumed its
// previous update gets both merged into one.
func (c *Collector) broadcast(update Update) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- update:
			continue
		default:
		}
		next := update
		select {
		case pending := <-ch:
			next = pending.merge(update)
		default:
		}
		// Only broadcast sends, under subsMu, so the slot is free now.
		ch <- next
	}
}

// merge folds a newer update into u. The newer registry wins.
func (u Update) merge(newer Update) Update {
	set := make(map[string]struct{}, len(u.Changed)+len(newer.Changed))
	for _, path := range u.Changed {
		set[path] = struct{}{}
	}
	for _, path := range newer.Changed {
		set[path] = struct{}{}
	}
	return Update{
		Registry:  newer.Registry,
		Changed:   drain(set),
		GoChanged: u.GoChanged || newer.GoChanged,
	}
}

func (c *Collector) runWatcher(ctx context.Context, debounce time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("entity watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, dir := range c.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			c.logger.Debug("entity watcher add failed", zap.String("path", dir), zap.Error(err))
		}
	}

	var timer *time.Timer
	changed := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				c.logger.Warn("entity watcher error", zap.Error(err))
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					_ = watcher.Add(event.Name)
				}
			}
			if !shouldCollectForPath(event.Name) {
				continue
			}
			if _, skipped := c.skip[filepath.Base(event.Name)]; skipped {
				continue
			}
			changed[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case <-timerChan(timer):
			timer = nil
			paths := drain(changed)
			reg, err := c.Collect(ctx)
			if err != nil {
				c.logger.Warn("entity collection failed", zap.Error(err))
				continue
			}
			c.broadcast(Update{Registry: reg, Changed: paths, GoChanged: anyGo(paths)})
		}
	}
}

// watchDirs lists every directory below the entity roots plus the root itself.
func (c *Collector) watchDirs() []string {
	dirs := []string{c.root}
	for _, rel := range []string{c.dirs.Tools, c.dirs.Resources, c.dirs.Prompts} {
		base := filepath.Join(c.root, filepath.FromSlash(rel))
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if path != base && skipDir(d.Name()) {
				return fs.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		})
	}
	return dirs
}

func shouldCollectForPath(path string) bool {
	if path == "" {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".go", ".css", ".json", ".svg", ".png":
		return true
	}
	for _, uiExt := range UIExtensions {
		if ext == uiExt {
			return true
		}
	}
	return base == "go.mod"
}

func drain(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for path := range set {
		out = append(out, path)
		delete(set, path)
	}
	sort.Strings(out)
	return out
}

func anyGo(paths []string) bool {
	for _, path := range paths {
		if strings.HasSuffix(path, ".go") || filepath.Base(path) == "go.mod" {
			return true
		}
	}
	return false
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
