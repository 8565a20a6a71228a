package app

import (
	"context"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/collector"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/process"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

const browserWaitTimeout = 30 * time.Second

// Supervise runs dev.command with the dev environment set. When Go sources
// of entities change, it re-syncs and restarts the command; ui changes are
// handled by the running server itself.
func (p *Project) Supervise(ctx context.Context, configPath string) error {
	if _, err := p.Sync(ctx, SyncOptions{}); err != nil {
		return err
	}

	env := map[string]string{EnvDevRoot: p.Config.Root}
	if configPath != "" {
		env[EnvConfigPath] = p.abs(configPath)
	}
	runner, err := process.NewRunner(process.Options{
		Command: p.Config.Dev.Command,
		Dir:     p.Config.Root,
		Env:     env,
		Logger:  p.Logger,
	})
	if err != nil {
		return err
	}

	var updates <-chan collector.Update
	if p.Config.Dev.Watch {
		updates = p.Collector.Subscribe(ctx)
		p.Collector.Watch(ctx, domain.DefaultWatchDebounce)
	}
	// The child outlives ctx until the deferred Stop so it can exit gracefully.
	runCtx := context.WithoutCancel(ctx)
	if err := runner.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Stop(stopCtx); err != nil {
			p.Logger.Warn("stop server failed", zap.Error(err))
		}
	}()

	url := "http://" + p.Config.Dev.ListenAddress + "/"
	p.Logger.Info("preview available", zap.String("url", url))
	if p.Config.Dev.OpenBrowser {
		go p.openWhenReady(ctx, url)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if !update.GoChanged {
				continue
			}
			if _, err := p.sync(update.Registry, SyncOptions{}); err != nil {
				p.Logger.Error("sync failed, keeping the running server", zap.Error(err))
				continue
			}
			if err := runner.Restart(runCtx); err != nil {
				p.Logger.Error("restart failed", telemetry.EventField(telemetry.EventRestart), zap.Error(err))
			}
		}
	}
}

func (p *Project) openWhenReady(ctx context.Context, url string) {
	deadline := time.Now().Add(browserWaitTimeout)
	client := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"healthz", nil)
		if err != nil {
			return
		}
		if resp, err := client.Do(req); err == nil {
			_ = resp.Body.Close()
			if err := openBrowser(url); err != nil {
				p.Logger.Warn("open browser failed", zap.Error(err))
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = process.Wait(context.Background(), cmd) }()
	return nil
}
