package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

const (
	defaultStopTimeout = 5 * time.Second
	maxLineLength      = 32 * 1024
)

type Options struct {
	Command []string
	Dir     string
	Env     map[string]string
	Logger  *zap.Logger
	// StopTimeout bounds the graceful stop before the process group is killed.
	StopTimeout time.Duration
}

// Runner keeps at most one instance of a command running and replaces it
// on Restart. Output is mirrored into the logger line by line.
type Runner struct {
	command     []string
	dir         string
	env         []string
	logger      *zap.Logger
	stopTimeout time.Duration

	mu      sync.Mutex
	current *child
}

type child struct {
	cmd     *exec.Cmd
	cleanup Cleanup
	done    chan struct{}
	err     error
	stopped bool
}

func NewRunner(opts Options) (*Runner, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, fmt.Errorf("%w: command is required", domain.ErrInvalidCommand)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	return &Runner{
		command:     append([]string(nil), opts.Command...),
		dir:         opts.Dir,
		env:         formatEnv(opts.Env),
		logger:      logger.Named("process"),
		stopTimeout: timeout,
	}, nil
}

// Start launches the command unless an instance is already running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !r.current.exited() {
		return nil
	}

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = r.stopTimeout
	cleanup := setupProcessHandling(cmd)

	serverLogger := r.logger.With(zap.String(telemetry.FieldLogSource, telemetry.LogSourceServer))
	stdout := newLineWriter(serverLogger.With(zap.String(telemetry.FieldLogStream, "stdout")))
	stderr := newLineWriter(serverLogger.With(zap.String(telemetry.FieldLogStream, "stderr")))
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.command[0], classifyStartError(err))
	}
	c := &child{cmd: cmd, cleanup: cleanup, done: make(chan struct{})}
	r.current = c
	r.logger.Info("server started", zap.Int("pid", cmd.Process.Pid), zap.String("command", strings.Join(r.command, " ")))

	go func() {
		err := Wait(context.Background(), cmd)
		stdout.Flush()
		stderr.Flush()
		r.mu.Lock()
		c.err = err
		stopped := c.stopped
		r.mu.Unlock()
		close(c.done)
		switch {
		case stopped:
		case err != nil:
			r.logger.Warn("server exited", zap.Error(err))
		default:
			r.logger.Info("server exited")
		}
	}()
	return nil
}

// Stop interrupts the running instance and waits for it, killing the whole
// process group once the stop timeout passes.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.current
	r.current = nil
	if c != nil {
		c.stopped = true
	}
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	if c.exited() {
		c.cleanup()
		return nil
	}

	if err := interrupt(c.cmd.Process); err != nil {
		r.logger.Debug("interrupt failed", zap.Error(err))
	}
	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		r.logger.Warn("server did not stop in time, killing", zap.Duration("timeout", r.stopTimeout))
	case <-ctx.Done():
	}
	c.cleanup()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the running instance, if any, and starts a new one.
func (r *Runner) Restart(ctx context.Context) error {
	if err := r.Stop(ctx); err != nil {
		return err
	}
	r.logger.Info("restarting server", telemetry.EventField(telemetry.EventRestart))
	return r.Start(ctx)
}

// Running reports whether an instance is alive.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && !r.current.exited()
}

// Done is closed when the current instance exits. It is nil when nothing
// was started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.done
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// lineWriter logs every complete line written to it.
type lineWriter struct {
	logger *zap.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func newLineWriter(logger *zap.Logger) *lineWriter {
	return &lineWriter{logger: logger}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.Write(line)
			if w.buf.Len() > maxLineLength {
				w.emit(w.buf.Bytes())
				w.buf.Reset()
			}
			return len(p), nil
		}
		w.emit(line)
	}
}

// Flush logs a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line []byte) {
	trimmed := strings.TrimRight(string(line), "\r\n")
	if trimmed == "" {
		return
	}
	if len(trimmed) > maxLineLength {
		trimmed = trimmed[:maxLineLength] + "... [truncated]"
	}
	w.logger.Info(trimmed)
}
