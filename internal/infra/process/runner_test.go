//go:build unix

package process

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mcpapps/mcpapps/internal/domain"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestRunner_MirrorsOutputWithEnv(t *testing.T) {
	logger, logs := observedLogger()
	runner, err := NewRunner(Options{
		Command: []string{"sh", "-c", "echo dev=$MCPAPPS_DEV; printf 'partial'; echo oops >&2"},
		Env:     map[string]string{"MCPAPPS_DEV": "1"},
		Logger:  logger,
	})
	require.NoError(t, err)
	require.NoError(t, runner.Start(context.Background()))
	waitDone(t, runner.Done())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("dev=1").Len() == 1 &&
			logs.FilterMessage("partial").Len() == 1 &&
			logs.FilterMessage("oops").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	stderr := logs.FilterMessage("oops").All()[0]
	require.Equal(t, "stderr", stderr.ContextMap()["stream"])
	require.False(t, runner.Running())
}

func TestRunner_StopAndRestart(t *testing.T) {
	runner, err := NewRunner(Options{Command: []string{"sleep", "30"}, StopTimeout: time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, runner.Start(ctx))
	first := runner.Done()
	require.True(t, runner.Running())

	// Start is a no-op while an instance runs.
	require.NoError(t, runner.Start(ctx))
	require.Equal(t, first, runner.Done())

	require.NoError(t, runner.Restart(ctx))
	waitDone(t, first)
	second := runner.Done()
	require.NotEqual(t, first, second)
	require.True(t, runner.Running())

	require.NoError(t, runner.Stop(ctx))
	waitDone(t, second)
	require.False(t, runner.Running())
	require.Nil(t, runner.Done())
	require.NoError(t, runner.Stop(ctx))
}

func TestRunner_KillsAfterStopTimeout(t *testing.T) {
	runner, err := NewRunner(Options{
		Command:     []string{"sh", "-c", "trap '' TERM; sleep 30 & wait"},
		StopTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, runner.Start(context.Background()))
	done := runner.Done()
	time.Sleep(100 * time.Millisecond)

	started := time.Now()
	require.NoError(t, runner.Stop(context.Background()))
	waitDone(t, done)
	require.Less(t, time.Since(started), 3*time.Second)
}

func TestRunner_InvalidCommand(t *testing.T) {
	_, err := NewRunner(Options{})
	require.True(t, errors.Is(err, domain.ErrInvalidCommand))

	runner, err := NewRunner(Options{Command: []string{"mcpapps-definitely-missing-binary"}})
	require.NoError(t, err)
	err = runner.Start(context.Background())
	require.True(t, errors.Is(err, domain.ErrExecutableNotFound), err)
}

func TestWait_NormalizesSignalExit(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Process.Kill())
	require.NoError(t, Wait(context.Background(), cmd))
	require.NoError(t, Wait(context.Background(), nil))
}
