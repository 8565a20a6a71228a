package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

// LoggingConfig configures logging wiring.
type LoggingConfig struct {
	Logger      *zap.Logger
	Broadcaster *telemetry.LogBroadcaster
}

// Logging bundles the logger and broadcaster.
type Logging struct {
	Logger      *zap.Logger
	Broadcaster *telemetry.LogBroadcaster
}

// NewLogging tees the logger into a broadcaster so the preview can stream
// log entries.
func NewLogging(cfg LoggingConfig) Logging {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String(telemetry.FieldLogSource, telemetry.LogSourceCore)).Named("mcpapps")

	if cfg.Broadcaster != nil {
		return Logging{
			Logger:      logger,
			Broadcaster: cfg.Broadcaster,
		}
	}

	logs := telemetry.NewLogBroadcaster(zapcore.DebugLevel)
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, logs.Core())
	}))

	return Logging{
		Logger:      logger,
		Broadcaster: logs,
	}
}

func NewLogger(logging Logging) *zap.Logger {
	return logging.Logger
}
