package telemetry

import (
	"time"

	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
)

const (
	FieldEvent      = "event"
	FieldEntity     = "entity"
	FieldKind       = "kind"
	FieldFramework  = "framework"
	FieldSession    = "session"
	FieldState      = "state"
	FieldDurationMs = "duration_ms"
	FieldLogSource  = "log_source"
	FieldLogStream  = "stream"
	FieldRequestID  = "request_id"
)

const (
	EventCollect          = "collect"
	EventBuildStart       = "build_start"
	EventBuildSuccess     = "build_success"
	EventBuildFailure     = "build_failure"
	EventBuildDiscarded   = "build_discarded"
	EventBridgeConnected  = "bridge_connected"
	EventBridgeClosed     = "bridge_closed"
	EventToolInput        = "tool_input"
	EventToolResult       = "tool_result"
	EventToolCancelled    = "tool_cancelled"
	EventValidationFailed = "validation_failed"
	EventRestart          = "restart"
)

const (
	LogSourceCore   = "core"
	LogSourceServer = "server"
	LogSourceUI     = "ui"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func EntityField(name string) zap.Field {
	return zap.String(FieldEntity, name)
}

func KindField(kind domain.Kind) zap.Field {
	return zap.String(FieldKind, string(kind))
}

func FrameworkField(framework domain.Framework) zap.Field {
	return zap.String(FieldFramework, string(framework))
}

func SessionField(id string) zap.Field {
	return zap.String(FieldSession, id)
}

func StateField(state string) zap.Field {
	return zap.String(FieldState, state)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}
