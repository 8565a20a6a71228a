package domain

import (
	"encoding/json"
	"time"
)

type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

type LogEntry struct {
	Logger    string          `json:"logger"`
	Level     LogLevel        `json:"level"`
	Timestamp time.Time       `json:"timestamp"`
	DataJSON  json.RawMessage `json:"data"`
}
