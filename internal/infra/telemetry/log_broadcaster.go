package telemetry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// LogBroadcaster is a zap core that fans log entries out to subscribers,
// such as the event log of open preview sessions.
type LogBroadcaster struct {
	minLevel zapcore.Level
	mu       sync.RWMutex
	subs     map[chan domain.LogEntry]subscription
}

type subscription struct {
	minLevel zapcore.Level
	prefix   string
}

func NewLogBroadcaster(minLevel zapcore.Level) *LogBroadcaster {
	return &LogBroadcaster{
		minLevel: minLevel,
		subs:     make(map[chan domain.LogEntry]subscription),
	}
}

func (b *LogBroadcaster) Core() zapcore.Core {
	return &logBroadcasterCore{broadcaster: b}
}

// Subscribe delivers entries at or above minLevel whose logger name starts
// with prefix. Slow subscribers drop entries instead of blocking logging.
func (b *LogBroadcaster) Subscribe(ctx context.Context, minLevel zapcore.Level, prefix string) <-chan domain.LogEntry {
	ch := make(chan domain.LogEntry, domain.DefaultLogBufferSize)
	b.mu.Lock()
	b.subs[ch] = subscription{minLevel: minLevel, prefix: prefix}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *LogBroadcaster) publish(level zapcore.Level, entry domain.LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subs {
		if level < sub.minLevel || !strings.HasPrefix(entry.Logger, sub.prefix) {
			continue
		}
		select {
		case ch <- entry:
		default:
		}
	}
}

type logBroadcasterCore struct {
	broadcaster *LogBroadcaster
	fields      []zapcore.Field
}

func (c *logBroadcasterCore) Enabled(level zapcore.Level) bool {
	return level >= c.broadcaster.minLevel
}

func (c *logBroadcasterCore) With(fields []zapcore.Field) zapcore.Core {
	if len(fields) == 0 {
		return c
	}
	combined := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	combined = append(combined, c.fields...)
	combined = append(combined, fields...)
	return &logBroadcasterCore{broadcaster: c.broadcaster, fields: combined}
}

func (c *logBroadcasterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *logBroadcasterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	dataJSON, err := c.encode(entry, fields)
	if err != nil {
		return nil
	}
	logger := entry.LoggerName
	if logger == "" {
		logger = "mcpapps"
	}
	c.broadcaster.publish(entry.Level, domain.LogEntry{
		Logger:    logger,
		Level:     mapZapLevel(entry.Level),
		Timestamp: entry.Time,
		DataJSON:  dataJSON,
	})
	return nil
}

func (c *logBroadcasterCore) Sync() error {
	return nil
}

func (c *logBroadcasterCore) encode(entry zapcore.Entry, fields []zapcore.Field) (json.RawMessage, error) {
	encoder := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(encoder)
	}
	for _, field := range fields {
		field.AddTo(encoder)
	}

	data := map[string]any{
		"message":   entry.Message,
		"timestamp": entry.Time.UTC().Format(time.RFC3339Nano),
	}
	if len(encoder.Fields) > 0 {
		data["fields"] = encoder.Fields
	}
	return json.Marshal(data)
}

func mapZapLevel(level zapcore.Level) domain.LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return domain.LogLevelDebug
	case zapcore.InfoLevel:
		return domain.LogLevelInfo
	case zapcore.WarnLevel:
		return domain.LogLevelWarning
	case zapcore.ErrorLevel:
		return domain.LogLevelError
	case zapcore.DPanicLevel:
		return domain.LogLevelCritical
	case zapcore.PanicLevel:
		return domain.LogLevelAlert
	case zapcore.FatalLevel:
		return domain.LogLevelEmergency
	default:
		return domain.LogLevelInfo
	}
}

var _ zapcore.Core = (*logBroadcasterCore)(nil)
