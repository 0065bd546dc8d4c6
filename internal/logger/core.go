// internal/logger/core.go
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BufferCore is a zapcore.Core that stores entries in a LogBuffer, so the
// dashboard can render logs without writing to the terminal it owns.
type BufferCore struct {
	zapcore.LevelEnabler
	buffer *LogBuffer
	fields []zapcore.Field
}

func NewBufferCore(buffer *LogBuffer, level zapcore.LevelEnabler) *BufferCore {
	return &BufferCore{LevelEnabler: level, buffer: buffer}
}

func (c *BufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &BufferCore{LevelEnabler: c.LevelEnabler, buffer: c.buffer, fields: merged}
}

func (c *BufferCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *BufferCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var kv map[string]interface{}
	if len(enc.Fields) > 0 {
		kv = enc.Fields
	}
	return c.buffer.Add(LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.CapitalString(),
		Logger:    entry.LoggerName,
		Message:   entry.Message,
		Fields:    kv,
	})
}

func (c *BufferCore) Sync() error {
	return c.buffer.Flush()
}

// NewTUILogger логирует в буфер и, дополнительно, в переданные cores
// (например, в JSON-файл процесса). Терминал не используется.
func NewTUILogger(buffer *LogBuffer, debug bool, extra ...zapcore.Core) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cores := append([]zapcore.Core{NewBufferCore(buffer, level)}, extra...)
	return zap.New(zapcore.NewTee(cores...))
}
