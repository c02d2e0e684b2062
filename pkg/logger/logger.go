package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFields map[string]interface{}

type Logger interface {
	WithFields(fields LogFields) Logger

	Info(action, message string)
	Debug(action, message string)
	Warn(action, message string)
	Error(action string, err error)
}

// zapLogger adapts zap to the action-keyed logging used across the services.
type zapLogger struct {
	z          *zap.Logger
	baseFields LogFields // nested under "fields" on every entry
}

// NewLogger creates a structured JSON logger for a specific service.
// Every entry carries service, hostname and action keys.
func NewLogger(serviceName string) Logger {
	return NewLoggerWithLevel(serviceName, "info")
}

// NewLoggerWithLevel is NewLogger with an explicit minimum level
// (debug, info, warn or error; anything else means info).
func NewLoggerWithLevel(serviceName, level string) Logger {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		parseLevel(level),
	)

	z := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).With(
		zap.String("service", serviceName),
		zap.String("hostname", host),
	)
	return &zapLogger{z: z, baseFields: make(LogFields)}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop(), baseFields: make(LogFields)}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithFields returns a child logger that inherits the base fields and adds
// the new ones. pool_id, request_id and job_id are promoted to top-level keys.
func (l *zapLogger) WithFields(fields LogFields) Logger {
	z := l.z
	newFields := make(LogFields, len(l.baseFields)+len(fields))
	for k, v := range l.baseFields {
		newFields[k] = v
	}
	for k, v := range fields {
		switch k {
		case "pool_id", "request_id", "job_id":
			z = z.With(zap.Any(k, v))
		default:
			newFields[k] = v
		}
	}
	return &zapLogger{z: z, baseFields: newFields}
}

func (l *zapLogger) Info(action, message string) {
	l.z.Info(message, l.fields(action)...)
}

func (l *zapLogger) Debug(action, message string) {
	l.z.Debug(message, l.fields(action)...)
}

func (l *zapLogger) Warn(action, message string) {
	l.z.Warn(message, l.fields(action)...)
}

// Error logs err at ERROR level with a stack trace. A nil err is logged as "<nil>".
func (l *zapLogger) Error(action string, err error) {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	l.z.Error(msg, append(l.fields(action), zap.Error(err))...)
}

func (l *zapLogger) fields(action string) []zap.Field {
	fs := []zap.Field{zap.String("action", action)}
	if len(l.baseFields) > 0 {
		fs = append(fs, zap.Any("fields", map[string]interface{}(l.baseFields)))
	}
	return fs
}
