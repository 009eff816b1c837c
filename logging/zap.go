package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter wraps *zap.Logger to implement the Logger interface. Arguments
// are key/value pairs, as with slog.
type ZapAdapter struct {
	s *zap.SugaredLogger
}

// NewZapAdapter creates a Logger from *zap.Logger. A nil logger yields a no-op.
func NewZapAdapter(logger *zap.Logger) Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{s: logger.Sugar()}
}

// NewZapProduction builds a JSON zap logger at the given level.
func NewZapProduction(level LogLevel) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapAdapter(logger), nil
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.s.Debugw(msg, args...) }

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) { z.s.Infow(msg, args...) }

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.s.Warnw(msg, args...) }

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error { return z.s.Sync() }

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
