// Package log provides structured logging with bridge and flight context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the relay paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with bridge context.
// Every entry carries the component and bridge_id fields; flight-scoped
// loggers add flight_id.
type Logger struct {
	zap    *zap.Logger
	level  zap.AtomicLevel
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// Options configures a Logger.
type Options struct {
	// Component names the emitting side, e.g. "secondary" or "primary".
	Component string
	// BridgeID identifies this bridge process.
	BridgeID string
	// Level is the minimum level: debug, info, warn, error. Default info.
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger creates a logger writing JSON to os.Stderr at debug level.
func NewLogger(component, bridgeID string) *Logger {
	l, _ := New(Options{Component: component, BridgeID: bridgeID, Level: "debug"})
	return l
}

// New creates a logger from options.
// Returns an error if the level string is not recognised; the returned
// logger is still usable and logs at info.
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	var levelErr error
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			levelErr = err
		} else {
			level.SetLevel(parsed)
		}
	}

	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	contextFields := []zap.Field{
		zap.String("component", opts.Component),
	}
	if opts.BridgeID != "" {
		contextFields = append(contextFields, zap.String("bridge_id", opts.BridgeID))
	}

	return &Logger{zap: zap.New(core).With(contextFields...), level: level, fields: contextFields}, levelErr
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
// Context fields and level are preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		l.level,
	)
	return &Logger{zap: zap.New(core).With(l.fields...), level: l.level, fields: l.fields}
}

// WithFlight returns a logger scoped to one run:domain:fn flight.
func (l *Logger) WithFlight(flightID string) *Logger {
	fields := make([]zap.Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, zap.String("flight_id", flightID))
	return &Logger{zap: l.zap.With(zap.String("flight_id", flightID)), level: l.level, fields: fields}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
