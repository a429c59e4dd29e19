// Package logging provides the structured logger shared by every MWA
// protocol package. It wraps go.uber.org/zap, selecting between a JSON and
// a logfmt encoder at construction time.
package logging

import (
	"context"
	"os"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zap's level names without exposing zapcore to callers.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config configures a Logger. Zero value logs at info level, JSON-encoded,
// to stderr.
type Config struct {
	Format string `env:"MWA_LOG_FORMAT" env-default:"json"` // json, logfmt, or console
	Level  Level  `env:"MWA_LOG_LEVEL" env-default:"info"`
}

// Logger is the logging contract used throughout the module. Implementations
// treat keysAndValues as alternating key/value pairs, as zap's SugaredLogger
// does.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	// With returns a derived logger carrying an additional key-value pair
	// on every subsequent log line.
	With(key string, value interface{}) Logger
	// Named returns a derived logger scoped to the given subsystem name.
	Named(name string) Logger
}

type zapLogger struct {
	lg *zap.SugaredLogger
}

// New builds a Logger per conf. Format "logfmt" uses zap-logfmt; anything
// else but "console" falls back to JSON.
func New(conf Config) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}

	var encoder zapcore.Encoder
	switch conf.Format {
	case "logfmt":
		encoder = zaplogfmt.NewEncoder(encCfg)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), toZapLevel(conf.Level))
	lg := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return &zapLogger{lg: lg}
}

// Default returns a Logger configured from MWA_LOG_LEVEL / MWA_LOG_FORMAT,
// for packages that need a logger without threading one through.
func Default() Logger {
	return New(Config{
		Format: envOr("MWA_LOG_FORMAT", "json"),
		Level:  Level(envOr("MWA_LOG_LEVEL", "info")),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, kvs ...interface{}) { l.lg.Debugw(msg, kvs...) }
func (l *zapLogger) Info(msg string, kvs ...interface{})  { l.lg.Infow(msg, kvs...) }
func (l *zapLogger) Warn(msg string, kvs ...interface{})  { l.lg.Warnw(msg, kvs...) }
func (l *zapLogger) Error(msg string, kvs ...interface{}) { l.lg.Errorw(msg, kvs...) }
func (l *zapLogger) Fatal(msg string, kvs ...interface{}) { l.lg.Fatalw(msg, kvs...) }

func (l *zapLogger) With(key string, value interface{}) Logger {
	return &zapLogger{lg: l.lg.With(key, value)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{lg: l.lg.Named(name)}
}

type loggerContextKey struct{}

// ContextWithLogger attaches lg to ctx.
func ContextWithLogger(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// FromContext retrieves the logger stored on ctx, or Default() if none was
// attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return Default()
}
