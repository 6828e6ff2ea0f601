// Package logger wraps a process-wide zap logger.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is a no-op until Initialize is called.
var Log = zap.NewNop()

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Config holds logger configuration
type Config struct {
	Level       string
	LogDir      string
	Environment string
	ServiceName string
}

func newEncoder(environment string) zapcore.Encoder {
	if environment == "development" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

// newSink returns stdout, tee'd to a rotated file in production when a directory is set
func newSink(cfg Config) (zapcore.WriteSyncer, error) {
	stdout := zapcore.Lock(os.Stdout)
	if cfg.Environment != "production" || cfg.LogDir == "" {
		return stdout, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "relay"
	}

	return zapcore.NewMultiWriteSyncer(stdout, zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, name+".log"),
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	})), nil
}

// Initialize sets up the global logger
func Initialize(cfg Config) error {
	if err := SetLevel(cfg.Level); err != nil {
		return err
	}

	sink, err := newSink(cfg)
	if err != nil {
		return err
	}

	l := zap.New(zapcore.NewCore(newEncoder(cfg.Environment), sink, level),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}

	Log = l
	return nil
}

// SetLevel changes the level of the global logger at runtime. Empty means info.
func SetLevel(name string) error {
	if name == "" {
		level.SetLevel(zapcore.InfoLevel)
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %s: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync() //nolint:errcheck
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(addr string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// Email is a zap field carrying a masked address. Submitters' addresses never reach the logs in clear.
func Email(key, addr string) zap.Field {
	return zap.String(key, MaskEmail(addr))
}

// LogHTTPRequest logs a served request at a level derived from its status
func LogHTTPRequest(method, path string, statusCode int, duration float64, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Float64("duration", duration),
	}, fields...)

	switch {
	case statusCode >= 500:
		Error("HTTP request failed", fields...)
	case statusCode == 429:
		Info("HTTP request rate limited", fields...)
	case statusCode >= 400:
		Warn("HTTP request client error", fields...)
	default:
		Info("HTTP request", fields...)
	}
}

// LogAPICall logs one call to an email provider
func LogAPICall(provider, operation, status string, duration float64, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("provider", provider),
		zap.String("operation", operation),
		zap.String("status", status),
		zap.Float64("duration", duration),
	}, fields...)

	if status == "error" {
		Warn("Provider call failed", fields...)
		return
	}
	Info("Provider call", fields...)
}
