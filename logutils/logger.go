package logutils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSettings configures the process logger.
type LogSettings struct {
	Enabled bool   `json:"Enabled"`
	Level   string `json:"Level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	// Development switches to a human readable console encoder.
	Development bool `json:"Development"`
	// File enables rotated file output when Filename is set.
	File FileOptions `json:"File"`
}

var (
	zapLogger   *zap.Logger
	zapLoggerMu sync.RWMutex
)

// ZapLogger returns the process wide logger. It is a no-op logger until
// SetZapLogger is called.
func ZapLogger() *zap.Logger {
	zapLoggerMu.RLock()
	defer zapLoggerMu.RUnlock()
	if zapLogger == nil {
		return zap.NewNop()
	}
	return zapLogger
}

func SetZapLogger(logger *zap.Logger) {
	zapLoggerMu.Lock()
	defer zapLoggerMu.Unlock()
	zapLogger = logger
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewZapLogger builds a logger from settings. Disabled settings give a
// no-op logger.
func NewZapLogger(settings LogSettings) (*zap.Logger, error) {
	if !settings.Enabled {
		return zap.NewNop(), nil
	}

	lvl, err := parseLevel(settings.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if settings.Development {
		devConfig := zap.NewDevelopmentEncoderConfig()
		devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(devConfig)
	}

	var syncer zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if settings.File.Filename != "" {
		syncer = ZapSyncerWithRotation(settings.File)
	}

	return zap.New(zapcore.NewCore(encoder, syncer, zap.NewAtomicLevelAt(lvl)), zap.AddCaller()), nil
}

// InitZapLogger builds a logger from settings and installs it globally.
func InitZapLogger(settings LogSettings) error {
	logger, err := NewZapLogger(settings)
	if err != nil {
		return err
	}
	SetZapLogger(logger)
	return nil
}
