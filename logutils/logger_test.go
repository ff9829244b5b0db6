package logutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestZapLoggerDefaultsToNop(t *testing.T) {
	SetZapLogger(nil)
	require.NotNil(t, ZapLogger())
	ZapLogger().Info("dropped")
}

func TestNewZapLoggerInvalidLevel(t *testing.T) {
	_, err := NewZapLogger(LogSettings{Enabled: true, Level: "loud"})
	require.Error(t, err)
}

func TestNewZapLoggerWritesRotatedFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "rpc.log")
	logger, err := NewZapLogger(LogSettings{
		Enabled: true,
		Level:   "DEBUG",
		File:    FileOptions{Filename: filename, MaxSize: 1, MaxBackups: 1},
	})
	require.NoError(t, err)

	logger.Debug("hello", zap.String("method", "eth_chainId"))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.Contains(t, string(content), "eth_chainId")
}

func TestInitZapLogger(t *testing.T) {
	defer SetZapLogger(nil)
	require.NoError(t, InitZapLogger(LogSettings{Enabled: true, Level: "warn"}))
	require.True(t, ZapLogger().Core().Enabled(zap.WarnLevel))
	require.False(t, ZapLogger().Core().Enabled(zap.InfoLevel))
}
