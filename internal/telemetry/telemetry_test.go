package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func initFileLogger(t *testing.T, path string) (*zap.SugaredLogger, func(context.Context) error) {
	t.Helper()
	_, _, logger, shutdown, err := Init(Config{
		ServiceName: "test",
		Exporter:    "none",
		LogFile:     path,
		LogLevel:    "debug",
	})
	require.NoError(t, err)
	return logger, shutdown
}

func TestInitNoneWritesPlainTextRunLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	logger, shutdown := initFileLogger(t, path)
	logger.Infof("Downloading: %s", "yellow_tripdata_2023-01.csv.gz")
	logger.Debugf("File URL: %s", "http://example.invalid/f.csv.gz")
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	assert.Regexp(t,
		`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}(Z|[+-]\d{4}) - INFO - Downloading: yellow_tripdata_2023-01\.csv\.gz$`,
		lines[0])
	assert.Contains(t, lines[1], " - DEBUG - File URL: ")
}

func TestRunLogAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	logger, shutdown := initFileLogger(t, path)
	logger.Info("first run")
	require.NoError(t, shutdown(context.Background()))

	logger, shutdown = initFileLogger(t, path)
	logger.Info("second run")
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first run")
	assert.Contains(t, lines[1], "second run")
}

func TestLogLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zap.InfoLevel, logLevel("").Level())
	assert.Equal(t, zap.DebugLevel, logLevel("debug").Level())
	assert.Equal(t, zap.InfoLevel, logLevel("loud").Level())
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, _, _, _, err := Init(Config{ServiceName: "test", Exporter: "jaeger"})
	assert.Error(t, err)
}
