package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: ":memory:"
evaluation:
  interval: 1s
anomaly:
  enabled: false
metrics:
  enabled: false
logging:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewApp(t *testing.T) {
	viper.Reset()
	app, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)
	defer app.SQLite.Close()

	assert.NotNil(t, app.Rules)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.Indicators)
	assert.NotNil(t, app.Engine)
	assert.NotNil(t, app.Scheduler)
	assert.NotNil(t, app.Intel)
	assert.NotNil(t, app.Matcher)
	assert.NotNil(t, app.Anomalies)
	assert.Equal(t, ":memory:", app.Config.Database.Path)
}

func TestApp_StartAndShutdown(t *testing.T) {
	viper.Reset()
	app, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	app.Shutdown()
}

func TestApp_EvaluateOnce(t *testing.T) {
	viper.Reset()
	app, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()

	result, err := app.EvaluateOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.RulesEvaluated)
	assert.Empty(t, result.Triggers)
}

func TestNewApp_MissingConfig(t *testing.T) {
	viper.Reset()
	_, err := NewApp(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, sugar, err := InitLogger(level)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NotNil(t, sugar)
	}

	_, _, err := InitLogger("loud")
	assert.Error(t, err)
}
