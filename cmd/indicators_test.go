package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/storage"
)

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, validateFilePath("feed.yaml"))
	assert.NoError(t, validateFilePath("./feeds/feed.yaml"))

	assert.Error(t, validateFilePath("../feed.yaml"))
	assert.Error(t, validateFilePath("feeds/../../feed.yaml"))
	// URL-encoded traversal
	assert.Error(t, validateFilePath("%2e%2e/feed.yaml"))
	assert.Error(t, validateFilePath("/etc/passwd"))
}

func TestImportCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()

	configYAML := `
database:
  path: ./sentinel.db
logging:
  level: error
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(configYAML), 0o600))

	feedYAML := `
- type: ip_address
  value: 203.0.113.50
  severity: high
  confidence: 85
  threat_type: botnet
- type: domain
  value: evil.example.com
  severity: medium
  confidence: 60
`
	require.NoError(t, os.WriteFile("feed.yaml", []byte(feedYAML), 0o600))

	cmd := NewIndicatorsCmd()
	cmd.SetArgs([]string{"import", "feed.yaml", "--source", "testfeed", "--config", "config.yaml", "--quiet"})
	require.NoError(t, cmd.Execute())

	// Verify the indicators landed in the configured database
	sugar := zap.NewNop().Sugar()
	sqlite, err := storage.NewSQLite("./sentinel.db", sugar)
	require.NoError(t, err)
	defer sqlite.Close()

	store := storage.NewSQLiteIndicatorStore(sqlite, sugar)
	ind, err := store.FindByKey(context.Background(), core.IndicatorTypeIPAddress, "203.0.113.50", "testfeed")
	require.NoError(t, err)
	assert.Equal(t, core.SeverityHigh, ind.Severity)
	assert.Equal(t, float64(85), ind.Confidence)

	_, err = store.FindByKey(context.Background(), core.IndicatorTypeDomain, "evil.example.com", "testfeed")
	assert.NoError(t, err)
}

func TestImportCommand_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()

	cmd := NewIndicatorsCmd()
	cmd.SetArgs([]string{"import", "absent.yaml", "--quiet"})
	assert.Error(t, cmd.Execute())
}
