package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

const sampleConfig = `
log_level: debug
chunk_table: chunks-test
quality_area: ap-southeast
policy: latency
fragments_needed: 3
fetch_timeout: 250ms
servers:
  edge-a: s3://fragments-a
  edge-b:
    uri: http://10.0.0.7:8080/blocks
  edge-c:
    uri: gs://fragments-c
  broken:
    region: nowhere
`

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "zstream"}
	root.PersistentFlags().String("config", "", "config file")
	root.PersistentFlags().String("log-level", "", "log level")
	return root
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	t.Setenv("AWS_REGION", "ap-southeast-1")
	t.Setenv("TRADEOFF_WEIGHT", "42")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig), newRoot())
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "chunks-test", cfg.ChunkTable)
	assert.Equal(t, "server_quality", cfg.QualityTable, "default")
	assert.Equal(t, "ap-southeast", cfg.QualityArea)
	assert.Equal(t, "latency", cfg.Policy)
	assert.Equal(t, 3, cfg.FragmentsNeeded)
	assert.Equal(t, 42.0, cfg.TradeoffWeight, "environment overrides default")
	assert.Equal(t, 5.0, cfg.QueueThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, "order-statistic", cfg.Reward)
	assert.Equal(t, 4, cfg.DataShards)
	assert.Equal(t, 2, cfg.ParityShards)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "ap-southeast-1", cfg.AwsConfig.Region)
	assert.Nil(t, cfg.GcsClient)

	assert.Equal(t, map[string]string{
		"edge-a": "s3://fragments-a",
		"edge-b": "http://10.0.0.7:8080/blocks",
		"edge-c": "gs://fragments-c",
	}, cfg.Servers)
	assert.True(t, NeedsGCS(cfg.Servers))
}

func TestLoadConfig_FlagOverridesFile(t *testing.T) {
	viper.Reset()
	t.Setenv("AWS_REGION", "us-east-1")

	root := newRoot()
	require.NoError(t, root.PersistentFlags().Set("log-level", "trace"))

	cfg, err := LoadConfig(writeConfig(t, sampleConfig), root)
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	viper.Reset()
	t.Setenv("AWS_REGION", "us-east-1")

	_, err := LoadConfig(writeConfig(t, "policy: fastest\n"), newRoot())
	assert.ErrorIs(t, err, zerrors.ErrInvalidParameters)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ChunkTable:      "c",
			QualityTable:    "q",
			Policy:          "deadline",
			FragmentsNeeded: 2,
			FetchTimeout:    time.Second,
			DataShards:      2,
			ParityShards:    1,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no fragments", func(c *Config) { c.FragmentsNeeded = 0 }},
		{"negative weight", func(c *Config) { c.TradeoffWeight = -1 }},
		{"zero timeout", func(c *Config) { c.FetchTimeout = 0 }},
		{"no data shards", func(c *Config) { c.DataShards = 0 }},
		{"unknown policy", func(c *Config) { c.Policy = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), zerrors.ErrInvalidParameters)
		})
	}

	c := valid()
	c.ChunkTable = ""
	assert.EqualError(t, c.Validate(), "the chunk_table configuration value must be set")
}

func TestNeedsGCS(t *testing.T) {
	assert.False(t, NeedsGCS(map[string]string{"a": "s3://x", "b": "http://y"}))
	assert.True(t, NeedsGCS(map[string]string{"a": " GS://x"}))
	assert.False(t, NeedsGCS(nil))
}
