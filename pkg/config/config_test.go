package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/config"
)

func TestNewRequiresPathOrEphemeralOrTemp(t *testing.T) {
	_, err := config.New()
	assert.Error(t, err)
}

func TestWithPathAndEphemeralConflict(t *testing.T) {
	_, err := config.New(config.WithEphemeral(), config.WithPath("/tmp/x"))
	assert.Error(t, err)
}

func TestDurabilityDefaults(t *testing.T) {
	cfg, err := config.New(config.WithEphemeral())
	require.NoError(t, err)
	assert.Equal(t, config.DurabilityBatched, cfg.Durability)
	assert.Equal(t, 64, cfg.BatchSize)
}

func TestLoadFileAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("path: /var/lib/strata\ndurability: strict\n"), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/strata", cfg.Path)
	assert.Equal(t, config.DurabilityStrict, cfg.Durability)
	assert.Equal(t, 32, cfg.ShardCount)
}
