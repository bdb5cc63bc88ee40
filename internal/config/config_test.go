package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, def(), cfg)

	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadJSONThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":"9000","dbSchema":"inventory","commitBatchSize":50}`), 0o644))
	t.Setenv("TABLESYNC_PORT", "9100")
	t.Setenv("TABLESYNC_GENERIC_TABLE", "ext_ids")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "inventory", cfg.DBSchema)
	assert.Equal(t, 50, cfg.CommitBatchSize)
	assert.Equal(t, "ext_ids", cfg.GenericTable)
	assert.Equal(t, "res_id", cfg.GenericIDColumn)
}

func TestLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	t.Run("bad batch size", func(t *testing.T) {
		t.Setenv("TABLESYNC_COMMIT_BATCH_SIZE", "many")
		_, err := Load("")
		assert.ErrorContains(t, err, "TABLESYNC_COMMIT_BATCH_SIZE")
	})
	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("TABLESYNC_STATEMENT_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "statementTimeout")
	})
}

func TestTimeoutDisabled(t *testing.T) {
	for _, s := range []string{"", "0"} {
		d, err := Config{StatementTimeout: s}.Timeout()
		require.NoError(t, err)
		assert.Zero(t, d)
	}
}
