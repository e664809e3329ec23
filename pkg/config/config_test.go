package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RECON_STORE_DSN", "")
	t.Setenv("POSTGRES_DB", "")
	t.Setenv("PREFER_EXT", "")
	t.Setenv("WORKER_POOL_SIZE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaselineDir, cfg.BaselineDir)
	assert.Equal(t, "xlsx", cfg.PreferExt)
	assert.Equal(t, 1, cfg.WorkerPoolSize)
	assert.Nil(t, cfg.Store)
}

func TestLoadConfigStore(t *testing.T) {
	t.Setenv("RECON_STORE_DSN", "")
	t.Setenv("POSTGRES_DB", "recon")
	t.Setenv("POSTGRES_USER", "recon")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Store)
	assert.Equal(t, DriverPgx, cfg.Store.Driver)
	assert.Equal(t, "host=db port=5432 user=recon dbname=recon sslmode=disable", cfg.Store.DSN)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		BaselineDir:    "b",
		CurrentDir:     "c",
		DiffDir:        "d",
		PreferExt:      "pdf",
		WorkerPoolSize: 1,
		LogFormat:      "json",
	}
	assert.Error(t, cfg.Validate())

	cfg.PreferExt = "csv"
	assert.NoError(t, cfg.Validate())

	cfg.Store = &StoreConfig{Driver: "mysql", DSN: "x"}
	assert.Error(t, cfg.Validate())
}

func TestDriverForDSN(t *testing.T) {
	assert.Equal(t, DriverPgx, DriverForDSN("postgres://u@h/db"))
	assert.Equal(t, DriverSQLite, DriverForDSN("file:runs.db?cache=shared"))
	assert.Equal(t, DriverSQLite, DriverForDSN("history.db"))
	assert.Equal(t, DriverPgx, DriverForDSN("host=localhost dbname=x"))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RECON_TEST_ENV_VALUE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RECON_TEST_ENV_VALUE") })

	require.NoError(t, LoadEnvFiles(path, filepath.Join(dir, "absent.env")))
	assert.Equal(t, "loaded", os.Getenv("RECON_TEST_ENV_VALUE"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"FLAG", "NAME"}, splitList(` FLAG, "NAME" ,,`))
	assert.Empty(t, splitList(""))
}
