package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) LookupEnv {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultFileMatchesDefault(t *testing.T) {
	cfg, err := Parse([]byte(DefaultFile))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("server:\n  prot: 9000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Partial(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9000\n  read_timeout: 2s\ndatabase:\n  driver: sqlite\n"))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "crudkit.db", cfg.Database.Path, "untouched keys keep defaults")
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\nlogging:\n  format: xml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\ndatabase:\n  path: file.db\n"), 0o644))

	cfg, source, err := Load(path, env(map[string]string{
		"PORT":                "7000",
		"CRUDKIT_SPECS":       "/specs",
		"CRUDKIT_CORS_ORIGIN": "*",
		"CRUDKIT_LOG_LEVEL":   "",
	}))
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, 7000, cfg.Server.Port, "env beats file")
	assert.Equal(t, "file.db", cfg.Database.Path, "file beats default")
	assert.Equal(t, "/specs", cfg.Catalog.SpecsDir)
	assert.Equal(t, "*", cfg.Server.CORSOrigin)
	assert.Equal(t, "info", cfg.Logging.Level, "empty env values are ignored")
	assert.Equal(t, ":7000", cfg.Server.Addr())
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err, "explicit path must exist")

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, _, err = Load(path, nil)
	assert.Error(t, err)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), env(map[string]string{"PORT": "http"}))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, source, err := Load("", env(map[string]string{"CRUDKIT_DB": "env.db"}))
	require.NoError(t, err)
	assert.Empty(t, source)
	assert.Equal(t, "env.db", cfg.Database.Path)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, string(data))

	err = WriteDefault(path, false)
	assert.True(t, errors.Is(err, ErrExists))

	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	require.NoError(t, WriteDefault(path, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, string(data))
}
