package poolconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "max_size: 10\ntimeout: 2s\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 10, s.MaxSize)
	assert.Equal(t, 2*time.Second, s.Timeout)
	assert.EqualValues(t, 1, s.MinSize, "unset fields keep Default()'s values")
}

func TestLoadRejectsMinSizeAboveMaxSize(t *testing.T) {
	path := writeConfig(t, "max_size: 1\nmin_size: 5\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAppliesLogLevelEnvOverride(t *testing.T) {
	path := writeConfig(t, "log_level: warn\n")
	t.Setenv("LOG_LEVEL", "debug")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestLoadAppliesWerkzeugWorkaroundEnv(t *testing.T) {
	path := writeConfig(t, "max_size: 1\n")
	t.Setenv("PPP_WERKZEUG_WORKAROUND", "1")

	s, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, s.StartHousekeeper)
	assert.False(t, *s.StartHousekeeper)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
