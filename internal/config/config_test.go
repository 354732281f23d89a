package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8710", cfg.APIAddr)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval.Std())
	assert.True(t, cfg.EnforceStrictLock)
	assert.Equal(t, 150.0, cfg.Geofence.RadiusMeters)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /tmp/sg-test
api_addr: "127.0.0.1:9999"
reconcile_interval: 2m
geofence:
  latitude: 52.52
  longitude: 13.405
  radius_meters: 200
enforce_strict_lock: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/sg-test", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9999", cfg.APIAddr)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileInterval.Std())
	assert.Equal(t, 52.52, cfg.Geofence.Latitude)
	assert.Equal(t, 200.0, cfg.Geofence.RadiusMeters)
	assert.False(t, cfg.EnforceStrictLock)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8710", cfg.APIAddr)
}

func TestLoad_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from/file"), 0600))

	t.Setenv("STRIDEGATE_DATA_DIR", "/from/env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
}

func TestNormalize_ClampsRadius(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("geofence:\n  radius_meters: 3"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Geofence.RadiusMeters)
}

func TestDuration_ParsesStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_interval: 250ms"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.SampleInterval.Std())
}
