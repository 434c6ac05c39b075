package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("alice")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultTimeout, cfg.ClientTimeout())
	assert.Equal(t, DefaultFetchConcurrency, cfg.Concurrency())
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
user: bob
timezone: Europe/Paris
client:
  api_url: http://localhost:9000
  timeout: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, "http://localhost:9000", cfg.Client.APIURL)
	assert.Equal(t, 2*time.Second, cfg.ClientTimeout())
	assert.Equal(t, DefaultFetchConcurrency, cfg.Concurrency())
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown timezone": "timezone: Nowhere/City\n",
		"base path":        "server:\n  base_path: v1\n",
		"timeout":          "client:\n  timeout: soon\n",
		"negative timeout": "client:\n  timeout: -1s\n",
		"concurrency":      "client:\n  fetch_concurrency: -2\n",
		"bad yaml":         "user: [\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalAndWrite(t *testing.T) {
	ws := t.TempDir()
	cfg, err := LoadOptional(ws)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(ws)
	assert.ErrorContains(t, err, "not found")

	want := Default("carol")
	want.Timezone = "UTC"
	want.Server.AllowUserHeader = true
	require.NoError(t, Write(ws, want))
	assert.FileExists(t, filepath.Join(ws, "cadence.yml"))

	got, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	bad := Default("carol")
	bad.Timezone = ""
	assert.Error(t, Write(ws, bad))

	require.NoError(t, os.WriteFile(Path(ws), []byte("timezone: [\n"), 0o644))
	_, err = LoadOptional(ws)
	assert.Error(t, err)
}
