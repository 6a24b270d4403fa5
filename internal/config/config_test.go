package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty key file", func(c *Config) { c.Node.KeyFile = " " }},
		{"mesh port out of range", func(c *Config) { c.Mesh.ListenPort = 70000 }},
		{"mesh tag missing", func(c *Config) { c.Mesh.MdnsTag = "" }},
		{"hub port zero", func(c *Config) { c.Hub.Enabled = true; c.Hub.Port = 0 }},
		{"hub bad bind", func(c *Config) { c.Hub.Enabled = true; c.Hub.Bind = "nonsense" }},
		{"unknown transport", func(c *Config) { c.Client.Transport = "carrier-pigeon" }},
		{"default transport without hub", func(c *Config) { c.Client.Transport = "default" }},
		{"bad hub url", func(c *Config) {
			c.Client.Transport = "default"
			c.Client.HubURL = "ftp://example.org"
		}},
		{"hub url unspecified host", func(c *Config) {
			c.Client.Transport = "default"
			c.Client.HubURL = "http://0.0.0.0:8787"
		}},
		{"echo without mesh", func(c *Config) { c.Mesh.Enabled = false }},
		{"bad topic", func(c *Config) { c.Client.Topics = []string{"no spaces"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultTransportAcceptsLocalHub(t *testing.T) {
	cfg := Default()
	cfg.Client.Transport = "default"
	cfg.Hub.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Client.HubURL = "ws://127.0.0.1:8787"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node":{"label":"alice"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Node.Label)
	// Untouched sections keep their defaults.
	assert.Equal(t, "signalmesh-mdns", cfg.Mesh.MdnsTag)
}

func TestLoadStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"node":{"label":"bom"}}`)...)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bom", cfg.Node.Label)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"node":{"key_file":""}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	// LoadPartial skips validation for field peeking.
	cfg, err := LoadPartial(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Node.KeyFile)
}

func TestEnsureCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Default(), cfg)

	// Second call loads the existing file.
	_, created, err = Ensure(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSaveValidatesFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	bad := Default()
	bad.Node.KeyFile = ""
	require.Error(t, Save(path, bad))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, Save(path, Default()))

	got := make(chan Config, 4)
	w, err := Watch(path, func(c Config) { got <- c })
	require.NoError(t, err)
	defer w.Close()

	next := Default()
	next.Node.Label = "reloaded"
	require.NoError(t, Save(path, next))

	select {
	case c := <-got:
		assert.Equal(t, "reloaded", c.Node.Label)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestWatchIgnoresInvalidWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, Save(path, Default()))

	got := make(chan Config, 4)
	w, err := Watch(path, func(c Config) { got <- c })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{"node":{"key_file":""}}`), 0o644))

	select {
	case c := <-got:
		t.Fatalf("invalid config must not trigger the callback, got label %q", c.Node.Label)
	case <-time.After(500 * time.Millisecond):
	}
}
