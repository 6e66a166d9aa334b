// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"DSCHAT_HOME", "DSCHAT_CONFIG", "DSCHAT_API_KEY", "DEEPSEEK_API_KEY",
	"DSCHAT_ENDPOINT", "DSCHAT_MODEL", "DSCHAT_SYSTEM_PROMPT", "DSCHAT_TEMPERATURE",
	"DSCHAT_SEND_HISTORY", "DSCHAT_HISTORY", "DSCHAT_LOG_LEVEL",
}

// isolateEnv unsets every variable the loader reads and points DSCHAT_HOME
// at a temp dir. It returns that dir.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	dir := t.TempDir()
	t.Setenv("DSCHAT_HOME", dir)
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := isolateEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.deepseek.com/chat/completions", cfg.API.Endpoint)
	assert.Equal(t, "deepseek-chat", cfg.API.Model)
	assert.Equal(t, 0.7, cfg.API.Temperature)
	assert.False(t, cfg.API.SendHistory)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.History.Path)
	assert.Equal(t, filepath.Join(dir, "dschat.log"), cfg.Log.Path)
	assert.Equal(t, filepath.Join(dir, "config.toml"), cfg.Path())
	assert.Len(t, cfg.UI.QuickPrompts, 2)
	assert.Empty(t, cfg.API.APIKey)
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrNoAPIKey)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, `
[api]
model = "deepseek-reasoner"
temperature = 0.0
send_history = true

[ui]
quick_prompts = ["one", "two", "three"]

[log]
level = "debug"
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "deepseek-reasoner", cfg.API.Model)
	assert.Equal(t, 0.0, cfg.API.Temperature, "explicit zero must survive defaults")
	assert.True(t, cfg.API.SendHistory)
	assert.Equal(t, []string{"one", "two", "three"}, cfg.UI.QuickPrompts)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep defaults.
	assert.Equal(t, "https://api.deepseek.com/chat/completions", cfg.API.Endpoint)
	assert.True(t, cfg.UI.Markdown)
}

func TestLoad_UnknownKeysWarn(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "[api]\nmodle = \"typo\"\n")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings(), 1)
	assert.Contains(t, cfg.Warnings()[0], "api.modle")
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "[api\nmodel=")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_FixesPermissions(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, "[api]\nmodel = \"deepseek-chat\"\n")
	require.NoError(t, os.Chmod(path, 0644))

	_, err := Load()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	isolateEnv(t)
	other := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(other, []byte("[api]\nmodel = \"custom\"\n"), 0600))
	t.Setenv("DSCHAT_CONFIG", other)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.API.Model)
	assert.Equal(t, other, cfg.Path())
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DSCHAT_ENDPOINT", "http://localhost:9999/v1/chat/completions")
	t.Setenv("DSCHAT_MODEL", "env-model")
	t.Setenv("DSCHAT_TEMPERATURE", "1.25")
	t.Setenv("DSCHAT_SEND_HISTORY", "true")
	t.Setenv("DSCHAT_HISTORY", "1")
	t.Setenv("DSCHAT_LOG_LEVEL", "WARN")
	t.Setenv("DSCHAT_SYSTEM_PROMPT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/v1/chat/completions", cfg.API.Endpoint)
	assert.Equal(t, "env-model", cfg.API.Model)
	assert.Equal(t, 1.25, cfg.API.Temperature)
	assert.True(t, cfg.API.SendHistory)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "", cfg.API.SystemPrompt, "set-but-empty prompt disables the system message")
}

func TestApplyEnvOverrides_BadTemperatureWarns(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DSCHAT_TEMPERATURE", "hot")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.API.Temperature)
	require.NotEmpty(t, cfg.Warnings())
	assert.Contains(t, cfg.Warnings()[0], "DSCHAT_TEMPERATURE")
}

func TestResolveAPIKey(t *testing.T) {
	isolateEnv(t)

	t.Setenv("DEEPSEEK_API_KEY", "sk-fallback")
	assert.Equal(t, "sk-fallback", ResolveAPIKey(DefaultKeyEnv))

	t.Setenv("DSCHAT_API_KEY", "  sk-primary  ")
	assert.Equal(t, "sk-primary", ResolveAPIKey(DefaultKeyEnv))

	t.Setenv("MY_KEY", "sk-custom")
	assert.Equal(t, "sk-custom", ResolveAPIKey("MY_KEY"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-primary", cfg.API.APIKey)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestRequireAPIKey_NamesCustomVariable(t *testing.T) {
	isolateEnv(t)
	cfg := Default()
	cfg.API.KeyEnv = "WORK_KEY"
	require.NoError(t, cfg.SetDefaults())

	err := cfg.RequireAPIKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORK_KEY")
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad endpoint", func(c *Config) { c.API.Endpoint = "not a url" }, "api.endpoint"},
		{"ftp endpoint", func(c *Config) { c.API.Endpoint = "ftp://example.com/x" }, "api.endpoint"},
		{"empty model", func(c *Config) { c.API.Model = " " }, "api.model"},
		{"hot", func(c *Config) { c.API.Temperature = 2.5 }, "api.temperature"},
		{"cold", func(c *Config) { c.API.Temperature = -0.1 }, "api.temperature"},
		{"timeout", func(c *Config) { c.API.TimeoutSeconds = -1 }, "api.timeout_seconds"},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"wrap", func(c *Config) { c.UI.WordWrap = -5 }, "ui.word_wrap"},
		{"blank prompt", func(c *Config) { c.UI.QuickPrompts = []string{"ok", "  "} }, "ui.quick_prompts[1]"},
		{"too many prompts", func(c *Config) { c.UI.QuickPrompts = strings.Split("a,b,c,d,e,f,g,h,i,j", ",") }, "ui.quick_prompts"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "error = %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

// =============================================================================
// SAVE AND DISPLAY
// =============================================================================

func TestSaveTOML_RoundTripWithoutKey(t *testing.T) {
	dir := isolateEnv(t)
	cfg := Default()
	cfg.API.Model = "saved-model"
	cfg.API.APIKey = "sk-secret-value"
	cfg.History.Enabled = true

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-value")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.API.Model)
	assert.True(t, loaded.History.Enabled)
	assert.Empty(t, loaded.API.APIKey)
}

func TestString_OmitsKey(t *testing.T) {
	cfg := Default()
	cfg.API.APIKey = "sk-secret-value"
	assert.NotContains(t, cfg.String(), "sk-secret-value")
	assert.Contains(t, cfg.String(), "deepseek-chat")

	out, err := cfg.TOML()
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret-value")
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.UI.QuickPrompts[0] = "changed"
	assert.NotEqual(t, "changed", cfg.UI.QuickPrompts[0])
}

// =============================================================================
// GET / SET
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("api.model")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", v)

	require.NoError(t, cfg.Set("api.temperature", "1.1"))
	assert.Equal(t, 1.1, cfg.API.Temperature)

	require.NoError(t, cfg.Set("api.send_history", "true"))
	assert.True(t, cfg.API.SendHistory)

	require.NoError(t, cfg.Set("ui.word_wrap", "100"))
	assert.Equal(t, 100, cfg.UI.WordWrap)

	require.NoError(t, cfg.Set("ui.quick_prompts", "a, b ,c"))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.UI.QuickPrompts)

	// Invalid values leave the config unchanged.
	assert.Error(t, cfg.Set("api.temperature", "9"))
	assert.Equal(t, 1.1, cfg.API.Temperature)
	assert.Error(t, cfg.Set("api.send_history", "maybe"))
	assert.Error(t, cfg.Set("nope.key", "x"))

	err = cfg.Set("api.api_key", "sk-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "api.endpoint")
	assert.Contains(t, keys, "ui.quick_prompts")
	assert.Contains(t, keys, "history.enabled")
	assert.NotContains(t, keys, "api.api_key")
}

// =============================================================================
// GLOBAL AND WATCH
// =============================================================================

// TestConfig_ConcurrentAccess checks Global and SetGlobal under contention.
// Run with: go test -race -run TestConfig_ConcurrentAccess
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolateEnv(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, "[api]\nmodel = \"first\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
			if err == nil {
				reloaded <- cfg
			}
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[api]\nmodel = \"second\"\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "second", cfg.API.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
