// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// Default environment variables holding the API key.
const (
	DefaultKeyEnv  = "DSCHAT_API_KEY"
	FallbackKeyEnv = "DEEPSEEK_API_KEY"
)

// ErrNoAPIKey is returned by RequireAPIKey when no key was found.
var ErrNoAPIKey = errors.New("no API key: set " + DefaultKeyEnv + " or " + FallbackKeyEnv)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete dschat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	History HistoryConfig `toml:"history" json:"history"`
	Log     LogConfig     `toml:"log" json:"log"`

	// path is the file this config was loaded from, if any.
	path string
	// warnings collects non-fatal problems found while loading.
	warnings []string
}

// APIConfig describes the chat completions endpoint.
type APIConfig struct {
	// Endpoint is the full URL requests are POSTed to.
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// Model is sent as the request's model field.
	Model string `toml:"model" json:"model"`
	// SystemPrompt is the fixed instruction sent first. Empty omits it.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// Temperature is the sampling temperature (0.0-2.0).
	Temperature float64 `toml:"temperature" json:"temperature"`
	// TimeoutSeconds bounds one exchange. 0 disables the client timeout.
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
	// SendHistory sends the conversation so far with each message.
	SendHistory bool `toml:"send_history" json:"send_history"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `toml:"key_env" json:"key_env"`

	// APIKey is resolved from the environment and never written out.
	APIKey string `toml:"-" json:"-"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies as Markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// WordWrap is the column at which rendered replies wrap. 0 follows the
	// terminal width.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// QuickPrompts are sent by F1..F9 in the TUI and /quick N in the REPL.
	QuickPrompts []string `toml:"quick_prompts" json:"quick_prompts"`
}

// HistoryConfig controls the transcript archive.
type HistoryConfig struct {
	// Enabled records every exchange to the archive.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level" json:"level"`
	// Path is the log file used while the TUI owns the terminal.
	Path string `toml:"path" json:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// MaxQuickPrompts is the number of quick prompt slots (F1..F9).
const MaxQuickPrompts = 9

// Default returns a configuration with default values. Paths are left empty
// and filled by SetDefaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		API: APIConfig{
			Endpoint:       cloud.DefaultEndpoint,
			Model:          model.DefaultModel,
			SystemPrompt:   cloud.DefaultSystemPrompt,
			Temperature:    cloud.DefaultTemperature,
			TimeoutSeconds: int(cloud.DefaultTimeout.Seconds()),
			SendHistory:    false,
			KeyEnv:         DefaultKeyEnv,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
			WordWrap: 0,
			QuickPrompts: []string{
				"Merhaba! Sen kimsin?",
				"Python'da bir 'Hello World' kodu yaz",
			},
		},
		History: HistoryConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the dschat data directory: $DSCHAT_HOME or ~/.dschat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("DSCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".dschat"), nil
}

// ConfigPath returns the config file path: $DSCHAT_CONFIG or
// <ConfigDir>/config.toml.
func ConfigPath() (string, error) {
	if p := os.Getenv("DSCHAT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the data directory with owner-only permissions.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens the config file to 0600.
// SECURITY: The file may carry a system prompt or endpoint the user wants kept
// private.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// Warnings returns non-fatal problems found while loading.
func (c *Config) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

func (c *Config) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file at ConfigPath if it exists, then applies
// environment overrides and defaults and validates the result.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file is not an error;
// defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Keys absent from the file keep their
// current values, so decoding over Default() yields defaults for them.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		cfg.warnf("could not ensure secure permissions on %s: %v", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	for _, key := range md.Undecoded() {
		cfg.warnf("unknown config key %q ignored", key.String())
	}
	return nil
}

// SetDefaults fills derived values: file paths under ConfigDir and the API
// key from the environment.
func (c *Config) SetDefaults() error {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.API.KeyEnv == "" {
		c.API.KeyEnv = DefaultKeyEnv
	}
	if c.History.Path == "" || c.Log.Path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		if c.History.Path == "" {
			c.History.Path = filepath.Join(dir, "history.db")
		}
		if c.Log.Path == "" {
			c.Log.Path = filepath.Join(dir, "dschat.log")
		}
	}
	c.History.Path = expandHome(c.History.Path)
	c.Log.Path = expandHome(c.Log.Path)

	if c.API.APIKey == "" {
		c.API.APIKey = ResolveAPIKey(c.API.KeyEnv)
	}
	return nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// ResolveAPIKey reads the key from keyEnv, falling back to DEEPSEEK_API_KEY.
// SECURITY: The key only ever comes from the environment.
func ResolveAPIKey(keyEnv string) string {
	if keyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(keyEnv)); key != "" {
			return key
		}
	}
	return strings.TrimSpace(os.Getenv(FallbackKeyEnv))
}

// RequireAPIKey returns ErrNoAPIKey when no key was resolved.
func (c *Config) RequireAPIKey() error {
	if c.API.APIKey == "" {
		if c.API.KeyEnv != DefaultKeyEnv {
			return fmt.Errorf("%w (api.key_env is %s)", ErrNoAPIKey, c.API.KeyEnv)
		}
		return ErrNoAPIKey
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to ConfigPath.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path with 0600 permissions. The API
// key is never written.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# dschat configuration file\n")
	buf.WriteString("# The API key is read from the environment variable named by api.key_env.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes    = map[string]bool{"auto": true, "dark": true, "light": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate checks the configuration. It does not require an API key; see
// RequireAPIKey.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.API.Endpoint); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "api.endpoint",
			Message: fmt.Sprintf("invalid URL '%s', must be an absolute http(s) URL", c.API.Endpoint),
		})
	}
	if strings.TrimSpace(c.API.Model) == "" {
		errs = append(errs, ValidationError{Field: "api.model", Message: "must not be empty"})
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "api.temperature",
			Message: fmt.Sprintf("%.2f out of range, must be between 0.0 and 2.0", c.API.Temperature),
		})
	}
	if c.API.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{Field: "api.timeout_seconds", Message: "must not be negative"})
	}

	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must not be negative"})
	}
	if len(c.UI.QuickPrompts) > MaxQuickPrompts {
		errs = append(errs, ValidationError{
			Field:   "ui.quick_prompts",
			Message: fmt.Sprintf("at most %d prompts allowed, got %d", MaxQuickPrompts, len(c.UI.QuickPrompts)),
		})
	}
	for i, p := range c.UI.QuickPrompts {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("ui.quick_prompts[%d]", i),
				Message: "must not be blank",
			})
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - DSCHAT_ENDPOINT: overrides api.endpoint
//   - DSCHAT_MODEL: overrides api.model
//   - DSCHAT_SYSTEM_PROMPT: overrides api.system_prompt
//   - DSCHAT_TEMPERATURE: overrides api.temperature
//   - DSCHAT_SEND_HISTORY: "1"/"true" sends conversation history
//   - DSCHAT_HISTORY: "1"/"true" enables the transcript archive
//   - DSCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DSCHAT_ENDPOINT"); v != "" {
		c.API.Endpoint = v
	}
	if v := os.Getenv("DSCHAT_MODEL"); v != "" {
		c.API.Model = v
	}
	if v, ok := os.LookupEnv("DSCHAT_SYSTEM_PROMPT"); ok {
		c.API.SystemPrompt = v
	}
	if v := os.Getenv("DSCHAT_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.API.Temperature = t
		} else {
			c.warnf("ignoring DSCHAT_TEMPERATURE=%q: %v", v, err)
		}
	}
	if v := os.Getenv("DSCHAT_SEND_HISTORY"); v != "" {
		c.API.SendHistory = envBool(v)
	}
	if v := os.Getenv("DSCHAT_HISTORY"); v != "" {
		c.History.Enabled = envBool(v)
	}
	if v := os.Getenv("DSCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

func envBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys returns every settable key in dot notation, e.g. "api.model".
func Keys() []string {
	var keys []string
	walkFields(reflect.TypeOf(Config{}), "", func(key string, _ []int) {
		keys = append(keys, key)
	})
	return keys
}

// walkFields visits every tagged leaf field of t.
func walkFields(t reflect.Type, prefix string, visit func(key string, index []int)) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("toml"), ",")[0]
		if !f.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			walkFields(f.Type, key, func(k string, idx []int) {
				visit(k, append([]int{i}, idx...))
			})
			continue
		}
		visit(key, []int{i})
	}
}

// lookupField returns the addressable field for key.
func (c *Config) lookupField(key string) (reflect.Value, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	var found []int
	walkFields(reflect.TypeOf(*c), "", func(k string, idx []int) {
		if k == key {
			found = idx
		}
	})
	if found == nil {
		if key == "api.api_key" || key == "api.key" {
			return reflect.Value{}, fmt.Errorf("the API key is read from the environment (see api.key_env)")
		}
		return reflect.Value{}, fmt.Errorf("unknown config key: %s", key)
	}
	return reflect.ValueOf(c).Elem().FieldByIndex(found), nil
}

// Get returns the value at key in dot notation.
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookupField(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value and assigns it to key. Slices take comma-separated items.
// The result is validated; on failure the config is left unchanged.
func (c *Config) Set(key, value string) error {
	field, err := c.lookupField(key)
	if err != nil {
		return err
	}
	old := reflect.New(field.Type()).Elem()
	old.Set(field)

	if err := setFieldValue(field, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := c.Validate(); err != nil {
		field.Set(old)
		return err
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", value)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", value)
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", value)
		}
		field.SetFloat(f)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}

// =============================================================================
// COPY AND DISPLAY
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.UI.QuickPrompts = append([]string(nil), c.UI.QuickPrompts...)
	clone.warnings = append([]string(nil), c.warnings...)
	return &clone
}

// String returns the config as indented JSON.
// SECURITY: APIKey is tagged json:"-" and never appears here.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// TOML returns the config encoded as TOML, as Save would write it.
func (c *Config) TOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// A load failure falls back to defaults.
func Global() *Config {
	globalConfigMu.RLock()
	cfg := globalConfig
	globalConfigMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	if globalConfig == nil {
		loaded, err := Load()
		if err != nil {
			loaded = Default()
			loaded.warnf("%v (using defaults)", err)
			_ = loaded.SetDefaults()
		}
		globalConfig = loaded
	}
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the process-wide configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
}
