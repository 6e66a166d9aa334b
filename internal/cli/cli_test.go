// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/storage"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"list"},
			wantSub: "list",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"list", "--limit", "5"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "5", p.Flag("limit"))
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"export", "abc", "--format=json"},
			wantSub: "export",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "json", p.Flag("format"))
				assert.Equal(t, "abc", p.Positional(1))
			},
		},
		{
			name:    "boolean flag at end",
			args:    []string{"init", "--force"},
			wantSub: "init",
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("force"))
			},
		},
		{
			name:    "declared bool does not swallow the next word",
			args:    []string{"init", "--force", "extra"},
			bools:   []string{"force"},
			wantSub: "init",
			validate: func(t *testing.T, p *ArgParser) {
				assert.True(t, p.BoolFlag("force"))
				assert.Equal(t, "extra", p.Positional(1))
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"search", "error", "in", "production"},
			wantSub: "search",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, 4, p.PositionalCount())
				assert.Equal(t, "error in production", JoinPositionalArgs(p, 1))
			},
		},
		{
			name:    "double dash ends flags",
			args:    []string{"search", "--", "--not-a-flag"},
			wantSub: "search",
			validate: func(t *testing.T, p *ArgParser) {
				assert.Equal(t, "--not-a-flag", p.Positional(1))
				assert.False(t, p.HasFlag("not-a-flag"))
			},
		},
		{
			name:    "lone dash is positional",
			args:    []string{"-"},
			wantSub: "-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args, tt.bools...)
			assert.Equal(t, tt.wantSub, parser.Subcommand())
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

func TestArgParser_FlagIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		defaultVal int
		want       int
	}{
		{"flag present", []string{"list", "--limit", "10"}, 20, 10},
		{"flag missing uses default", []string{"list"}, 20, 20},
		{"invalid int uses default", []string{"list", "--limit", "abc"}, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args)
			assert.Equal(t, tt.want, parser.FlagIntOrDefault("limit", tt.defaultVal))
		})
	}
}

func TestArgParser_EdgeCases(t *testing.T) {
	empty := NewArgParser([]string{})
	assert.Equal(t, "", empty.Subcommand())
	assert.Equal(t, 0, empty.PositionalCount())
	assert.Equal(t, []string{}, empty.PositionalFrom(1))

	flags := NewArgParser([]string{"--verbose", "--json"})
	assert.Equal(t, "", flags.Subcommand())
	assert.True(t, flags.BoolFlag("verbose"))
	assert.True(t, flags.HasFlag("json"))
	assert.False(t, flags.HasFlag("nonexistent"))
	assert.Equal(t, "default", flags.FlagOrDefault("missing", "default"))
}

func TestParseBoolString(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "yes", "y", "1", "on", "ON"} {
		got, err := ParseBoolString(v)
		require.NoError(t, err, v)
		assert.True(t, got, v)
	}
	for _, v := range []string{"false", "no", "N", "0", "off", "Off"} {
		got, err := ParseBoolString(v)
		require.NoError(t, err, v)
		assert.False(t, got, v)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

// =============================================================================
// PARSE TESTS (cli.go)
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		argv        []string
		wantCommand Command
		validate    func(*testing.T, Args)
	}{
		{
			name:        "no arguments starts the UI",
			argv:        nil,
			wantCommand: CmdTUI,
		},
		{
			name:        "ask joins the question",
			argv:        []string{"ask", "Merhaba!", "Sen", "kimsin?"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "Merhaba! Sen kimsin?", a.Query)
				assert.Empty(t, a.Subcommand)
			},
		},
		{
			name:        "ask with json keeps the question",
			argv:        []string{"ask", "--json", "hello"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.JSON)
				assert.Equal(t, "hello", a.Query)
			},
		},
		{
			name:        "model flag before the command",
			argv:        []string{"-m", "deepseek-reasoner", "chat"},
			wantCommand: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "deepseek-reasoner", a.Model)
			},
		},
		{
			name:        "inline flag values",
			argv:        []string{"--endpoint=http://localhost:8080/v1/chat/completions", "--config=/tmp/c.toml", "ask", "hi"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "http://localhost:8080/v1/chat/completions", a.Endpoint)
				assert.Equal(t, "/tmp/c.toml", a.ConfigPath)
			},
		},
		{
			name:        "history flag",
			argv:        []string{"chat", "--history", "-q"},
			wantCommand: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.SendHistory)
				assert.True(t, a.Quiet)
			},
		},
		{
			name:        "config subcommand",
			argv:        []string{"config", "SET", "api.model", "x"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, []string{"SET", "api.model", "x"}, a.Raw)
			},
		},
		{
			name:        "history alias",
			argv:        []string{"sessions", "list"},
			wantCommand: CmdHistory,
		},
		{
			name:        "version flag",
			argv:        []string{"--version"},
			wantCommand: CmdVersion,
		},
		{
			name:        "help flag wins",
			argv:        []string{"ask", "-h"},
			wantCommand: CmdHelp,
		},
		{
			name:        "double dash passes flags through",
			argv:        []string{"ask", "--", "--json"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.False(t, a.JSON)
				assert.Equal(t, "--json", a.Query)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommand, cmd, "got %s", cmd)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse([]string{"frobnicate"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "frobnicate", valErr.Value)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	_, _, err = Parse([]string{"ask", "--model"})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "model", valErr.Field)
}

func TestArgs_ApplyTo(t *testing.T) {
	cfg := config.Default()
	Args{
		Model:       "deepseek-reasoner",
		Endpoint:    "http://localhost:9999/chat",
		SendHistory: true,
		Verbose:     true,
	}.ApplyTo(cfg)

	assert.Equal(t, "deepseek-reasoner", cfg.API.Model)
	assert.Equal(t, "http://localhost:9999/chat", cfg.API.Endpoint)
	assert.True(t, cfg.API.SendHistory)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset flags leave the config alone.
	cfg.API.SendHistory = true
	Args{}.ApplyTo(cfg)
	assert.True(t, cfg.API.SendHistory)
	assert.Equal(t, "deepseek-reasoner", cfg.API.Model)
}

// =============================================================================
// EXIT CODE TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"usage", ErrMissingArgument("question", askUsage), ExitUsageError},
		{"not found", &NotFoundError{Resource: "session", ID: "x"}, ExitNotFoundError},
		{"archive not found", fmt.Errorf("load: %w", storage.ErrSessionNotFound), ExitNotFoundError},
		{"no api key", config.ErrNoAPIKey, ExitConfigError},
		{"config validation", config.ValidateErrors{{Field: "api.model", Message: "empty"}}, ExitConfigError},
		{"history disabled", errHistoryDisabled, ExitConfigError},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"unauthorized", &cloud.TransportError{StatusCode: 401}, ExitAuthError},
		{"forbidden", &cloud.TransportError{StatusCode: 403}, ExitAuthError},
		{"server error", &cloud.TransportError{StatusCode: 500}, ExitGeneralError},
		{"network", &cloud.NetworkError{Op: "dial", Err: errors.New("refused")}, ExitNetworkError},
		{"malformed", &cloud.MalformedResponseError{Reason: "empty choices"}, ExitGeneralError},
		{"reported keeps cause", &ReportedError{Err: &cloud.NetworkError{Op: "dial", Err: errors.New("x")}}, ExitNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, errors.New("boom"), false)
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	DisplayError(&buf, &ReportedError{Err: errors.New("shown already")}, false)
	assert.Empty(t, buf.String())

	buf.Reset()
	DisplayError(&buf, &cloud.TransportError{StatusCode: 500}, true)
	assert.Contains(t, buf.String(), `"error_type": "transport"`)
	assert.Contains(t, buf.String(), `"success": false`)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestReadQuery(t *testing.T) {
	q, err := readQuery("hi", strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hi", q)

	q, err = readQuery("-", strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", q)

	q, err = readQuery("", nil)
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestIsPathWithinDir(t *testing.T) {
	assert.True(t, isPathWithinDir("/home/user/file.md", "/home/user"))
	assert.True(t, isPathWithinDir("/home/user", "/home/user"))
	assert.False(t, isPathWithinDir("/home/userEVIL/file.md", "/home/user"))
	assert.False(t, isPathWithinDir("/etc/passwd", "/home/user"))
}

func TestValidateOutputPath(t *testing.T) {
	_, err := ValidateOutputPath("../../etc/passwd")
	assert.Error(t, err)

	path, err := ValidateOutputPath("transcript.md")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "transcript.md"))
}

func TestFormatDurationShort(t *testing.T) {
	assert.Equal(t, "250ms", formatDurationShort(250_000_000))
	assert.Equal(t, "1.5s", formatDurationShort(1_500_000_000))
	assert.Equal(t, "2m5s", formatDurationShort(125_000_000_000))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-...cdef", maskAPIKey("sk-0123456789abcdef"))
}

// =============================================================================
// BENCHMARKS
// =============================================================================

func BenchmarkArgParser_Complex(b *testing.B) {
	args := []string{"export", "3f2a9c1e", "--format", "json", "--out", "chat.json", "--json"}
	for i := 0; i < b.N; i++ {
		NewArgParser(args, "json")
	}
}
