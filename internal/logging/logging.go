// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger used across dschat.
//
// While the TUI owns the terminal, logs go to a JSON-lines file under the data
// directory. Line-mode commands log to stderr through a console writer.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/config"
)

// Mode selects where log output goes.
type Mode int

const (
	// ModeFile writes JSON lines to config.LogConfig.Path.
	ModeFile Mode = iota
	// ModeConsole writes human-readable lines to stderr.
	ModeConsole
	// ModeDiscard drops everything.
	ModeDiscard
)

// ParseLevel converts a config level name, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// New builds a logger for mode. The returned closer releases the log file and
// is never nil.
func New(cfg config.LogConfig, mode Mode) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)

	switch mode {
	case ModeDiscard:
		return zerolog.Nop(), io.NopCloser(nil), nil

	case ModeConsole:
		return NewWithWriter(os.Stderr, level, true), io.NopCloser(nil), nil

	default:
		f, err := openLogFile(cfg.Path)
		if err != nil {
			return zerolog.Nop(), io.NopCloser(nil), err
		}
		return NewWithWriter(f, level, false), f, nil
	}
}

// NewWithWriter builds a logger writing to w. console selects the
// human-readable format.
func NewWithWriter(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(w),
		}
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger().
		Level(level)
}

// openLogFile opens path for appending with owner-only permissions.
// SECURITY: Logs carry endpoint hosts and key fingerprints.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
