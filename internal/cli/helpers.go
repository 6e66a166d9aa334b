// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Small helpers shared across commands.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxStdinQuery bounds a question read from a pipe.
const maxStdinQuery = 1 << 20

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

// readQuery returns the question from args, or from r when the query is
// "-" or empty.
func readQuery(query string, r io.Reader) (string, error) {
	if query != "" && query != "-" {
		return query, nil
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxStdinQuery))
	if err != nil {
		return "", fmt.Errorf("failed to read question from stdin: %w", err)
	}
	return string(data), nil
}

// ValidateOutputPath ensures path is inside the home, working or temp
// directory and returns it absolute.
// SECURITY: Rejects traversal and paths outside those roots.
func ValidateOutputPath(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", errors.New("path traversal not allowed")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	for _, dir := range []string{home, cwd, os.TempDir()} {
		if dir != "" && isPathWithinDir(abs, dir) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path must be within home, cwd, or temp directory")
}

// isPathWithinDir checks path boundaries, so /home/userEVIL is not inside
// /home/user.
func isPathWithinDir(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)
	if cleanPath == cleanDir {
		return true
	}
	return strings.HasPrefix(cleanPath, cleanDir+string(filepath.Separator))
}
