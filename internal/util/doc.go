// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across dschat.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - TruncateWidth, Preview, PadRight: column-aware text shaping for the
//     terminal, backed by go-runewidth
//
// # Usage
//
//	// Show a one-line preview of a long reply
//	line := util.Preview(reply, 60)
//
//	// Export a transcript without risking a half-written file
//	err := util.AtomicWriteFile(path, data, 0600)
package util
