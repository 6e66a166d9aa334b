// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage is the optional SQLite transcript archive for dschat.
//
// Every settled exchange is written as one user/assistant pair in a single
// transaction. Clearing the conversation bumps the session's epoch instead of
// deleting rows, so the archive only grows.
//
// # Key Types
//
//   - Archive: the database handle, implements session.Archive
//   - SessionInfo: listing row with a preview of the first question
//   - Transcript: a loaded session, exportable as Markdown or JSON
//
// # Usage
//
//	archive, err := storage.Open(filepath.Join(dir, "history.db"))
//	id, err := archive.BeginSession(ctx, storage.SessionMeta{Model: "deepseek-chat"})
//	err = archive.AppendPair(ctx, id, user, reply)
//	hits, err := archive.Search(ctx, "merhaba", 20)
//
// # Storage Location
//
// ~/.dschat/history.db unless history.path says otherwise. The file is
// created 0600.
package storage
