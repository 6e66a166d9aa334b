// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: immutable record with role, content and timestamp
//   - Conversation: ordered, concurrency-safe message list that grows one
//     user/assistant pair at a time
//   - Role: user or assistant
//   - ModelInfo: metadata for models served by the default endpoint
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.Append("Hello!", "Hi, how can I help?")
//	for _, msg := range conv.Snapshot() {
//	    fmt.Printf("%s: %s\n", msg.Role.DisplayName(), msg.Content)
//	}
package model
