// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered, in-memory message list of one chat session.
//
// Messages only enter through Append, which adds a user message and its reply
// under a single lock acquisition. Readers therefore always observe an even
// number of messages. Clear resets the list; nothing else removes messages.
//
// A Conversation is safe for concurrent use.
type Conversation struct {
	mu        sync.RWMutex
	messages  []Message
	updatedAt time.Time
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		messages:  make([]Message, 0),
		updatedAt: time.Now(),
	}
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds the user's text followed by the reply text, in that order.
// Content is not validated; empty or arbitrary text is stored as given.
// It returns the two stored messages.
func (c *Conversation) Append(userText, replyText string) (Message, Message) {
	user := NewUserMessage(userText)
	reply := NewAssistantMessage(replyText)
	// The reply never predates the question it answers.
	if reply.Timestamp.Before(user.Timestamp) {
		reply.Timestamp = user.Timestamp
	}

	c.mu.Lock()
	c.messages = append(c.messages, user, reply)
	c.updatedAt = reply.Timestamp
	c.mu.Unlock()

	return user, reply
}

// Clear empties the conversation. Callers must make sure no exchange is in
// flight; see session.Session.Clear.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.messages = make([]Message, 0)
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Snapshot returns a copy of the messages in chronological order. The caller
// owns the returned slice.
func (c *Conversation) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of stored messages. It is always even.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// IsEmpty reports whether the conversation holds no messages.
func (c *Conversation) IsEmpty() bool {
	return c.Len() == 0
}

// UpdatedAt returns the time of the last append or clear.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Pair is one completed exchange: the user's message and the reply.
type Pair struct {
	User  Message
	Reply Message
}

// Pairs returns the conversation grouped into exchanges.
func (c *Conversation) Pairs() []Pair {
	msgs := c.Snapshot()
	pairs := make([]Pair, 0, len(msgs)/2)
	for i := 0; i+1 < len(msgs); i += 2 {
		pairs = append(pairs, Pair{User: msgs[i], Reply: msgs[i+1]})
	}
	return pairs
}

// LastPair returns the most recent exchange, if any.
func (c *Conversation) LastPair() (Pair, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.messages)
	if n < 2 {
		return Pair{}, false
	}
	return Pair{User: c.messages[n-2], Reply: c.messages[n-1]}, true
}
