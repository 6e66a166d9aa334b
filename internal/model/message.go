// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/aiapi/dschat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the wire form of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the roles a conversation may hold.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns the label shown next to a message.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one record in a conversation. Messages are values: once built
// they are copied, never edited in place.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// IsUser reports whether the message came from the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant reports whether the message came from the remote service.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// Preview returns a single-line excerpt of the content no wider than width.
func (m Message) Preview(width int) string {
	return util.Preview(m.Content, width)
}

// FormatTime returns the timestamp as shown in the chat list.
func (m Message) FormatTime() string {
	return m.Timestamp.Format("15:04")
}
