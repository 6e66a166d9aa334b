// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendPair(t *testing.T) {
	conv := NewConversation()
	require.True(t, conv.IsEmpty())

	user, reply := conv.Append("hello", "hi")

	msgs := conv.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.NotEqual(t, user.ID, reply.ID)
	assert.False(t, reply.Timestamp.Before(user.Timestamp))
}

func TestConversation_AppendAcceptsAnyContent(t *testing.T) {
	conv := NewConversation()
	conv.Append("", "")
	conv.Append("  ", "Error: API call failed: 500")

	msgs := conv.Snapshot()
	require.Len(t, msgs, 4)
	assert.Equal(t, "", msgs[0].Content)
	assert.Equal(t, "Error: API call failed: 500", msgs[3].Content)
}

func TestConversation_EvenLengthAfterRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	conv := NewConversation()
	expected := 0

	for i := 0; i < 500; i++ {
		if rng.Intn(10) == 0 {
			conv.Clear()
			expected = 0
		} else {
			conv.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			expected += 2
		}
		require.Equal(t, 0, conv.Len()%2, "odd length after step %d", i)
		require.Equal(t, expected, conv.Len())
	}
}

func TestConversation_ClearEmpties(t *testing.T) {
	conv := NewConversation()
	conv.Append("a", "b")
	conv.Append("c", "d")
	conv.Clear()

	assert.Empty(t, conv.Snapshot())
	assert.True(t, conv.IsEmpty())
	_, ok := conv.LastPair()
	assert.False(t, ok)
}

func TestConversation_SnapshotIsCopy(t *testing.T) {
	conv := NewConversation()
	conv.Append("original", "reply")

	snap := conv.Snapshot()
	snap[0].Content = "mutated"

	fresh := conv.Snapshot()
	require.Len(t, fresh, 2)
	assert.Equal(t, "original", fresh[0].Content)
}

func TestConversation_Pairs(t *testing.T) {
	conv := NewConversation()
	conv.Append("q1", "a1")
	conv.Append("q2", "a2")

	pairs := conv.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "q2", pairs[1].User.Content)
	assert.Equal(t, "a2", pairs[1].Reply.Content)

	last, ok := conv.LastPair()
	require.True(t, ok)
	assert.Equal(t, pairs[1], last)
}

// TestConversation_ConcurrentReaders checks that a reader never observes a
// half-appended pair.
//
// Run with: go test -race -run TestConversation_ConcurrentReaders
func TestConversation_ConcurrentReaders(t *testing.T) {
	conv := NewConversation()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				msgs := conv.Snapshot()
				if len(msgs)%2 != 0 {
					t.Errorf("observed odd snapshot length %d", len(msgs))
					return
				}
				for i := 0; i+1 < len(msgs); i += 2 {
					if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleAssistant {
						t.Errorf("pair %d out of order", i/2)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		conv.Append("q", "a")
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 400, conv.Len())
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestRole(t *testing.T) {
	assert.Equal(t, "You", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("system").Valid())
	assert.Equal(t, "system", Role("system").DisplayName())
}

func TestMessage_Preview(t *testing.T) {
	msg := NewAssistantMessage("first line\nsecond line that is long")
	assert.Equal(t, "first line...", msg.Preview(13))
	assert.True(t, msg.IsAssistant())
	assert.False(t, msg.IsUser())
}

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel("deepseek-chat")
	require.True(t, ok)
	assert.Equal(t, "DeepSeek Chat", info.Name)

	_, ok = LookupModel("gpt-x")
	assert.False(t, ok)
	assert.Equal(t, "gpt-x", DisplayName("gpt-x"))

	models := ListModels()
	require.Len(t, models, 2)
	assert.Equal(t, DefaultModel, models[0].ID)
}
