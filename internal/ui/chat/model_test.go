// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/session"
	"github.com/aiapi/dschat/internal/ui/styles"
)

// fakeExchanger replies with a fixed answer, optionally holding each call
// until gate is closed.
type fakeExchanger struct {
	mu    sync.Mutex
	gate  chan struct{}
	reply string
	err   error
	calls []string
}

func (f *fakeExchanger) SendWithHistory(ctx context.Context, _ []model.Message, msg string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeExchanger) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var testPrompts = []string{"Merhaba! Sen kimsin?", "Python'da bir 'Hello World' kodu yaz"}

func newTestModel(t *testing.T, ex session.Exchanger) Model {
	t.Helper()
	sess := session.New(ex, session.Options{Logger: zerolog.Nop()})
	m := New(sess, Options{
		Theme:        styles.NewThemeWithProfile("dark", termenv.Ascii),
		ModelName:    "deepseek-chat",
		QuickPrompts: testPrompts,
		Logger:       zerolog.Nop(),
	})
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeAndSend(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	return update(m, tea.KeyMsg{Type: tea.KeyEnter})
}

// settle waits for the in-flight exchange and feeds its message back.
func settle(t *testing.T, m Model) Model {
	t.Helper()
	ex := m.sess.Current()
	require.NotNil(t, ex, "no exchange in flight")
	select {
	case <-ex.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not settle")
	}
	m, _ = update(m, waitExchange(ex)())
	return m
}

func TestView_BeforeSize(t *testing.T) {
	sess := session.New(&fakeExchanger{}, session.Options{Logger: zerolog.Nop()})
	m := New(sess, Options{Theme: styles.NewThemeWithProfile("dark", termenv.Ascii)})
	assert.Equal(t, "Initializing...", m.View())
}

func TestView_Welcome(t *testing.T) {
	m := newTestModel(t, &fakeExchanger{reply: "x"})
	view := m.View()
	assert.Contains(t, view, "dschat")
	assert.Contains(t, view, "DeepSeek")
	assert.Contains(t, view, "F1")
	assert.Contains(t, view, "Merhaba! Sen kimsin?")
}

func TestSubmit_AppendsPairOnSettle(t *testing.T) {
	fake := &fakeExchanger{gate: make(chan struct{}), reply: "Hello!"}
	m := newTestModel(t, fake)

	m, cmd := typeAndSend(m, "hi")
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())
	assert.True(t, m.sess.Busy())
	assert.Empty(t, m.sess.Snapshot(), "pair is appended only on settle")

	view := m.View()
	assert.Contains(t, view, "hi")
	assert.Contains(t, view, "Waiting for reply")

	close(fake.gate)
	m = settle(t, m)

	assert.False(t, m.sess.Busy())
	msgs := m.sess.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello!", msgs[1].Content)
	assert.False(t, m.IsFailed(msgs[1].ID))

	view = m.View()
	assert.Contains(t, view, "Hello!")
	assert.NotContains(t, view, "Waiting for reply")
}

func TestSubmit_IgnoredWhileBusy(t *testing.T) {
	fake := &fakeExchanger{gate: make(chan struct{}), reply: "ok"}
	m := newTestModel(t, fake)

	m, _ = typeAndSend(m, "one")
	first := m.sess.Current()

	m, cmd := typeAndSend(m, "two")
	assert.Nil(t, cmd)
	assert.Equal(t, "two", m.input.Value(), "dropped input stays in the box")
	assert.Same(t, first, m.sess.Current())

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyF1})
	assert.Nil(t, cmd)

	close(fake.gate)
	m = settle(t, m)
	assert.Equal(t, []string{"one"}, fake.Calls())
	assert.Len(t, m.sess.Snapshot(), 2)
}

func TestSubmit_BlankIgnored(t *testing.T) {
	fake := &fakeExchanger{reply: "ok"}
	m := newTestModel(t, fake)

	m, cmd := typeAndSend(m, "   ")
	assert.Nil(t, cmd)
	assert.Nil(t, m.sess.Current())
	assert.Empty(t, fake.Calls())
}

func TestQuickPrompts(t *testing.T) {
	fake := &fakeExchanger{reply: "Ben bir asistanım."}
	m := newTestModel(t, fake)

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyF2})
	require.NotNil(t, cmd)
	m = settle(t, m)
	assert.Equal(t, []string{testPrompts[1]}, fake.Calls())

	// Unset slot does nothing.
	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyF9})
	assert.Nil(t, cmd)
	assert.Nil(t, m.sess.Current())

	m, cmd = typeAndSend(m, "/quick 1")
	require.NotNil(t, cmd)
	settle(t, m)
	assert.Equal(t, []string{testPrompts[1], testPrompts[0]}, fake.Calls())
}

func TestClear(t *testing.T) {
	fake := &fakeExchanger{reply: "ok"}
	m := newTestModel(t, fake)

	m, _ = typeAndSend(m, "hi")
	m = settle(t, m)
	require.Len(t, m.sess.Snapshot(), 2)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.sess.Snapshot())
	assert.Equal(t, "Conversation cleared", m.Notice())
}

func TestClear_IgnoredWhileBusy(t *testing.T) {
	fake := &fakeExchanger{gate: make(chan struct{}), reply: "ok"}
	m := newTestModel(t, fake)

	m, _ = typeAndSend(m, "first")
	m = settle(t, withOpenGate(fake, m))
	require.Len(t, m.sess.Snapshot(), 2)

	fake.mu.Lock()
	fake.gate = make(chan struct{})
	fake.mu.Unlock()
	m, _ = typeAndSend(m, "second")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Len(t, m.sess.Snapshot(), 2, "clear dropped while busy")
	assert.Empty(t, m.Notice())

	m, _ = typeAndSend(m, "/clear")
	assert.Len(t, m.sess.Snapshot(), 2)

	m = settle(t, withOpenGate(fake, m))
	assert.Len(t, m.sess.Snapshot(), 4)
}

func withOpenGate(f *fakeExchanger, m Model) Model {
	f.mu.Lock()
	close(f.gate)
	f.mu.Unlock()
	return m
}

func TestFailure_ShownAsErrorMessage(t *testing.T) {
	fake := &fakeExchanger{err: errors.New("API call failed: 500")}
	m := newTestModel(t, fake)

	m, _ = typeAndSend(m, "hi")
	m = settle(t, m)

	msgs := m.sess.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Error: API call failed: 500", msgs[1].Content)
	assert.True(t, m.IsFailed(msgs[1].ID))
	assert.Contains(t, m.View(), "Error: API call failed: 500")

	// The guard is released, so the next submission goes through.
	_, cmd := typeAndSend(m, "again")
	assert.NotNil(t, cmd)
}

func TestMarkdownReply(t *testing.T) {
	fake := &fakeExchanger{reply: "Here is **bold** text"}
	sess := session.New(fake, session.Options{Logger: zerolog.Nop()})
	m := New(sess, Options{
		Theme:    styles.NewThemeWithProfile("dark", termenv.Ascii),
		Markdown: true,
		Logger:   zerolog.Nop(),
	})
	m, _ = update(m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, _ = typeAndSend(m, "format")
	m = settle(t, m)
	assert.Contains(t, m.View(), "bold")
}

func TestCommand_Save(t *testing.T) {
	fake := &fakeExchanger{reply: "Hello!"}
	m := newTestModel(t, fake)

	path := filepath.Join(t.TempDir(), "chat.md")

	m, _ = typeAndSend(m, "/save "+path)
	assert.Equal(t, "Nothing to save", m.Notice())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	m, _ = typeAndSend(m, "hi")
	m = settle(t, m)

	m, _ = typeAndSend(m, "/save "+path)
	assert.Contains(t, m.Notice(), "Saved 2 messages")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "**You**")
	assert.Contains(t, string(data), "Hello!")
}

func TestCommand_History(t *testing.T) {
	m := newTestModel(t, &fakeExchanger{})

	m, _ = typeAndSend(m, "/history on")
	assert.True(t, m.sess.SendHistory())
	assert.Equal(t, "Sending history: on", m.Notice())
	assert.Contains(t, m.View(), "[history]")

	m, _ = typeAndSend(m, "/history off")
	assert.False(t, m.sess.SendHistory())

	m, _ = typeAndSend(m, "/history maybe")
	assert.Contains(t, m.Notice(), "Usage")
}

func TestCommand_Unknown(t *testing.T) {
	m := newTestModel(t, &fakeExchanger{})
	m, cmd := typeAndSend(m, "/frobnicate")
	assert.Nil(t, cmd)
	assert.Contains(t, m.Notice(), "Unknown command: /frobnicate")
	assert.Empty(t, m.input.Value())
}

func TestCommand_Help(t *testing.T) {
	m := newTestModel(t, &fakeExchanger{})
	before := m.viewport.Height

	m, _ = typeAndSend(m, "/help")
	assert.True(t, m.showHelp)
	assert.Less(t, m.viewport.Height, before)
	assert.Contains(t, m.View(), "/save [file]")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyF10})
	assert.False(t, m.showHelp)
	assert.Equal(t, before, m.viewport.Height)
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, &fakeExchanger{})

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = typeAndSend(m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestConfigReloaded(t *testing.T) {
	old := &fakeExchanger{reply: "old"}
	fresh := &fakeExchanger{reply: "new"}
	m := newTestModel(t, old)

	m.factory = func(cfg *config.Config) (session.Exchanger, error) {
		return fresh, nil
	}

	cfg := config.Default()
	cfg.API.Model = "deepseek-reasoner"
	cfg.API.SendHistory = true
	cfg.UI.QuickPrompts = []string{"only one"}

	m, _ = update(m, ConfigReloadedMsg{Config: cfg})
	assert.Equal(t, "Config reloaded", m.Notice())
	assert.Equal(t, "deepseek-reasoner", m.ModelName())
	assert.True(t, m.sess.SendHistory())

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyF1})
	m = settle(t, m)
	assert.Empty(t, old.Calls())
	assert.Equal(t, []string{"only one"}, fresh.Calls())
	assert.Equal(t, "new", m.sess.Snapshot()[1].Content)
}

func TestConfigReloaded_FactoryError(t *testing.T) {
	fake := &fakeExchanger{reply: "ok"}
	m := newTestModel(t, fake)
	m.factory = func(*config.Config) (session.Exchanger, error) {
		return nil, errors.New("no API key")
	}

	m, _ = update(m, ConfigReloadedMsg{Config: config.Default()})
	assert.Contains(t, m.Notice(), "Config reload failed: no API key")
	assert.Equal(t, "deepseek-chat", m.ModelName())

	m, _ = update(m, ConfigReloadErrorMsg{Err: errors.New("bad toml")})
	assert.Contains(t, m.Notice(), "bad toml")
}

func TestKeyMap_QuickIndex(t *testing.T) {
	k := DefaultKeyMap()
	assert.Equal(t, 0, k.QuickIndex(tea.KeyMsg{Type: tea.KeyF1}))
	assert.Equal(t, 8, k.QuickIndex(tea.KeyMsg{Type: tea.KeyF9}))
	assert.Equal(t, -1, k.QuickIndex(tea.KeyMsg{Type: tea.KeyF10}))
	assert.Equal(t, -1, k.QuickIndex(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}))
}
