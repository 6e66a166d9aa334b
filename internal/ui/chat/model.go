// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/session"
	"github.com/aiapi/dschat/internal/ui/styles"
)

// ClientFactory builds an exchange client from a reloaded config.
type ClientFactory func(cfg *config.Config) (session.Exchanger, error)

// Options configures the chat view.
type Options struct {
	Theme        *styles.Theme
	ModelName    string
	QuickPrompts []string
	Markdown     bool
	WordWrap     int

	// ClientFactory is used on ConfigReloadedMsg. Nil ignores reloads.
	ClientFactory ClientFactory

	// Context is passed to every exchange. Defaults to Background.
	Context context.Context
	Logger  zerolog.Logger
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	sess  *session.Session
	theme *styles.Theme
	keys  KeyMap

	// Settings that a config reload may replace.
	modelName    string
	quickPrompts []string
	markdown     bool
	wordWrap     int
	factory      ClientFactory

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width    int
	height   int
	ready    bool
	showHelp bool
	started  time.Time

	// failed holds assistant message IDs that carry a failure text.
	failed map[string]bool

	// rendered caches message bodies by ID for the current width.
	rendered map[string]string
	renderer *glamour.TermRenderer

	notice    string
	noticeErr bool

	ctx context.Context
	log zerolog.Logger
}

// New creates the chat view over an existing session.
func New(sess *session.Session, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ThemeAuto)
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)
	// Up/down belong to the chat scroll, not the viewport's own bindings.
	vp.KeyMap = viewport.KeyMap{}

	// ASCII frames render everywhere.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	return Model{
		sess:         sess,
		theme:        theme,
		keys:         DefaultKeyMap(),
		modelName:    opts.ModelName,
		quickPrompts: append([]string(nil), opts.QuickPrompts...),
		markdown:     opts.Markdown,
		wordWrap:     opts.WordWrap,
		factory:      opts.ClientFactory,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		started:      time.Now(),
		failed:       make(map[string]bool),
		rendered:     make(map[string]string),
		ctx:          ctx,
		log:          opts.Logger,
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		// Let the tick chain die once nothing is in flight.
		if !m.sess.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ExchangeSettledMsg:
		return m.handleSettled(msg)

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case ConfigReloadErrorMsg:
		m.setNotice("Config reload failed: "+msg.Err.Error(), true)
		return m, nil

	case noticeMsg:
		m.setNotice(msg.text, msg.isErr)
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.renderChat()
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	if msg.Width != m.width {
		// Cached bodies were wrapped for the old width.
		m.rendered = make(map[string]string)
		m.renderer = nil
	}
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.layout()
	m.refresh()
	m.viewport.GotoBottom()
	return m, nil
}

// layout sizes the viewport to whatever the fixed rows leave.
func (m *Model) layout() {
	// header + spinner row + input (border + line) + status bar
	reserved := 1 + 1 + 2 + 1
	if m.showHelp {
		reserved += len(m.helpLines())
	}

	h := m.height - reserved
	if h < 1 {
		h = 1
	}
	w := m.width
	if w < 1 {
		w = 1
	}
	m.viewport.Width = w
	m.viewport.Height = h

	inputWidth := m.width - 2 - len(m.input.Prompt) - 1
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.clear()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.HasPrefix(strings.TrimSpace(text), "/") {
			m.input.Reset()
			return m.runCommand(strings.TrimSpace(text))
		}
		next, cmd, accepted := m.submit(text)
		if accepted {
			next.input.Reset()
		}
		return next, cmd

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	if i := m.keys.QuickIndex(msg); i >= 0 {
		next, cmd, _ := m.sendQuick(i)
		return next, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts an exchange for text. Blank text and submissions while an
// exchange is in flight are dropped without feedback.
func (m Model) submit(text string) (Model, tea.Cmd, bool) {
	if strings.TrimSpace(text) == "" || m.sess.Busy() {
		return m, nil, false
	}

	ex, err := m.sess.Submit(m.ctx, text)
	if err != nil {
		if !errors.Is(err, session.ErrBusy) && !errors.Is(err, session.ErrEmptyInput) {
			m.setNotice(err.Error(), true)
		}
		return m, nil, false
	}

	m.notice = ""
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(waitExchange(ex), m.spinner.Tick), true
}

func (m Model) sendQuick(i int) (Model, tea.Cmd, bool) {
	if i < 0 || i >= len(m.quickPrompts) {
		return m, nil, false
	}
	return m.submit(m.quickPrompts[i])
}

func (m *Model) clear() {
	if err := m.sess.Clear(); err != nil {
		// Busy: the request is dropped like a submission would be.
		return
	}
	m.failed = make(map[string]bool)
	m.rendered = make(map[string]string)
	m.setNotice("Conversation cleared", false)
	m.refresh()
	m.viewport.GotoTop()
}

func (m Model) handleSettled(msg ExchangeSettledMsg) (tea.Model, tea.Cmd) {
	if res, ok := msg.Exchange.Result(); ok && !res.OK() {
		m.failed[res.Assistant.ID] = true
		m.log.Debug().Str("exchange", msg.Exchange.ID).Str("kind", res.Kind.String()).Msg("exchange failed")
	}
	m.refresh()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	cfg := msg.Config
	if cfg == nil || m.factory == nil {
		return m, nil
	}

	client, err := m.factory(cfg)
	if err != nil {
		m.log.Warn().Err(err).Msg("config reload rejected")
		m.setNotice("Config reload failed: "+err.Error(), true)
		return m, nil
	}

	// The in-flight exchange keeps the client it started with.
	m.sess.SetClient(client)
	m.sess.SetSendHistory(cfg.API.SendHistory)
	m.modelName = cfg.API.Model
	m.quickPrompts = append([]string(nil), cfg.UI.QuickPrompts...)
	m.markdown = cfg.UI.Markdown
	m.wordWrap = cfg.UI.WordWrap
	m.rendered = make(map[string]string)
	m.renderer = nil

	m.log.Info().Str("model", cfg.API.Model).Msg("config reloaded")
	m.setNotice("Config reloaded", false)
	m.refresh()
	return m, nil
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Session returns the session behind the view.
func (m Model) Session() *session.Session {
	return m.sess
}

// ModelName returns the model shown in the header.
func (m Model) ModelName() string {
	return m.modelName
}

// Notice returns the current status line notice.
func (m Model) Notice() string {
	return m.notice
}

// IsFailed reports whether an assistant message carries a failure text.
func (m Model) IsFailed(id string) bool {
	return m.failed[id]
}
