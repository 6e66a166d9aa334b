// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) renderChat() string {
	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderActivity(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.renderStatusBar(),
	}
	if m.showHelp {
		parts = append(parts, m.helpLines()...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("dschat")
	name := m.theme.HeaderModel.Render(model.DisplayName(m.modelName))
	mode := ""
	if m.sess.SendHistory() {
		mode = m.theme.Muted.Render("  [history]")
	}
	return m.theme.Header.Width(m.width).Render(title + "  " + name + mode)
}

// renderActivity is the spinner row; blank when idle.
func (m Model) renderActivity() string {
	ex := m.sess.Current()
	if ex == nil {
		return ""
	}
	elapsed := time.Since(ex.StartedAt).Truncate(time.Second)
	return " " + m.spinner.View() + " " + m.theme.Thinking.Render(fmt.Sprintf("Waiting for reply... %s", elapsed))
}

func (m Model) renderStatusBar() string {
	if m.notice != "" {
		style := m.theme.Notice
		if m.noticeErr {
			style = m.theme.ErrorLabel
		}
		return m.theme.StatusBar.Render(style.Render(util.TruncateWidth(m.notice, m.width-2)))
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.Shortcut(h.Key, h.Desc))
	}
	return m.theme.StatusBar.Render(strings.Join(hints, "  "))
}

// helpLines is the expanded help panel.
func (m Model) helpLines() []string {
	var lines []string
	for _, group := range m.keys.FullHelp() {
		var row []string
		for _, b := range group {
			h := b.Help()
			row = append(row, m.theme.Shortcut(h.Key, h.Desc))
		}
		lines = append(lines, " "+strings.Join(row, "  "))
	}
	for _, c := range Commands {
		usage := c.Name
		if c.Args != "" {
			usage += " " + c.Args
		}
		lines = append(lines, " "+m.theme.Shortcut(util.PadRight(usage, 16), c.Description))
	}
	for i, p := range m.quickPrompts {
		lines = append(lines, " "+m.theme.Shortcut(fmt.Sprintf("F%d", i+1), util.Preview(p, m.width-8)))
	}
	return lines
}

// =============================================================================
// MESSAGE LIST
// =============================================================================

// refresh rebuilds the viewport content from the session.
func (m *Model) refresh() {
	msgs := m.sess.Snapshot()

	var sb strings.Builder
	if len(msgs) == 0 && m.sess.Current() == nil {
		sb.WriteString(m.renderWelcome())
	}
	for _, msg := range msgs {
		sb.WriteString(m.renderMessage(msg))
		sb.WriteString("\n")
	}
	// The pair is appended only on settle; show the pending question.
	if ex := m.sess.Current(); ex != nil {
		pending := model.Message{Role: model.RoleUser, Content: ex.Input, Timestamp: ex.StartedAt}
		sb.WriteString(m.renderMessage(pending))
	}
	m.viewport.SetContent(sb.String())
}

func (m *Model) renderWelcome() string {
	var sb strings.Builder
	sb.WriteString(m.theme.Muted.Render("Type a message and press Enter. /help lists commands."))
	sb.WriteString("\n")
	for i, p := range m.quickPrompts {
		sb.WriteString(m.theme.Shortcut(fmt.Sprintf("F%d", i+1), util.Preview(p, m.width-8)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderMessage(msg model.Message) string {
	var label string
	switch {
	case msg.IsUser():
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case m.failed[msg.ID]:
		label = m.theme.ErrorLabel.Render(model.DisplayName(m.modelName))
	default:
		label = m.theme.AssistantLabel.Render(model.DisplayName(m.modelName))
	}
	header := label + " " + m.theme.Timestamp.Render(msg.FormatTime())
	return header + "\n" + m.renderBody(msg) + "\n"
}

func (m *Model) renderBody(msg model.Message) string {
	if msg.ID != "" {
		if cached, ok := m.rendered[msg.ID]; ok {
			return cached
		}
	}

	width := m.wrapWidth()
	var out string
	switch {
	case m.failed[msg.ID]:
		out = m.theme.ErrorBody.Width(width).Render(msg.Content)
	case msg.IsAssistant() && m.markdown:
		out = m.renderMarkdown(msg.Content, width)
	default:
		out = m.theme.MessageBody.Width(width).Render(msg.Content)
	}

	if msg.ID != "" {
		m.rendered[msg.ID] = out
	}
	return out
}

func (m *Model) renderMarkdown(content string, width int) string {
	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.log.Warn().Err(err).Msg("markdown renderer unavailable")
			return m.theme.MessageBody.Width(width).Render(content)
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return m.theme.MessageBody.Width(width).Render(content)
	}
	return strings.Trim(out, "\n")
}

// wrapWidth is ui.word_wrap when set and narrower than the terminal.
func (m *Model) wrapWidth() int {
	w := m.width - 4
	if m.wordWrap > 0 && m.wordWrap < w {
		w = m.wordWrap
	}
	if w < 20 {
		w = 20
	}
	return w
}
