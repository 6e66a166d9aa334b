// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aiapi/dschat/internal/storage"
)

// Command is a slash command available in the chat input.
type Command struct {
	Name        string
	Args        string
	Description string
}

// Commands lists the slash commands in help order.
var Commands = []Command{
	{Name: "/help", Description: "Toggle the help panel"},
	{Name: "/clear", Description: "Clear the conversation"},
	{Name: "/quick", Args: "N", Description: "Send quick prompt N"},
	{Name: "/history", Args: "on|off", Description: "Send earlier messages with each question"},
	{Name: "/save", Args: "[file]", Description: "Save the conversation as Markdown or JSON"},
	{Name: "/quit", Description: "Exit dschat"},
}

// runCommand executes a slash command line.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return m, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/help", "/?":
		m.showHelp = !m.showHelp
		m.layout()

	case "/clear":
		m.clear()

	case "/quick", "/q":
		if len(args) != 1 {
			m.setNotice("Usage: /quick N", true)
			return m, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(m.quickPrompts) {
			m.setNotice(fmt.Sprintf("No quick prompt %s (have %d)", args[0], len(m.quickPrompts)), true)
			return m, nil
		}
		next, cmd, _ := m.sendQuick(n - 1)
		return next, cmd

	case "/history":
		if len(args) == 1 {
			switch strings.ToLower(args[0]) {
			case "on", "true", "1":
				m.sess.SetSendHistory(true)
			case "off", "false", "0":
				m.sess.SetSendHistory(false)
			default:
				m.setNotice("Usage: /history on|off", true)
				return m, nil
			}
		}
		state := "off"
		if m.sess.SendHistory() {
			state = "on"
		}
		m.setNotice("Sending history: "+state, false)

	case "/save":
		path := ""
		if len(args) > 0 {
			path = strings.Join(args, " ")
		}
		m.save(path)

	case "/quit", "/exit":
		return m, tea.Quit

	default:
		m.setNotice(fmt.Sprintf("Unknown command: %s (try /help)", name), true)
	}
	return m, nil
}

// save writes the current conversation to path. An empty path picks a
// timestamped name in the working directory.
func (m *Model) save(path string) {
	msgs := m.sess.Snapshot()
	if len(msgs) == 0 {
		m.setNotice("Nothing to save", true)
		return
	}
	if path == "" {
		path = "dschat-" + time.Now().Format("20060102-150405") + ".md"
	}

	t := storage.NewTranscript(storage.SessionInfo{
		ID:        m.sess.ID(),
		Model:     m.modelName,
		StartedAt: m.started,
		UpdatedAt: time.Now(),
	}, msgs)
	if err := t.WriteExport(path); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("save failed")
		m.setNotice("Save failed: "+err.Error(), true)
		return
	}
	m.log.Info().Str("path", path).Int("messages", len(msgs)).Msg("conversation saved")
	m.setNotice(fmt.Sprintf("Saved %d messages to %s", len(msgs), path), false)
}
