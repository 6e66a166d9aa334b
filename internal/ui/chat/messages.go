// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/session"
)

// =============================================================================
// MESSAGES
// =============================================================================

// ExchangeSettledMsg is delivered when an in-flight exchange settles.
type ExchangeSettledMsg struct {
	Exchange *session.Exchange
}

// ConfigReloadedMsg carries a freshly loaded config file. It takes effect
// for the next exchange.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// ConfigReloadErrorMsg reports a config file that failed to load.
type ConfigReloadErrorMsg struct {
	Err error
}

// noticeMsg replaces the status line notice.
type noticeMsg struct {
	text  string
	isErr bool
}

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// waitExchange blocks until ex settles. Bubble Tea runs it off the update
// loop.
func waitExchange(ex *session.Exchange) tea.Cmd {
	return func() tea.Msg {
		<-ex.Done()
		return ExchangeSettledMsg{Exchange: ex}
	}
}
