// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Bubble Tea chat view for dschat.

The view owns no conversation state of its own: it renders the session's
snapshot and hands submissions to session.Session, which enforces the
one-exchange-at-a-time rule. While an exchange is in flight the question is
shown as pending and a spinner runs; Enter, quick prompts and clear are
ignored until the exchange settles.

# Keys

	Enter      send the input line
	F1..F9     send quick prompt N
	Ctrl+L     clear the conversation
	F10        toggle help
	Ctrl+C     quit

# Commands

/help, /clear, /quick N, /history on|off, /save [file], /quit.

# Config reload

Send ConfigReloadedMsg through the program; the next exchange uses a client
built by Options.ClientFactory.
*/
package chat
