// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs chat exchanges one at a time against a conversation.
//
// Submit returns an Exchange handle at once; the request runs in its own
// goroutine. When it settles the user's message and the reply (or a failure
// text) are appended as a pair, the single-flight guard is released and the
// handle's Done channel is closed. Submissions made while an exchange is in
// flight get ErrBusy and change nothing.
//
// # Key Types
//
//   - Session: conversation, client and single-flight guard
//   - Exchange: handle for one submission with Done, Wait and Result
//   - Result: reply or failure plus the two appended messages
//
// # Usage
//
//	sess := session.New(client, session.Options{Logger: log})
//	ex, err := sess.Submit(ctx, "Hello!")
//	if errors.Is(err, session.ErrBusy) {
//	    return // dropped
//	}
//	res, _ := ex.Wait(ctx)
//	fmt.Println(res.Assistant.Content)
package session
