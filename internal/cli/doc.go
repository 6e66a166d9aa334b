// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the line-mode commands of
// dschat.
//
// # Key Types
//
//   - Command: enumeration of the top-level commands
//   - Args: parsed global flags plus the raw arguments of the command
//   - ArgParser: flag and positional parsing for subcommands
//   - Streams: stdin, stdout and stderr, injectable for tests
//   - ChatREPL: line-mode chat over one session
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	cfg, err := cli.LoadConfig(args)
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, cli.StdStreams(), cfg, args, logger)
//	case cli.CmdChat:
//	    err = cli.HandleChat(ctx, cli.StdStreams(), cfg, args, logger)
//	}
//	os.Exit(cli.GetExitCode(err))
//
// # Commands Overview
//
//   - (none), tui: full-screen chat (see package ui/chat)
//   - chat: line-mode chat with input history
//   - ask: one question, one reply
//   - config: show, path, init, keys, get, set
//   - history: list, show, search, export, delete (transcript archive)
//   - models, version, help
//
// Commands that print data accept --json.
package cli
