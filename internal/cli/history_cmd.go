// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Transcript archive command.
//
// Command: history [subcommand]
// Short:   Browse the transcript archive
// Aliases: sessions
//
// Subcommands:
//   list [--limit N]                          Recent sessions (default)
//   show ID                                   Print one session
//   search QUERY [--limit N]                  Full-text search over messages
//   export ID [--format md|json] [--out FILE] Export one session
//   delete ID                                 Remove one session
//
// ID may be any unique prefix of a session ID, as printed by list.
//
// Examples:
//   dschat history list --limit 5
//   dschat history search hello world
//   dschat history export 3f2a9c1e --out chat.md

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/storage"
	"github.com/aiapi/dschat/internal/util"
)

const (
	historyUsage        = "dschat history [list|show ID|search QUERY|export ID|delete ID]"
	defaultHistoryLimit = 20
)

// HandleHistory runs the history command.
func HandleHistory(ctx context.Context, s Streams, cfg *config.Config, args Args) error {
	parser := NewArgParser(args.Raw, "json")
	sub := strings.ToLower(parser.Subcommand())

	switch sub {
	case "", "list", "ls", "show", "view", "search", "find", "export", "delete", "rm":
	default:
		return ErrUnknownSubcommand("history", sub, historyUsage)
	}

	archive, err := openArchiveForBrowse(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	switch sub {
	case "", "list", "ls":
		return historyList(ctx, s, archive, args, parser)
	case "show", "view":
		return historyShow(ctx, s, archive, args, parser, cfg.UI.Markdown)
	case "search", "find":
		return historySearch(ctx, s, archive, args, parser)
	case "export":
		return historyExport(ctx, s, archive, args, parser)
	default:
		return historyDelete(ctx, s, archive, args, parser)
	}
}

// openArchiveForBrowse opens the archive when history is enabled, or when a
// database from an earlier enabled run is still on disk.
func openArchiveForBrowse(cfg *config.Config) (*storage.Archive, error) {
	if !cfg.History.Enabled {
		if _, err := os.Stat(cfg.History.Path); err != nil {
			return nil, errHistoryDisabled
		}
	}
	archive, err := storage.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript archive: %w", err)
	}
	return archive, nil
}

// sessionError maps archive lookup failures to CLI errors.
func sessionError(err error, id string) error {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return &NotFoundError{Resource: "session", ID: id}
	case errors.Is(err, storage.ErrAmbiguousID):
		return &ValidationError{
			Field:   "session ID",
			Value:   id,
			Reason:  "prefix matches more than one session",
			Example: "dschat history list",
		}
	}
	return err
}

func historyList(ctx context.Context, s Streams, archive *storage.Archive, args Args, parser *ArgParser) error {
	limit := parser.FlagIntOrDefault("limit", defaultHistoryLimit)
	if limit <= 0 {
		return &ValidationError{Field: "limit", Value: parser.Flag("limit"), Reason: "must be positive"}
	}
	sessions, err := archive.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if args.JSON {
		if sessions == nil {
			sessions = []storage.SessionInfo{}
		}
		return NewJSONResponse("history list", HistoryListData{Sessions: sessions}).Print(s.Out)
	}
	fmt.Fprint(s.Out, storage.FormatSessionList(sessions))
	if len(sessions) == 0 {
		fmt.Fprintln(s.Out)
	}
	return nil
}

func historyShow(ctx context.Context, s Streams, archive *storage.Archive, args Args, parser *ArgParser, markdown bool) error {
	id := parser.Positional(1)
	if id == "" {
		return ErrMissingArgument("session ID", "dschat history show 3f2a9c1e")
	}
	t, err := archive.LoadSession(ctx, id)
	if err != nil {
		return sessionError(err, id)
	}
	if args.JSON {
		return NewJSONResponse("history show", t).Print(s.Out)
	}
	displayReply(s.Out, t.ExportMarkdown(), markdown)
	return nil
}

func historySearch(ctx context.Context, s Streams, archive *storage.Archive, args Args, parser *ArgParser) error {
	query := strings.TrimSpace(JoinPositionalArgs(parser, 1))
	if query == "" {
		return ErrMissingArgument("query", "dschat history search hello")
	}
	limit := parser.FlagIntOrDefault("limit", 50)
	hits, err := archive.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if args.JSON {
		if hits == nil {
			hits = []storage.SearchHit{}
		}
		return NewJSONResponse("history search", HistorySearchData{Query: query, Hits: hits}).Print(s.Out)
	}
	fmt.Fprintln(s.Out, storage.FormatSearchHits(hits))
	return nil
}

func historyExport(ctx context.Context, s Streams, archive *storage.Archive, args Args, parser *ArgParser) error {
	id := parser.Positional(1)
	if id == "" {
		return ErrMissingArgument("session ID", "dschat history export 3f2a9c1e --out chat.md")
	}

	out := parser.Flag("out", "o")
	format := storage.FormatMarkdown
	if out != "" {
		format = storage.FormatForPath(out)
	}
	if raw := parser.Flag("format", "f"); raw != "" {
		f, err := storage.ParseFormat(raw)
		if err != nil {
			return &ValidationError{Field: "format", Value: raw, Reason: err.Error(), Example: "--format md"}
		}
		format = f
	}

	t, err := archive.LoadSession(ctx, id)
	if err != nil {
		return sessionError(err, id)
	}
	data, err := t.Export(format)
	if err != nil {
		return err
	}

	if out == "" {
		_, err := s.Out.Write(data)
		return err
	}
	path, err := ValidateOutputPath(out)
	if err != nil {
		return &ValidationError{Field: "out", Value: out, Reason: err.Error()}
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return &CommandError{Command: "history", Action: "export", Reason: "write failed", Err: err}
	}
	if !args.Quiet {
		fmt.Fprintf(s.Err, "%s %d messages to %s\n", SuccessStyle.Render("Exported"), len(t.Messages), path)
	}
	return nil
}

func historyDelete(ctx context.Context, s Streams, archive *storage.Archive, args Args, parser *ArgParser) error {
	id := parser.Positional(1)
	if id == "" {
		return ErrMissingArgument("session ID", "dschat history delete 3f2a9c1e")
	}
	if err := archive.DeleteSession(ctx, id); err != nil {
		return sessionError(err, id)
	}
	if !args.Quiet {
		fmt.Fprintf(s.Out, "%s %s\n", SuccessStyle.Render("Deleted"), id)
	}
	return nil
}
