// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask one question and print the reply
// Aliases: a
//
// Examples:
//   dschat ask "Merhaba! Sen kimsin?"
//   echo "Explain goroutines" | dschat ask -
//   dschat ask --json "hi"
//
// The reply is rendered as Markdown when stdout is a terminal and printed
// verbatim otherwise. A failed exchange prints the same "Error: ..." line the
// chat shows and exits non-zero.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/session"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderMarkdown renders content for terminal display, returning it unchanged
// when the renderer is unavailable or fails.
func renderMarkdown(content string) string {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayReply writes a reply to w, rendered only when w is a terminal so
// piped output stays plain.
func displayReply(w io.Writer, reply string, markdown bool) {
	if markdown && isTerminalWriter(w) {
		fmt.Fprint(w, renderMarkdown(reply))
		return
	}
	fmt.Fprintln(w, reply)
}

// isTerminalReader reports whether r is an interactive terminal.
func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// ASK HANDLER
// =============================================================================

const askUsage = `dschat ask "question"`

// HandleAsk runs one exchange for the question in args (or on stdin) and
// prints the reply.
func HandleAsk(ctx context.Context, s Streams, cfg *config.Config, args Args, logger zerolog.Logger) error {
	if args.Query == "" && isTerminalReader(s.In) {
		return ErrMissingArgument("question", askUsage)
	}
	query, err := readQuery(args.Query, s.In)
	if err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return ErrMissingArgument("question", askUsage)
	}
	// Drop only the line ending a pipe leaves; indentation is content.
	query = strings.TrimRight(query, "\r\n")

	client, err := NewClient(cfg, logger)
	if err != nil {
		return err
	}
	return ask(ctx, s, cfg, args, client, query, logger)
}

// ask runs the exchange through a session so the archive and logging behave
// as they do in chat.
func ask(ctx context.Context, s Streams, cfg *config.Config, args Args, client session.Exchanger, query string, logger zerolog.Logger) error {
	archive, err := OpenArchive(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("continuing without transcript archive")
	}
	if archive != nil {
		defer archive.Close()
	}

	sess, err := NewSession(ctx, cfg, client, archive, logger)
	if err != nil {
		return err
	}
	ex, err := sess.Submit(ctx, query)
	if err != nil {
		return err
	}
	res, err := ex.Wait(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		data := AskData{
			Reply:      res.Reply,
			Kind:       res.Kind.String(),
			Status:     cloud.StatusCode(res.Err),
			Model:      cfg.API.Model,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			data.Error = res.Err.Error()
		}
		if err := writeJSON(s.Out, data); err != nil {
			return err
		}
		if res.Err != nil {
			return &ReportedError{Err: res.Err}
		}
		return nil
	}

	if res.Err != nil {
		fmt.Fprintln(s.Err, ErrorStyle.Render(session.FailureText(res.Err)))
		return &ReportedError{Err: res.Err}
	}

	displayReply(s.Out, res.Reply, cfg.UI.Markdown)
	if !args.Quiet && isTerminalWriter(s.Err) {
		fmt.Fprintln(s.Err, DimStyle.Render(fmt.Sprintf("%s  %s", cfg.API.Model, formatDurationShort(res.Duration))))
	}
	return nil
}
