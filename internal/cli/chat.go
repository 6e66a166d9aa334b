// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat command.
//
// Command: chat
// Short:   Line-mode chat with input history
// Aliases: repl
//
// Used directly, and by the bare dschat command when stdin or stdout is not a
// terminal.
//
// Interactive Commands:
//   /help, /h            Show available commands
//   /clear, /c           Clear the conversation
//   /history [on|off]    Show or toggle sending earlier messages
//   /quick N             Send quick prompt N
//   /quit, /q            Exit
//   Ctrl+D, Ctrl+C       Exit

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/session"
)

const chatPrompt = "you> "

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history, owner read/write only.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// scanReader reads lines from a non-terminal input such as a pipe.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxStdinQuery)
	return &scanReader{scanner: sc}
}

func (r *scanReader) ReadInput(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() {}

// =============================================================================
// REPL
// =============================================================================

// ChatREPL is a line-mode chat over one session.
type ChatREPL struct {
	sess    *session.Session
	cfg     *config.Config
	streams Streams
	input   lineReader
	quiet   bool
	tty     bool

	exchanges int
}

// HandleChat runs the line-mode chat until the user quits or input ends.
func HandleChat(ctx context.Context, s Streams, cfg *config.Config, args Args, logger zerolog.Logger) error {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return err
	}

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

	var input lineReader
	if isTerminalReader(s.In) {
		input = NewChatCLI()
	} else {
		input = newScanReader(s.In)
	}
	defer input.Close()

	repl := &ChatREPL{
		sess:    sess,
		cfg:     cfg,
		streams: s,
		input:   input,
		quiet:   args.Quiet,
		tty:     isTerminalWriter(s.Out),
	}
	err = repl.Run(ctx)
	if werr := sess.Wait(context.WithoutCancel(ctx)); werr != nil {
		logger.Debug().Err(werr).Msg("wait for last exchange")
	}
	return err
}

// Run reads and handles lines until quit, EOF or ctx is cancelled.
func (r *ChatREPL) Run(ctx context.Context) error {
	if !r.quiet {
		r.printWelcome()
	}
	defer func() {
		if !r.quiet {
			r.printGoodbye()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.input.ReadInput(PromptStyle.Render(chatPrompt))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") {
			if !r.handleSlashCommand(ctx, text) {
				return nil
			}
			continue
		}
		r.exchange(ctx, text)
	}
}

// exchange submits text and prints the outcome once it settles.
func (r *ChatREPL) exchange(ctx context.Context, text string) {
	ex, err := r.sess.Submit(ctx, text)
	if err != nil {
		// Only ErrEmptyInput or ErrBusy, neither of which the loop produces.
		return
	}
	if r.tty && !r.quiet {
		fmt.Fprintln(r.streams.Out, DimStyle.Render("..."))
	}

	res, err := ex.Wait(ctx)
	if err != nil {
		return
	}
	r.exchanges++

	out := r.streams.Out
	if res.Err != nil {
		fmt.Fprintln(out, ErrorStyle.Render(res.Assistant.Content))
		return
	}
	if !r.quiet {
		fmt.Fprintln(out, AssistantStyle.Render(model.DisplayName(r.cfg.API.Model)+":"))
	}
	displayReply(out, res.Reply, r.cfg.UI.Markdown && r.tty)
	if r.tty && !r.quiet {
		fmt.Fprintln(out, DimStyle.Render(formatDurationShort(res.Duration)))
	}
}

// handleSlashCommand runs a slash command. It returns false to exit.
func (r *ChatREPL) handleSlashCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	rest := parts[1:]
	out := r.streams.Out

	switch cmd {
	case "/help", "/h", "/?", "/":
		r.printHelp()

	case "/clear", "/c":
		if err := r.sess.Clear(); err != nil {
			fmt.Fprintln(out, WarningStyle.Render(err.Error()))
			return true
		}
		fmt.Fprintln(out, SuccessStyle.Render("[Conversation cleared]"))

	case "/history":
		if len(rest) > 0 {
			on, err := ParseBoolString(rest[0])
			if err != nil {
				fmt.Fprintln(out, WarningStyle.Render("usage: /history [on|off]"))
				return true
			}
			r.sess.SetSendHistory(on)
		}
		state := "off"
		if r.sess.SendHistory() {
			state = "on"
		}
		fmt.Fprintf(out, "%s %s (%d messages so far)\n",
			DimStyle.Render("Send earlier messages:"), state, r.sess.Conversation().Len())

	case "/quick", "/q1", "/q2":
		n := 0
		switch cmd {
		case "/q1":
			n = 1
		case "/q2":
			n = 2
		default:
			if len(rest) > 0 {
				n, _ = strconv.Atoi(rest[0])
			}
		}
		prompts := r.cfg.UI.QuickPrompts
		if n < 1 || n > len(prompts) {
			fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("usage: /quick N (1-%d)", len(prompts))))
			return true
		}
		fmt.Fprintln(out, PromptStyle.Render(chatPrompt)+prompts[n-1])
		r.exchange(ctx, prompts[n-1])

	case "/quit", "/q", "/exit":
		return false

	default:
		fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("unknown command: %s (type /help for commands)", cmd)))
	}
	return true
}

// =============================================================================
// DISPLAY
// =============================================================================

func (r *ChatREPL) printWelcome() {
	out := r.streams.Out
	fmt.Fprintln(out, TitleStyle.Render("dschat"))
	fmt.Fprintln(out, RenderSeparator(30))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Model:"), ValueStyle.Render(model.DisplayName(r.cfg.API.Model)))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Endpoint:"), ValueStyle.Render(r.cfg.API.Endpoint))
	if r.sess.SendHistory() {
		fmt.Fprintf(out, "%s%s\n", RenderLabel("History:"), ValueStyle.Render("sent with each message"))
	}
	fmt.Fprintln(out, DimStyle.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(out)
}

func (r *ChatREPL) printHelp() {
	out := r.streams.Out
	commands := []struct{ cmd, desc string }{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear the conversation"},
		{"/history [on|off]", "Show or toggle sending earlier messages"},
		{"/quick N", "Send quick prompt N"},
		{"/quit, /q", "Exit"},
	}
	fmt.Fprintln(out, TitleStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(out, "  %s  %s\n", PromptStyle.Render(fmt.Sprintf("%-18s", c.cmd)), DimStyle.Render(c.desc))
	}
	for i, p := range r.cfg.UI.QuickPrompts {
		fmt.Fprintf(out, "  %s  %s\n", DimStyle.Render(fmt.Sprintf("quick %d", i+1)), p)
	}
	fmt.Fprintln(out, DimStyle.Render("Ctrl+D exits"))
}

func (r *ChatREPL) printGoodbye() {
	if r.exchanges > 0 {
		fmt.Fprintf(r.streams.Out, "%s\n", DimStyle.Render(fmt.Sprintf("%d exchanges", r.exchanges)))
	}
	fmt.Fprintln(r.streams.Out, DimStyle.Render("Goodbye!"))
}
