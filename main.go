// dschat - a terminal chat client for DeepSeek and other OpenAI-compatible
// chat completions endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/cli"
	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/logging"
	"github.com/aiapi/dschat/internal/ui/chat"
	"github.com/aiapi/dschat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownGrace bounds how long exit waits for an in-flight exchange so its
// pair reaches the archive.
const shutdownGrace = 5 * time.Second

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one invocation and returns the exit code.
func run(argv []string) int {
	streams := cli.StdStreams()

	cmd, args, err := cli.Parse(argv)
	if err != nil {
		cli.DisplayError(streams.Err, err, args.JSON)
		return cli.GetExitCode(err)
	}
	cloud.UserAgent = cli.UserAgent()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, streams, cmd, args); err != nil {
		cli.DisplayError(streams.Err, err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// dispatch routes cmd to its handler.
func dispatch(ctx context.Context, s cli.Streams, cmd cli.Command, args cli.Args) error {
	// Commands that need no loaded config.
	switch cmd {
	case cli.CmdVersion:
		return cli.HandleVersion(s, args)
	case cli.CmdHelp:
		return cli.HandleHelp(s)
	case cli.CmdConfig:
		return cli.HandleConfig(s, args)
	}

	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}

	interactive := cmd == cli.CmdTUI && cli.IsInteractive()
	logger, closer, err := newLogger(cfg, args, interactive)
	if err != nil {
		fmt.Fprintf(s.Err, "%s %v\n", cli.WarningStyle.Render("[WARN]"), err)
	}
	defer closer.Close()

	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	switch cmd {
	case cli.CmdTUI:
		if !interactive {
			return cli.HandleChat(ctx, s, cfg, args, logger)
		}
		return runTUI(ctx, cfg, args, logger)
	case cli.CmdChat:
		return cli.HandleChat(ctx, s, cfg, args, logger)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, s, cfg, args, logger)
	case cli.CmdHistory:
		return cli.HandleHistory(ctx, s, cfg, args)
	case cli.CmdModels:
		return cli.HandleModels(s, cfg, args)
	default:
		return cli.HandleHelp(s)
	}
}

// newLogger picks the log destination. The UI owns the terminal, so it logs
// to a file; line-mode commands log warnings to stderr unless --verbose.
func newLogger(cfg *config.Config, args cli.Args, tui bool) (zerolog.Logger, io.Closer, error) {
	logCfg := cfg.Log
	mode := logging.ModeConsole
	switch {
	case tui:
		mode = logging.ModeFile
	case args.Quiet && !args.Verbose:
		mode = logging.ModeDiscard
	case !args.Verbose && logging.ParseLevel(logCfg.Level) < zerolog.WarnLevel:
		logCfg.Level = "warn"
	}

	logger, closer, err := logging.New(logCfg, mode)
	if err != nil {
		nop, nopCloser, _ := logging.New(logCfg, logging.ModeDiscard)
		return nop, nopCloser, err
	}
	return logger.With().Str("version", Version).Logger(), closer, nil
}

// runTUI runs the full-screen chat until the user quits.
func runTUI(ctx context.Context, cfg *config.Config, args cli.Args, logger zerolog.Logger) error {
	client, err := cli.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	archive, err := cli.OpenArchive(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("continuing without transcript archive")
	}
	if archive != nil {
		defer archive.Close()
	}

	sess, err := cli.NewSession(ctx, cfg, client, archive, logger)
	if err != nil {
		return err
	}

	m := chat.New(sess, chat.Options{
		Theme:         styles.NewTheme(cfg.UI.Theme),
		ModelName:     cfg.API.Model,
		QuickPrompts:  cfg.UI.QuickPrompts,
		Markdown:      cfg.UI.Markdown,
		WordWrap:      cfg.UI.WordWrap,
		ClientFactory: cli.ClientFactory(logger),
		Context:       ctx,
		Logger:        logger,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if path := cfg.Path(); path != "" {
		go func() {
			err := config.Watch(watchCtx, path, config.DefaultReloadDebounce, func(next *config.Config, err error) {
				if err != nil {
					program.Send(chat.ConfigReloadErrorMsg{Err: err})
					return
				}
				// Command-line flags still win over the edited file.
				args.ApplyTo(next)
				program.Send(chat.ConfigReloadedMsg{Config: next})
			})
			if err != nil {
				logger.Debug().Err(err).Msg("config hot reload unavailable")
			}
		}()
	}

	logger.Info().Str("session", sess.ID()).Str("model", cfg.API.Model).Msg("chat UI started")
	_, runErr := program.Run()
	cancelWatch()

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := sess.Wait(waitCtx); err != nil {
		logger.Warn().Err(err).Msg("exited before the last exchange settled")
	}

	if runErr != nil {
		return fmt.Errorf("chat UI failed: %w", runErr)
	}
	return nil
}
