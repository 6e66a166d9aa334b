// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing and top-level command handlers for dschat.

package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (overridden at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdConfig
	CmdHistory
	CmdModels
	CmdVersion
	CmdHelp
)

// String returns the command name as typed.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdConfig:
		return "config"
	case CmdHistory:
		return "history"
	case CmdModels:
		return "models"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath  string // --config: alternate config file
	Model       string // --model: overrides api.model
	Endpoint    string // --endpoint: overrides api.endpoint
	SendHistory bool   // --history: send the conversation with each message
	Quiet       bool
	Verbose     bool
	JSON        bool

	// Command-specific
	Query      string
	Subcommand string

	// Raw holds the arguments after the command name, for subcommand parsing.
	Raw []string
}

const usageText = `dschat - terminal chat client for DeepSeek and other OpenAI-compatible APIs

Usage:
  dschat                          Start the chat UI (line mode when not a terminal)
  dschat chat                     Line-mode chat with input history
  dschat ask "question"           Ask one question and print the reply
  dschat config [subcommand]      Show or edit configuration
  dschat history [subcommand]     Browse the transcript archive
  dschat models                   List known models
  dschat version                  Show version information
  dschat help                     Show this help

Global flags:
  --config PATH                   Use an alternate config file
  -m, --model NAME                Model to request (default deepseek-chat)
  --endpoint URL                  Chat completions endpoint
  --history                       Send earlier messages with each question
  --json                          Machine-readable output
  -q, --quiet                     Minimal output
  -v, --verbose                   Debug logging

Ask:
  dschat ask "Merhaba! Sen kimsin?"
  echo "question" | dschat ask -
  dschat ask --json "hi"          Prints {"reply", "error", "kind"}

Config:
  dschat config show              Print the effective configuration
  dschat config path              Print the config file path
  dschat config init [--force]    Write a default config file
  dschat config keys              List settable keys
  dschat config get KEY           Print one value
  dschat config set KEY VALUE     Change one value and save

History (requires history.enabled = true):
  dschat history list [--limit N]
  dschat history show ID
  dschat history search QUERY [--limit N]
  dschat history export ID [--format md|json] [--out FILE]
  dschat history delete ID

Chat commands (chat and UI):
  /help  /clear  /quick N  /history [on|off]  /quit
  UI only: /save [file], F1..F9 quick prompts, Ctrl+L clear

Environment:
  DSCHAT_API_KEY                  API key (or DEEPSEEK_API_KEY, or api.key_env)
  DSCHAT_CONFIG, DSCHAT_HOME      Config file and data directory
  DSCHAT_MODEL, DSCHAT_ENDPOINT, DSCHAT_TEMPERATURE, DSCHAT_SYSTEM_PROMPT,
  DSCHAT_SEND_HISTORY, DSCHAT_HISTORY, DSCHAT_LOG_LEVEL
`

// PrintUsage prints the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "dschat %s (commit %s, built %s, %s)\n", Version, GitCommit, BuildDate, runtime.Version())
}

// UserAgent returns the User-Agent sent with every request.
func UserAgent() string {
	return "dschat/" + Version
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}

	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
	}

	switch cmd {
	case "tui", "ui":
		return CmdTUI, args, nil
	case "chat", "repl":
		return CmdChat, args, nil
	case "ask", "a":
		args.Subcommand = ""
		args.Query = strings.Join(remaining, " ")
		return CmdAsk, args, nil
	case "config", "cfg":
		return CmdConfig, args, nil
	case "history", "sessions":
		return CmdHistory, args, nil
	case "models":
		return CmdModels, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, &ValidationError{
			Field:   "command",
			Value:   cmd,
			Reason:  "unknown command",
			Example: "dschat help",
		}
	}
}

// parseGlobalFlags pulls global flags out of argv. Parsing stops at "--";
// the terminator is kept so that "ask -- --literal" works.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var remaining []string
	var args Args

	valueOf := func(i int, name string) (string, error) {
		if i+1 >= len(argv) {
			return "", &ValidationError{Field: name, Reason: "flag needs a value"}
		}
		return argv[i+1], nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			remaining = append(remaining, argv[i+1:]...)
			break
		}

		name, inline, hasInline := strings.Cut(arg, "=")
		takeValue := func(field string) (string, error) {
			if hasInline {
				return inline, nil
			}
			v, err := valueOf(i, field)
			if err == nil {
				i++
			}
			return v, err
		}

		var err error
		switch name {
		case "--config":
			args.ConfigPath, err = takeValue("config")
		case "-m", "--model":
			args.Model, err = takeValue("model")
		case "--endpoint":
			args.Endpoint, err = takeValue("endpoint")
		case "--history":
			args.SendHistory = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "-h", "--help":
			return []string{"help"}, args, nil
		case "-V", "--version":
			return []string{"version"}, args, nil
		default:
			remaining = append(remaining, arg)
		}
		if err != nil {
			return nil, args, err
		}
	}
	return remaining, args, nil
}

// =============================================================================
// SIMPLE HANDLERS
// =============================================================================

// HandleVersion handles the "version" command.
func HandleVersion(s Streams, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(s.Out)
	}
	PrintVersion(s.Out)
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp(s Streams) error {
	PrintUsage(s.Out)
	return nil
}

// Streams are the standard streams a command reads and writes.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process's standard streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}
