// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command.
//
// Command: config [subcommand]
// Short:   Show or edit configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)       Print the effective configuration
//   path                 Print the config file path
//   init [--force]       Write a default config file
//   keys                 List settable keys
//   get KEY              Print one value
//   set KEY VALUE        Change one value in the file and save it
//
// Examples:
//   dschat config show --json
//   dschat config set api.model deepseek-reasoner
//   dschat config set history.enabled true
//   dschat config set ui.quick_prompts "Hello,Tell me a joke"
//
// The API key is never stored in the file; show reports only whether one was
// found in the environment.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/aiapi/dschat/internal/config"
)

const configUsage = "dschat config [show|path|init|keys|get KEY|set KEY VALUE]"

// ConfigShowData is the JSON form of config show.
type ConfigShowData struct {
	Path     string         `json:"path"`
	Exists   bool           `json:"exists"`
	APIKey   string         `json:"api_key"`
	Config   *config.Config `json:"config"`
	Warnings []string       `json:"warnings,omitempty"`
}

// HandleConfig runs the config command.
func HandleConfig(s Streams, args Args) error {
	parser := NewArgParser(args.Raw, "force", "json")
	sub := strings.ToLower(parser.Subcommand())

	switch sub {
	case "", "show":
		return handleConfigShow(s, args)
	case "path":
		return handleConfigPath(s, args)
	case "init":
		return handleConfigInit(s, args, parser.BoolFlag("force", "f"))
	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(s.Out, k)
		}
		return nil
	case "get":
		key := parser.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "dschat config get api.model")
		}
		return handleConfigGet(s, args, key)
	case "set":
		key, value := parser.Positional(1), JoinPositionalArgs(parser, 2)
		if key == "" || parser.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "dschat config set api.model deepseek-chat")
		}
		return handleConfigSet(s, args, key, value)
	default:
		return ErrUnknownSubcommand("config", sub, configUsage)
	}
}

// configFilePath resolves --config or the default location.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPath()
}

func handleConfigShow(s Streams, args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	keyStatus := "not set"
	if cfg.API.APIKey != "" {
		keyStatus = maskAPIKey(cfg.API.APIKey)
	}

	if args.JSON {
		return NewJSONResponse("config show", ConfigShowData{
			Path:     path,
			Exists:   exists,
			APIKey:   keyStatus,
			Config:   cfg,
			Warnings: cfg.Warnings(),
		}).Print(s.Out)
	}

	body, err := cfg.TOML()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fileNote := path
	if !exists {
		fileNote += " (not created, defaults in use)"
	}
	fmt.Fprintf(s.Out, "%s %s\n", DimStyle.Render("# file:"), fileNote)
	fmt.Fprintf(s.Out, "%s %s (%s)\n\n", DimStyle.Render("# api key:"), keyStatus, cfg.API.KeyEnv)
	fmt.Fprint(s.Out, body)
	for _, w := range cfg.Warnings() {
		fmt.Fprintln(s.Err, WarningStyle.Render("[WARN] ")+w)
	}
	return nil
}

func handleConfigPath(s Streams, args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config path", map[string]string{"path": path}).Print(s.Out)
	}
	fmt.Fprintln(s.Out, path)
	return nil
}

func handleConfigInit(s Streams, args Args, force bool) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return &CommandError{
			Command: "config",
			Action:  "init",
			Reason:  path + " exists, use --force to overwrite",
		}
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Fprintf(s.Out, "%s %s\n", SuccessStyle.Render("Wrote"), path)
	}
	return nil
}

func handleConfigGet(s Streams, args Args, key string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "dschat config keys"}
	}
	if args.JSON {
		return NewJSONResponse("config get", map[string]any{"key": key, "value": value}).Print(s.Out)
	}
	if items, ok := value.([]string); ok {
		for _, item := range items {
			fmt.Fprintln(s.Out, item)
		}
		return nil
	}
	fmt.Fprintln(s.Out, value)
	return nil
}

// handleConfigSet edits the file alone, so environment overrides and flags
// are not written back.
func handleConfigSet(s Streams, args Args, key, value string) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	if !args.Quiet {
		got, _ := cfg.Get(key)
		fmt.Fprintf(s.Out, "%s %s = %v\n", SuccessStyle.Render("Set"), strings.ToLower(key), got)
	}
	return nil
}

// maskAPIKey shows only the ends of a key.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}
