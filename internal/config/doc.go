// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for dschat.
//
// Configuration comes from, in increasing order of precedence: built-in
// defaults, the TOML file (~/.dschat/config.toml or $DSCHAT_CONFIG), and
// DSCHAT_* environment variables. The API key is only ever read from the
// environment variable named by api.key_env and is never saved.
//
// # Example config.toml
//
//	[api]
//	endpoint = "https://api.deepseek.com/chat/completions"
//	model = "deepseek-chat"
//	temperature = 0.7
//	send_history = false
//
//	[ui]
//	quick_prompts = ["Hello! Who are you?"]
//
//	[history]
//	enabled = true
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	go config.Watch(ctx, cfg.Path(), 0, func(next *config.Config, err error) {
//	    // swap clients between exchanges
//	})
package config
