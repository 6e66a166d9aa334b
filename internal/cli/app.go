// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Building the client, archive and session from configuration.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/session"
	"github.com/aiapi/dschat/internal/storage"
)

// LoadConfig loads the config file (or --config) and applies global flags
// on top of file and environment values.
func LoadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	args.ApplyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// ApplyTo overrides config values with global flags. Flags win over the
// environment and the file.
func (a Args) ApplyTo(cfg *config.Config) {
	if a.Model != "" {
		cfg.API.Model = a.Model
	}
	if a.Endpoint != "" {
		cfg.API.Endpoint = a.Endpoint
	}
	if a.SendHistory {
		cfg.API.SendHistory = true
	}
	if a.Verbose {
		cfg.Log.Level = "debug"
	}
}

// NewClient builds the exchange client from config. It fails only when no
// API key is available.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*cloud.Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	client := cloud.NewClient(cfg.API.Endpoint, cfg.API.APIKey).
		WithModel(cfg.API.Model).
		WithSystemPrompt(cfg.API.SystemPrompt).
		WithTemperature(cfg.API.Temperature).
		WithTimeout(time.Duration(cfg.API.TimeoutSeconds) * time.Second).
		WithLogger(logger)

	logger.Debug().
		Str("endpoint", client.Endpoint()).
		Str("model", client.Model()).
		Str("key", client.KeyFingerprint()).
		Msg("client configured")
	return client, nil
}

// ClientFactory adapts NewClient for callers that reload config.
func ClientFactory(logger zerolog.Logger) func(*config.Config) (session.Exchanger, error) {
	return func(cfg *config.Config) (session.Exchanger, error) {
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// OpenArchive opens the transcript archive when history is enabled. It
// returns nil and no error when it is disabled.
func OpenArchive(cfg *config.Config) (*storage.Archive, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	archive, err := storage.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript archive: %w", err)
	}
	return archive, nil
}

// NewSession builds a session over client. With an archive, a session row is
// created first and every settled pair is recorded.
func NewSession(ctx context.Context, cfg *config.Config, client session.Exchanger, archive *storage.Archive, logger zerolog.Logger) (*session.Session, error) {
	opts := session.Options{
		SendHistory: cfg.API.SendHistory,
		Logger:      logger,
	}
	if archive != nil {
		id, err := archive.BeginSession(ctx, storage.SessionMeta{
			Model:    cfg.API.Model,
			Endpoint: cfg.API.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		opts.ID = id
		opts.Archive = archive
	}
	return session.New(client, opts), nil
}
