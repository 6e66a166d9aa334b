// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultModel is the model identifier sent when none is configured.
const DefaultModel = "deepseek-chat"

// ModelInfo describes a model served by the default endpoint.
type ModelInfo struct {
	// ID is the identifier used in API calls.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// ContextWindow is the advertised context size in tokens.
	ContextWindow int `json:"context_window"`

	// Description is a one-line summary.
	Description string `json:"description"`
}

// KnownModels lists the models of the default endpoint. Other identifiers are
// still accepted; an OpenAI-compatible endpoint may serve anything.
var KnownModels = map[string]ModelInfo{
	"deepseek-chat": {
		ID:            "deepseek-chat",
		Name:          "DeepSeek Chat",
		ContextWindow: 64000,
		Description:   "General conversation model",
	},
	"deepseek-reasoner": {
		ID:            "deepseek-reasoner",
		Name:          "DeepSeek Reasoner",
		ContextWindow: 64000,
		Description:   "Reasoning model, slower and more thorough",
	},
}

// LookupModel returns metadata for id. ok is false for unknown identifiers.
func LookupModel(id string) (info ModelInfo, ok bool) {
	info, ok = KnownModels[strings.TrimSpace(id)]
	return info, ok
}

// DisplayName returns a friendly name for the model, falling back to the ID.
func DisplayName(id string) string {
	if info, ok := LookupModel(id); ok {
		return info.Name
	}
	return id
}

// ListModels returns the known models sorted by ID.
func ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(KnownModels))
	for _, info := range KnownModels {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// String renders the model for listings.
func (m ModelInfo) String() string {
	return fmt.Sprintf("%-20s %-18s %6dk  %s", m.ID, m.Name, m.ContextWindow/1000, m.Description)
}
