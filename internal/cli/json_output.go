// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting.

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/storage"
)

// JSONResponse is the envelope for --json output of listing commands.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	return writeJSON(w, r)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData is the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData is printed by "ask --json". Exactly one of Reply and Error is
// meaningful; Kind names the failure category or "none".
type AskData struct {
	Reply      string `json:"reply"`
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Status     int    `json:"status,omitempty"`
	Model      string `json:"model"`
	DurationMs int64  `json:"duration_ms"`
}

// ModelsData is the data returned by the models command.
type ModelsData struct {
	Current string            `json:"current"`
	Models  []model.ModelInfo `json:"models"`
}

// HistoryListData is the data returned by "history list".
type HistoryListData struct {
	Sessions []storage.SessionInfo `json:"sessions"`
}

// HistorySearchData is the data returned by "history search".
type HistorySearchData struct {
	Query string              `json:"query"`
	Hits  []storage.SearchHit `json:"hits"`
}
