// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/util"
)

// Transcript is a session and its messages in order.
type Transcript struct {
	Session  SessionInfo     `json:"session"`
	Messages []StoredMessage `json:"messages"`
}

// NewTranscript wraps a live conversation snapshot for export.
func NewTranscript(info SessionInfo, msgs []model.Message) *Transcript {
	t := &Transcript{Session: info}
	for _, m := range msgs {
		t.Messages = append(t.Messages, StoredMessage{Message: m})
	}
	if t.Session.MessageCount == 0 {
		t.Session.MessageCount = len(msgs)
	}
	return t
}

// Format is an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "md", "markdown" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (use md or json)", s)
	}
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatMarkdown
}

// ExportMarkdown renders the transcript as Markdown. A clear point between
// epochs is shown as a divider.
func (t *Transcript) ExportMarkdown() string {
	var sb strings.Builder
	title := t.Session.ID
	if title == "" {
		title = "current"
	}
	sb.WriteString("# Session " + title + "\n\n")
	if !t.Session.StartedAt.IsZero() {
		sb.WriteString("Started: " + t.Session.StartedAt.Format(time.RFC3339) + "\n\n")
	}
	if t.Session.Model != "" {
		sb.WriteString("Model: " + t.Session.Model + "\n\n")
	}
	sb.WriteString("---\n\n")

	epoch := -1
	for _, msg := range t.Messages {
		if epoch >= 0 && msg.Epoch != epoch {
			sb.WriteString("*Conversation cleared*\n\n---\n\n")
		}
		epoch = msg.Epoch

		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.FormatTime() + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON renders the transcript as indented JSON.
func (t *Transcript) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Export renders the transcript in the given format.
func (t *Transcript) Export(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return t.ExportJSON()
	case FormatMarkdown, "":
		return []byte(t.ExportMarkdown()), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// WriteExport writes the transcript to path, choosing the format from the
// extension.
func (t *Transcript) WriteExport(path string) error {
	data, err := t.Export(FormatForPath(path))
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0600)
}

// FormatSessionList renders sessions as a table for the terminal.
func FormatSessionList(sessions []SessionInfo) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	const rule = "-----------------------------------------------------------------\n"
	var sb strings.Builder
	sb.WriteString("Sessions:\n")
	sb.WriteString(rule)
	sb.WriteString(util.PadRight("ID", 10) + " " + util.PadRight("Updated", 17) + " " +
		util.PadRight("Msgs", 5) + " Preview\n")
	sb.WriteString(rule)

	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(util.PadRight(id, 10) + " " +
			util.PadRight(s.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), 5) + " " +
			util.Preview(s.Preview, 30) + "\n")
	}
	return sb.String()
}

// FormatSearchHits renders search results, one line each.
func FormatSearchHits(hits []SearchHit) string {
	if len(hits) == 0 {
		return "No matches."
	}
	var sb strings.Builder
	for _, h := range hits {
		id := h.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(id + "  " + h.Message.Timestamp.Format("2006-01-02 15:04") + "  " +
			util.PadRight(h.Message.Role.DisplayName(), 9) + " " + h.Message.Preview(60) + "\n")
	}
	return sb.String()
}
