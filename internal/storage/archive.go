// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/aiapi/dschat/internal/model"
	"github.com/aiapi/dschat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// ArchiveError represents an archive lookup error. Compare with errors.Is.
type ArchiveError struct {
	Message string
}

// Error implements the error interface.
func (e *ArchiveError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing archive errors.
func (e *ArchiveError) Is(target error) bool {
	t, ok := target.(*ArchiveError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrSessionNotFound is returned when no session matches an ID.
	ErrSessionNotFound = &ArchiveError{Message: "session not found"}

	// ErrAmbiguousID is returned when an ID prefix matches several sessions.
	ErrAmbiguousID = &ArchiveError{Message: "session ID prefix is ambiguous"}
)

// =============================================================================
// TYPES
// =============================================================================

// SessionMeta describes a session when it is created.
type SessionMeta struct {
	Model    string
	Endpoint string
}

// SessionInfo is a session row as listed.
type SessionInfo struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Endpoint     string    `json:"endpoint"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Clears       int       `json:"clears"`
	Preview      string    `json:"preview"`
}

// StoredMessage is an archived message plus the clear epoch it belongs to.
type StoredMessage struct {
	model.Message
	Epoch int `json:"epoch"`
}

// SearchHit is one message matching a search.
type SearchHit struct {
	SessionID string        `json:"session_id"`
	Message   model.Message `json:"message"`
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive stores chat transcripts in SQLite. Pairs are written in one
// transaction, so a transcript never holds a question without its reply.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive database at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	// SECURITY: transcripts are private.
	_ = os.Chmod(path, 0600)

	return &Archive{db: db, path: path}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.path
}

// BeginSession creates a session row and returns its ID.
func (a *Archive) BeginSession(ctx context.Context, meta SessionMeta) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixNano()
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sessions (id, model, endpoint, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, meta.Model, endpointHost(meta.Endpoint), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// AppendPair records a user message and its reply.
func (a *Archive) AppendPair(ctx context.Context, sessionID string, user, reply model.Message) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var seq, epoch int
	err = tx.QueryRowContext(ctx,
		`SELECT message_count, epoch FROM sessions WHERE id = ?`, sessionID).Scan(&seq, &epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	for i, msg := range []model.Message{user, reply} {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, epoch, message_id, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, seq+i, epoch, msg.ID, string(msg.Role), msg.Content, msg.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages_fts (rowid, content) VALUES (?, ?)`,
			rowID, norm.NFC.String(msg.Content)); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 2, updated_at = ? WHERE id = ?`,
		reply.Timestamp.UnixNano(), sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// MarkCleared records that the user cleared the conversation. Earlier
// messages stay in the archive under the previous epoch.
func (a *Archive) MarkCleared(ctx context.Context, sessionID string) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE sessions SET epoch = epoch + 1, updated_at = ? WHERE id = ?`,
		time.Now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark cleared: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

const sessionColumns = `
    s.id, s.model, s.endpoint, s.started_at, s.updated_at, s.message_count, s.epoch,
    COALESCE((SELECT content FROM messages m
              WHERE m.session_id = s.id AND m.role = 'user'
              ORDER BY m.seq LIMIT 1), '')`

func scanSession(row interface{ Scan(...any) error }) (SessionInfo, error) {
	var (
		info             SessionInfo
		started, updated int64
		preview          string
	)
	if err := row.Scan(&info.ID, &info.Model, &info.Endpoint, &started, &updated,
		&info.MessageCount, &info.Clears, &preview); err != nil {
		return SessionInfo{}, err
	}
	info.StartedAt = time.Unix(0, started)
	info.UpdatedAt = time.Unix(0, updated)
	info.Preview = util.Preview(preview, 80)
	return info, nil
}

// ListSessions returns sessions with at least one exchange, most recent first.
// limit <= 0 returns all.
func (a *Archive) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s
	          WHERE s.message_count > 0 ORDER BY s.updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ResolveID expands a unique ID prefix to a full session ID.
func (a *Archive) ResolveID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrSessionNotFound
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := a.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escaped+"%")
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", ErrSessionNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousID
	}
}

// LoadSession returns the full transcript of a session. id may be a unique
// prefix.
func (a *Archive) LoadSession(ctx context.Context, id string) (*Transcript, error) {
	fullID, err := a.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	info, err := scanSession(a.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, fullID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at, epoch FROM messages
		 WHERE session_id = ? ORDER BY seq`, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	t := &Transcript{Session: info}
	for rows.Next() {
		var (
			msg  StoredMessage
			role string
			ts   int64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts, &msg.Epoch); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.Unix(0, ts)
		t.Messages = append(t.Messages, msg)
	}
	return t, rows.Err()
}

// Search finds messages whose content matches every word of query, newest
// first. limit <= 0 means 50.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT m.session_id, m.message_id, m.role, m.content, m.created_at
		 FROM messages_fts f JOIN messages m ON m.id = f.rowid
		 WHERE messages_fts MATCH ?
		 ORDER BY m.created_at DESC LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			hit  SearchHit
			role string
			ts   int64
		)
		if err := rows.Scan(&hit.SessionID, &hit.Message.ID, &role, &hit.Message.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hit.Message.Role = model.Role(role)
		hit.Message.Timestamp = time.Unix(0, ts)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ftsQuery turns free text into an FTS5 query: each word quoted, all
// required. Normalized to NFC to match the index.
func ftsQuery(query string) string {
	words := strings.Fields(norm.NFC.String(query))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// DeleteSession removes a session and its messages. id may be a unique prefix.
func (a *Archive) DeleteSession(ctx context.Context, id string) (err error) {
	fullID, err := a.ResolveID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM messages_fts WHERE rowid IN (SELECT id FROM messages WHERE session_id = ?)`,
		fullID); err != nil {
		return fmt.Errorf("failed to delete index entries: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// endpointHost keeps only the host of an endpoint URL.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
