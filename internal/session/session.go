// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/model"
)

var (
	// ErrBusy is returned by Submit and Clear while an exchange is in flight.
	// Interactive callers drop the submission silently.
	ErrBusy = errors.New("an exchange is already in flight")

	// ErrEmptyInput is returned by Submit for blank text.
	ErrEmptyInput = errors.New("message is empty")
)

// ErrorPrefix starts every failure text appended to the conversation.
const ErrorPrefix = "Error:"

// Exchanger performs one request/reply cycle. *cloud.Client implements it.
type Exchanger interface {
	SendWithHistory(ctx context.Context, history []model.Message, message string) (string, error)
}

// Archive receives every settled pair. *storage.Archive implements it.
type Archive interface {
	AppendPair(ctx context.Context, sessionID string, user, reply model.Message) error
	MarkCleared(ctx context.Context, sessionID string) error
}

// Options configures a Session.
type Options struct {
	// SendHistory sends the conversation so far with each message. Off by
	// default: only the system prompt and the new message go out.
	SendHistory bool

	// Archive, when set, records each pair and each clear.
	Archive Archive

	// ID overrides the generated session ID (used when the archive already
	// created the session row).
	ID string

	// Logger receives exchange events.
	Logger zerolog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session owns one conversation and runs exchanges against it, one at a time.
//
// The single-flight guard is set by Submit before the exchange starts and
// released by the exchange goroutine after the pair is appended, on every
// exit path. While it is held Submit and Clear return ErrBusy and leave the
// conversation untouched.
type Session struct {
	id   string
	conv *model.Conversation

	mu          sync.RWMutex
	client      Exchanger
	sendHistory bool

	inFlight atomic.Bool
	current  atomic.Pointer[Exchange]

	archive Archive
	log     zerolog.Logger
}

// New creates a session with an empty conversation.
func New(client Exchanger, opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:          id,
		conv:        model.NewConversation(),
		client:      client,
		sendHistory: opts.SendHistory,
		archive:     opts.Archive,
		log:         opts.Logger.With().Str("component", "session").Str("session", id).Logger(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Conversation returns the underlying conversation for read access.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Snapshot returns a copy of the conversation.
func (s *Session) Snapshot() []model.Message {
	return s.conv.Snapshot()
}

// Busy reports whether an exchange is in flight.
func (s *Session) Busy() bool {
	return s.inFlight.Load()
}

// Current returns the in-flight exchange, or nil.
func (s *Session) Current() *Exchange {
	return s.current.Load()
}

// SetClient swaps the exchanger. The in-flight exchange, if any, keeps the
// client it started with.
func (s *Session) SetClient(client Exchanger) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// SetSendHistory toggles sending prior messages with each request.
func (s *Session) SetSendHistory(on bool) {
	s.mu.Lock()
	s.sendHistory = on
	s.mu.Unlock()
}

// SendHistory reports whether prior messages are sent.
func (s *Session) SendHistory() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sendHistory
}

// Submit starts an exchange for text and returns its handle immediately.
//
// Blank text returns ErrEmptyInput. Otherwise text is sent and stored exactly
// as given. If an exchange is already in flight it
// returns ErrBusy and nothing else happens. Cancelling ctx aborts the request,
// which then settles as a network failure.
func (s *Session) Submit(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug().Msg("submission dropped, exchange in flight")
		return nil, ErrBusy
	}

	s.mu.RLock()
	client := s.client
	var history []model.Message
	if s.sendHistory {
		history = s.conv.Snapshot()
	}
	s.mu.RUnlock()

	ex := newExchange(text)
	s.current.Store(ex)

	s.log.Info().
		Str("exchange", ex.ID).
		Int("chars", len(text)).
		Int("history", len(history)).
		Msg("exchange started")

	go s.run(ctx, ex, client, history)
	return ex, nil
}

// run executes the exchange and appends the outcome. It runs on its own
// goroutine; the conversation's lock makes the append safe against readers.
func (s *Session) run(ctx context.Context, ex *Exchange, client Exchanger, history []model.Message) {
	defer s.release(ex)

	reply, err := s.exchange(ctx, client, history, ex.Input)

	text := reply
	if err != nil {
		text = FailureText(err)
	}
	user, assistant := s.conv.Append(ex.Input, text)

	res := Result{
		Err:       err,
		Kind:      cloud.Classify(err),
		User:      user,
		Assistant: assistant,
		Duration:  time.Since(ex.StartedAt),
	}
	if err == nil {
		res.Reply = reply
	}
	ex.settle(res)

	var evt *zerolog.Event
	if err != nil {
		evt = s.log.Warn().Err(err)
	} else {
		evt = s.log.Info()
	}
	evt.Str("exchange", ex.ID).
		Str("kind", res.Kind.String()).
		Dur("duration", res.Duration).
		Msg("exchange settled")

	s.record(context.WithoutCancel(ctx), user, assistant)
}

// exchange calls the client, turning a panic into an ordinary failure.
func (s *Session) exchange(ctx context.Context, client Exchanger, history []model.Message, text string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("exchange panicked")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	if client == nil {
		return "", errors.New("no client configured")
	}
	return client.SendWithHistory(ctx, history, text)
}

// release frees the guard and resolves the handle, in that order, so a
// caller woken by Done can submit again straight away.
func (s *Session) release(ex *Exchange) {
	s.current.CompareAndSwap(ex, nil)
	s.inFlight.Store(false)
	close(ex.done)
}

// record writes the pair to the archive, if any. Archive failures are logged
// and otherwise ignored; the in-memory conversation is authoritative.
func (s *Session) record(ctx context.Context, user, assistant model.Message) {
	if s.archive == nil {
		return
	}
	if err := s.archive.AppendPair(ctx, s.id, user, assistant); err != nil {
		s.log.Error().Err(err).Msg("failed to archive exchange")
	}
}

// Clear empties the conversation. It returns ErrBusy while an exchange is in
// flight.
func (s *Session) Clear() error {
	// Holding the guard for the duration keeps Submit out while clearing.
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.inFlight.Store(false)

	s.conv.Clear()
	s.log.Info().Msg("conversation cleared")

	if s.archive != nil {
		if err := s.archive.MarkCleared(context.Background(), s.id); err != nil {
			s.log.Error().Err(err).Msg("failed to archive clear")
		}
	}
	return nil
}

// Wait blocks until the in-flight exchange, if any, has settled or ctx is
// done. Used on shutdown so the last pair reaches the archive.
func (s *Session) Wait(ctx context.Context) error {
	ex := s.current.Load()
	if ex == nil {
		return nil
	}
	_, err := ex.Wait(ctx)
	return err
}

// =============================================================================
// FAILURE TEXT
// =============================================================================

// FailureText renders err as the assistant message shown in its place.
func FailureText(err error) string {
	if err == nil {
		return ""
	}
	return ErrorPrefix + " " + err.Error()
}
