// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/model"
)

// =============================================================================
// EXCHANGE STATUS
// =============================================================================

// Status is the state of one exchange.
type Status string

const (
	// StatusRunning means the request is outstanding.
	StatusRunning Status = "Running"

	// StatusSucceeded means a reply arrived and was appended.
	StatusSucceeded Status = "Succeeded"

	// StatusFailed means the exchange failed and the failure text was
	// appended in place of a reply.
	StatusFailed Status = "Failed"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the exchange has settled.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of a settled exchange.
type Result struct {
	// Reply is the text returned by the endpoint. Empty on failure.
	Reply string

	// Err is the failure, nil on success.
	Err error

	// Kind classifies Err.
	Kind cloud.FailureKind

	// User and Assistant are the two messages appended to the conversation.
	// On failure Assistant holds the failure text.
	User      model.Message
	Assistant model.Message

	// Duration is the time from submit to settle.
	Duration time.Duration
}

// OK reports whether the exchange produced a reply.
func (r Result) OK() bool {
	return r.Err == nil
}

// =============================================================================
// EXCHANGE HANDLE
// =============================================================================

// Exchange is the handle returned by Submit. Done is closed once the pair has
// been appended and the session is free for the next submission.
type Exchange struct {
	// ID uniquely identifies the exchange in logs.
	ID string

	// Input is the submitted text, unmodified.
	Input string

	// StartedAt is when the exchange was submitted.
	StartedAt time.Time

	mu     sync.RWMutex
	status Status
	result Result
	done   chan struct{}
}

func newExchange(input string) *Exchange {
	return &Exchange{
		ID:        uuid.NewString(),
		Input:     input,
		StartedAt: time.Now(),
		status:    StatusRunning,
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the exchange settles.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Status returns the current status (thread-safe).
func (e *Exchange) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Result returns the outcome. ok is false until the exchange has settled.
func (e *Exchange) Result() (res Result, ok bool) {
	select {
	case <-e.done:
	default:
		return Result{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result, true
}

// Wait blocks until the exchange settles or ctx is done. Abandoning the wait
// does not stop the exchange.
func (e *Exchange) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.done:
		res, _ := e.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// settle records the outcome. Done is closed separately by the session once
// the guard is released.
func (e *Exchange) settle(res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.IsTerminal() {
		return
	}
	e.result = res
	if res.Err != nil {
		e.status = StatusFailed
	} else {
		e.status = StatusSucceeded
	}
}
