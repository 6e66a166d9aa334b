// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for dschat commands.
//
// Handlers always return errors and never exit. main displays the error and
// maps it to an exit code with GetExitCode.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aiapi/dschat/internal/cloud"
	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error, including a
	// rejected or malformed reply
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the endpoint rejected the API key
	ExitAuthError = 4
	// ExitNetworkError indicates the endpoint could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "history"
	Action  string // e.g. "export"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrMissingArgument builds a usage error for a missing positional.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "argument is required",
		Example: usage,
	}
}

// ErrUnknownSubcommand builds a usage error for a bad subcommand.
func ErrUnknownSubcommand(command, sub, usage string) error {
	return &ValidationError{
		Field:   command + " subcommand",
		Value:   sub,
		Reason:  "unknown subcommand",
		Example: usage,
	}
}

// ReportedError wraps a failure the command has already shown to the user.
// DisplayError skips it; GetExitCode still maps the cause.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string {
	return e.Err.Error()
}

func (e *ReportedError) Unwrap() error {
	return e.Err
}

// errHistoryDisabled is returned by history commands when the archive is off.
var errHistoryDisabled = errors.New("transcript archive is disabled; set history.enabled = true in the config file")

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	var reported *ReportedError
	if errors.As(err, &reported) {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// DisplayErrorJSON writes err as a JSON object.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]any{
		"error":   err.Error(),
		"success": false,
	}

	var (
		cmdErr *CommandError
		valErr *ValidationError
		nfErr  *NotFoundError
	)
	switch {
	case errors.As(err, &valErr):
		output["error_type"] = "validation_error"
		output["field"] = valErr.Field
		output["reason"] = valErr.Reason
	case errors.As(err, &nfErr):
		output["error_type"] = "not_found_error"
		output["resource"] = nfErr.Resource
		output["id"] = nfErr.ID
	case errors.As(err, &cmdErr):
		output["error_type"] = "command_error"
		output["command"] = cmdErr.Command
		output["action"] = cmdErr.Action
	default:
		if kind := cloud.Classify(err); kind != cloud.KindUnknown {
			output["error_type"] = kind.String()
		} else {
			output["error_type"] = "generic_error"
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		valErr  *ValidationError
		nfErr   *NotFoundError
		cfgErrs config.ValidateErrors
		cfgErr  config.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		return ExitUsageError
	case errors.As(err, &nfErr), errors.Is(err, storage.ErrSessionNotFound):
		return ExitNotFoundError
	case errors.Is(err, config.ErrNoAPIKey), errors.Is(err, cloud.ErrNotConfigured),
		errors.As(err, &cfgErrs), errors.As(err, &cfgErr), errors.Is(err, errHistoryDisabled):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}

	switch cloud.Classify(err) {
	case cloud.KindTransport:
		switch cloud.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ExitAuthError
		}
		return ExitGeneralError
	case cloud.KindNetwork:
		return ExitNetworkError
	}
	return ExitGeneralError
}
