/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package failure defines the error taxonomy shared by the sandbox file
// operations and the pull request publisher.
//
// Every component returns a *Error tagged with a Kind instead of a bare error,
// so that callers (tool handlers, the HTTP layer) can classify failures with
// Is or KindOf without string matching:
//
//	if failure.Is(err, failure.StringNotFound) {
//		// let the model retry with different text
//	}
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// Config indicates missing or invalid configuration (e.g. no GitHub token).
	Config Kind = "config"
	// InvalidURL indicates a repository URL that could not be parsed.
	InvalidURL Kind = "invalid_url"
	// RemoteCommand indicates a sandbox command that failed to run or exited non-zero.
	RemoteCommand Kind = "remote_command"
	// Provider indicates the code-hosting provider rejected a request.
	Provider Kind = "provider"
	// NotFound indicates a file that could not be read for display.
	NotFound Kind = "not_found"
	// Read indicates a file that could not be read before an edit.
	Read Kind = "read"
	// StringNotFound indicates an edit whose search text is absent from the file.
	StringNotFound Kind = "string_not_found"
)

// Error is a classified failure. Message is what gets surfaced to callers;
// Err carries the underlying cause for logs and errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns a classified failure with the given message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. The message defaults to err's own text.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != e.Err.Error() {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Message returns the caller-facing message for err. Classified failures
// report their Message without the wrapped cause; anything else reports
// err.Error().
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
