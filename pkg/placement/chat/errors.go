package chat

import (
	"context"
	"errors"
)

var (
	// ErrNoGroup is returned by actions that need a selected group
	ErrNoGroup = errors.New("no group selected")
	// ErrEmptyDraft is returned by Send when there is nothing to send
	ErrEmptyDraft = errors.New("nothing to send")
	// ErrQueryTooShort is returned by Search for queries under MinSearchLength
	ErrQueryTooShort = errors.New("search query too short")
	// ErrCancelled is returned by Delete when the user declines the prompt
	ErrCancelled = errors.New("cancelled")
)

// ServerError is implemented by transport errors that carry a message from the server
type ServerError interface {
	error
	ServerMessage() string
}

// ErrorMessage returns the text to show the user for err: the server's
// message when there is one, otherwise fallback.
func ErrorMessage(err error, fallback string) string {
	var se ServerError
	if errors.As(err, &se) && se.ServerMessage() != "" {
		return se.ServerMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	return fallback
}
