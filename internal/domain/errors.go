package domain

import "errors"

var (
	// ErrNotFound signals an operation on a message the store has never seen.
	ErrNotFound = errors.New("message not found")
	// ErrInvalidPayload signals a message with neither body text nor attachments,
	// or otherwise malformed required fields.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrStorage wraps a persistence-layer failure. Operations failing with it
	// leave no observable side effect.
	ErrStorage = errors.New("storage failure")
)

// Ack reason codes reported back to the originating connection.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeStorage    = "STORAGE_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)
