// Package services defines the business logic for support conversations,
// messages, and ratings. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Conversation-related errors.
var (
	// ErrGuestNameRequired is returned when a conversation is requested
	// without a display name for the guest.
	ErrGuestNameRequired = errors.New("guest name is required")

	// ErrCreateConversation indicates the store refused to create the
	// conversation. Handlers map it to the degraded-mode response so the
	// guest keeps working recovery options.
	ErrCreateConversation = errors.New("could not create conversation")

	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the caller.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned when an operation requires a live
	// conversation but the target has already been closed.
	ErrConversationClosed = errors.New("conversation is closed")

	// ErrEmptyMessage is returned when a message body is empty after
	// trimming whitespace.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message body exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates that the referenced message does not
	// exist in the conversation (e.g., a bad read watermark).
	ErrMessageNotFound = errors.New("message not found")
)

// Rating-related errors.
var (
	// ErrInvalidRating is returned when a rating value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidRating = errors.New("rating value must be -1 or 1")

	// ErrConversationNotClosed is returned when a guest tries to rate a
	// conversation that is still live.
	ErrConversationNotClosed = errors.New("conversation is not closed yet")

	// ErrForbiddenRating is returned when a guest attempts to rate a
	// conversation they do not own.
	ErrForbiddenRating = errors.New("cannot rate this conversation")

	// ErrDuplicateRating is returned when a guest has already rated the
	// conversation.
	ErrDuplicateRating = errors.New("rating already exists")
)
