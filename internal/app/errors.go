package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")

	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationForbidden = errors.New("conversation forbidden")
	ErrTopicNotFound         = errors.New("topic not found")
	ErrMessageRequired       = errors.New("message required")

	// ErrTurnInFlight is returned when a conversation already has a reply streaming.
	ErrTurnInFlight = errors.New("a reply is already streaming in this conversation")

	// ErrQuotaExhausted is returned before any state changes when the user has no quota left.
	ErrQuotaExhausted = errors.New("quota exhausted")
)
