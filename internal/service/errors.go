package service

import "errors"

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid or expired token")
	ErrForbidden              = errors.New("not a participant of this conversation")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmailTaken             = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")
)
