package peek

import "errors"

var (
	ErrSessionNotFound = errors.New("peek session not found")
	ErrUnknownMessage  = errors.New("unknown control message")
	ErrInvalidTabID    = errors.New("invalid tab id")
	ErrEmptyURL        = errors.New("url is required")
)
