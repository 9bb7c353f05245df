package domain

import "errors"

var (
	ErrEmptyInput         = errors.New("empty input")
	ErrGatewayUnavailable = errors.New("completion gateway unavailable")
	ErrInvalidThreadID    = errors.New("invalid thread id")
)
