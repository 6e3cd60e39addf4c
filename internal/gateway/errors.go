package gateway

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrQueueOverflow    = errors.New("event queue overflow")
)
