package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNoActiveMarket = errors.New("no active market found")
	ErrPositionClosed = errors.New("position already closed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrWSDisconnect   = errors.New("websocket disconnected")
)
