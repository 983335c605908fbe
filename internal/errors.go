package internal

import "errors"

var (
	errNotFound     = errors.New("not found")
	errNotConnected = errors.New("websocket not connected")

	errTooManyRequests = errors.New("too many requests from this IP, please try again later")
)
