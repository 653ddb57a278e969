package client

import "errors"

var (
	ErrServiceNotRunning = errors.New("parking service is not running")
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("rejected by parking service")
)
